package models

import "time"

const (
	ChannelPush  = "push"
	ChannelLocal = "local"
)

// NotificationLog is the append-only record of a dispatch that passed policy.
// It is also the window the daily cap is counted over.
type NotificationLog struct {
	BaseModel

	UserID           string    `gorm:"size:36;not null;index:idx_notification_logs_user_sent,priority:1" json:"user_id"`
	SentAt           time.Time `gorm:"not null;index:idx_notification_logs_user_sent,priority:2" json:"sent_at"`
	Type             string    `gorm:"size:64;not null" json:"type"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	Body             string    `gorm:"type:text;not null" json:"body"`
	Channel          string    `gorm:"size:16;not null" json:"channel"`
	GatewayMessageID *string   `gorm:"size:255" json:"gateway_message_id"`
	SourceID         string    `gorm:"size:128;index" json:"source_id,omitempty"`
}
