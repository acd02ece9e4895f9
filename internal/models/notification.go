package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types. They double as the per-type preference keys.
const (
	NotificationTypeReminder60    = "reminder_60"
	NotificationTypeReminder15    = "reminder_15"
	NotificationTypeCheckin       = "checkin"
	NotificationTypePodDigest     = "pod_digest"
	NotificationTypeNPSSurvey     = "nps_survey"
	NotificationTypeReviewRequest = "review_request"
)

// Notification is a queued in-app notification. The push forwarder picks new
// rows up from here; the client app reads them for display.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"size:36;index;not null" json:"user_id"`
	Type     string         `gorm:"size:64;index;not null" json:"type"`
	Title    string         `gorm:"size:255;not null" json:"title"`
	Body     string         `gorm:"type:text;not null" json:"body"`
	DeepLink string         `gorm:"type:text" json:"deep_link,omitempty"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	IsRead bool       `gorm:"index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

const EventOpened = "opened"

// NotificationEvent records an interaction with a delivered notification.
// Opened events feed the send-time predictor.
type NotificationEvent struct {
	BaseModel

	UserID         string    `gorm:"size:36;index:idx_notification_events_user_event,priority:1;not null" json:"user_id"`
	Event          string    `gorm:"size:32;index:idx_notification_events_user_event,priority:2;not null" json:"event"`
	NotificationID *string   `gorm:"size:36;index" json:"notification_id,omitempty"`
	OccurredAt     time.Time `gorm:"index;not null" json:"occurred_at"`
}
