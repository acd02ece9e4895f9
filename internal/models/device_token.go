package models

import "time"

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// DeviceToken is a push gateway registration token for one installation.
type DeviceToken struct {
	BaseModel

	UserID     string    `gorm:"size:36;index;not null" json:"user_id"`
	Token      string    `gorm:"size:512;uniqueIndex;not null" json:"token"`
	Platform   string    `gorm:"size:16;not null" json:"platform"`
	LastSeenAt time.Time `gorm:"index" json:"last_seen_at"`
}
