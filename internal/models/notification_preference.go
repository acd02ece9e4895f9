package models

const (
	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "07:00"
	DefaultMaxDaily        = 3
)

// NotificationPreference holds a user's delivery policy. Rows are created on
// first write and never deleted.
type NotificationPreference struct {
	BaseModel

	UserID string `gorm:"size:36;uniqueIndex;not null" json:"user_id"`

	QuietHoursStart string `gorm:"size:5;not null" json:"quiet_hours_start"`
	QuietHoursEnd   string `gorm:"size:5;not null" json:"quiet_hours_end"`
	MaxDaily        int    `gorm:"not null" json:"max_daily"`

	PushEnabled       bool `json:"push_enabled"`
	Reminder60Enabled bool `json:"reminder_60_enabled"`
	Reminder15Enabled bool `json:"reminder_15_enabled"`
	CheckinEnabled    bool `json:"checkin_enabled"`
	PodDigestEnabled  bool `json:"pod_digest_enabled"`
	SurveyEnabled     bool `json:"survey_enabled"`
	ReviewEnabled     bool `json:"review_enabled"`
}

// DefaultNotificationPreference returns the policy applied to a user who has
// never saved preferences.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:            userID,
		QuietHoursStart:   DefaultQuietHoursStart,
		QuietHoursEnd:     DefaultQuietHoursEnd,
		MaxDaily:          DefaultMaxDaily,
		PushEnabled:       true,
		Reminder60Enabled: true,
		Reminder15Enabled: true,
		CheckinEnabled:    true,
		PodDigestEnabled:  true,
		SurveyEnabled:     true,
		ReviewEnabled:     true,
	}
}

// TypeEnabled reports whether the given notification type may be delivered.
// Unknown types are allowed.
func (p *NotificationPreference) TypeEnabled(notificationType string) bool {
	if p == nil {
		return true
	}
	switch notificationType {
	case NotificationTypeReminder60:
		return p.Reminder60Enabled
	case NotificationTypeReminder15:
		return p.Reminder15Enabled
	case NotificationTypeCheckin:
		return p.CheckinEnabled
	case NotificationTypePodDigest:
		return p.PodDigestEnabled
	case NotificationTypeNPSSurvey:
		return p.SurveyEnabled
	case NotificationTypeReviewRequest:
		return p.ReviewEnabled
	}
	return true
}
