package models

import "time"

// Pod is a trainer-led group of clients who train together.
type Pod struct {
	BaseModel

	Name      string      `gorm:"size:128;not null" json:"name"`
	TrainerID string      `gorm:"size:36;index;not null" json:"trainer_id"`
	Members   []PodMember `gorm:"foreignKey:PodID" json:"members,omitempty"`
}

type PodMember struct {
	BaseModel

	PodID  string `gorm:"size:36;not null;uniqueIndex:idx_pod_member,priority:1" json:"pod_id"`
	UserID string `gorm:"size:36;not null;uniqueIndex:idx_pod_member,priority:2;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// WorkoutLog is a completed workout reported by a client.
type WorkoutLog struct {
	BaseModel

	UserID      string    `gorm:"size:36;index;not null" json:"user_id"`
	Title       string    `gorm:"size:255" json:"title"`
	CompletedAt time.Time `gorm:"index;not null" json:"completed_at"`
}
