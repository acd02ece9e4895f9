package models

import "time"

const (
	RoleTrainer = "trainer"
	RoleClient  = "client"
	RoleAdmin   = "admin"
)

// User is a trainer or client profile. Identity itself lives with the auth
// provider; this row carries what the notification pipeline needs.
type User struct {
	BaseModel

	Email     string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName string `gorm:"size:128" json:"first_name"`
	LastName  string `gorm:"size:128" json:"last_name"`
	Role      string `gorm:"size:16;index;not null" json:"role"`

	// TrainerID links a client to the trainer coaching them.
	TrainerID *string `gorm:"size:36;index" json:"trainer_id,omitempty"`
	Trainer   *User   `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`

	Timezone     string     `gorm:"size:64;not null" json:"timezone"`
	LastActiveAt *time.Time `gorm:"index" json:"last_active_at,omitempty"`
}

// DisplayName returns the friendliest non-empty name for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Email
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
