package models

import "time"

const (
	AppointmentBooked    = "booked"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// Appointment is a scheduled session between a trainer and a client.
type Appointment struct {
	BaseModel

	TrainerID   string     `gorm:"size:36;index;not null" json:"trainer_id"`
	Trainer     *User      `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
	ClientID    string     `gorm:"size:36;index;not null" json:"client_id"`
	Client      *User      `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ServiceName string     `gorm:"size:255" json:"service_name"`
	StartsAt    time.Time  `gorm:"index;not null" json:"starts_at"`
	Status      string     `gorm:"size:16;index;not null" json:"status"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at,omitempty"`
}

// Upcoming reports whether the appointment still expects attendance.
func (a *Appointment) Upcoming() bool {
	return a.Status == AppointmentBooked || a.Status == AppointmentConfirmed
}
