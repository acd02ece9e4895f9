package models

import "time"

// IdempotencyKey marks a triggering event as handled. The primary key makes
// a second claim fail.
type IdempotencyKey struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	Scope     string    `gorm:"size:64;index" json:"scope"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
