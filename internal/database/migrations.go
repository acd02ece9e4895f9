package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
)

// Models lists every persistent model in migration order.
func Models() []any {
	return []any{
		&models.User{},
		&models.NotificationPreference{},
		&models.SendTimePrediction{},
		&models.Notification{},
		&models.NotificationEvent{},
		&models.NotificationLog{},
		&models.DeviceToken{},
		&models.Appointment{},
		&models.Pod{},
		&models.PodMember{},
		&models.WorkoutLog{},
		&models.NPSSurvey{},
		&models.NPSResponse{},
		&models.IdempotencyKey{},
		&models.CacheEntry{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
