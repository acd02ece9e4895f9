package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/pkg/logger"
)

const weeklyKeyTTL = 8 * 24 * time.Hour

// CheckinResult summarises a weekly check-in run.
type CheckinResult struct {
	ClientsProcessed  int      `json:"clients_processed"`
	NotificationsSent int      `json:"notifications_sent"`
	Errors            []string `json:"errors,omitempty"`
}

// CheckinBatcher prompts every coached client for their weekly check-in.
type CheckinBatcher struct {
	db            *gorm.DB
	notifications *NotificationService
	preferences   *PreferenceService
	idempotency   *IdempotencyStore
	log           *zap.Logger
	now           func() time.Time
}

// NewCheckinBatcher constructs a CheckinBatcher.
func NewCheckinBatcher(db *gorm.DB, notifications *NotificationService, preferences *PreferenceService, idempotency *IdempotencyStore) (*CheckinBatcher, error) {
	if db == nil {
		return nil, errors.New("checkin batcher: db is required")
	}
	if notifications == nil || preferences == nil || idempotency == nil {
		return nil, errors.New("checkin batcher: dependencies are required")
	}
	return &CheckinBatcher{
		db:            db,
		notifications: notifications,
		preferences:   preferences,
		idempotency:   idempotency,
		log:           logger.WithModule("checkins"),
		now:           time.Now,
	}, nil
}

// Run queues one check-in prompt per eligible client for the current ISO week.
func (b *CheckinBatcher) Run(ctx context.Context) (CheckinResult, error) {
	ctx = ensureContext(ctx)
	week := isoWeek(b.now())

	var clients []models.User
	if err := b.db.WithContext(ctx).
		Preload("Trainer").
		Where("role = ? AND trainer_id IS NOT NULL", models.RoleClient).
		Order("id").
		Find(&clients).Error; err != nil {
		return CheckinResult{}, fmt.Errorf("checkin batcher: load clients: %w", err)
	}

	ids := make([]string, 0, len(clients))
	for _, client := range clients {
		ids = append(ids, client.ID)
	}
	prefs, err := b.preferences.FindMany(ctx, ids)
	if err != nil {
		return CheckinResult{}, fmt.Errorf("checkin batcher: %w", err)
	}

	items := make([]queuedNotification, 0, len(clients))
	for i := range clients {
		client := &clients[i]
		if !prefs[client.ID].TypeEnabled(models.NotificationTypeCheckin) {
			continue
		}
		items = append(items, queuedNotification{
			key: fmt.Sprintf("checkin:%s:%s", client.ID, week),
			input: CreateNotificationInput{
				UserID:   client.ID,
				Type:     models.NotificationTypeCheckin,
				Title:    "Weekly check-in",
				Body:     fmt.Sprintf("Hi %s, how did this week go? %s would love to hear from you.", firstName(client), trainerName(client.Trainer)),
				DeepLink: "/checkins/new",
				Metadata: map[string]any{"week": week, "trainer_id": *client.TrainerID},
			},
		})
	}

	outcome := queueBatch(ctx, b.notifications, b.idempotency, b.log, ScopeCheckin, weeklyKeyTTL, items)
	result := CheckinResult{
		ClientsProcessed:  len(items),
		NotificationsSent: outcome.sent,
		Errors:            outcome.errors,
	}
	b.log.Info("checkin batch finished",
		zap.String("week", week),
		zap.Int("clients", result.ClientsProcessed),
		zap.Int("sent", result.NotificationsSent),
		zap.Int("duplicates", outcome.duplicates))
	return result, nil
}
