package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/logger"
)

const (
	// ReviewDelay is how long after completion a review is requested.
	ReviewDelay = 2 * time.Hour
	// ReviewTolerance is the half-width of the completion window scanned per run.
	ReviewTolerance = 15 * time.Minute

	reviewKeyTTL = 30 * 24 * time.Hour
)

// ReviewRequest optionally targets a single appointment, as sent by the
// appointment lifecycle hook.
type ReviewRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// ReviewResult summarises a review request run.
type ReviewResult struct {
	AppointmentsProcessed int      `json:"appointments_processed"`
	NotificationsSent     int      `json:"notifications_sent"`
	Errors                []string `json:"errors,omitempty"`
}

// ReviewRequestBatcher asks clients to review a session shortly after it ends.
type ReviewRequestBatcher struct {
	db            *gorm.DB
	notifications *NotificationService
	preferences   *PreferenceService
	idempotency   *IdempotencyStore
	log           *zap.Logger
	now           func() time.Time
}

// NewReviewRequestBatcher constructs a ReviewRequestBatcher.
func NewReviewRequestBatcher(db *gorm.DB, notifications *NotificationService, preferences *PreferenceService, idempotency *IdempotencyStore) (*ReviewRequestBatcher, error) {
	if db == nil {
		return nil, errors.New("review request batcher: db is required")
	}
	if notifications == nil || preferences == nil || idempotency == nil {
		return nil, errors.New("review request batcher: dependencies are required")
	}
	return &ReviewRequestBatcher{
		db:            db,
		notifications: notifications,
		preferences:   preferences,
		idempotency:   idempotency,
		log:           logger.WithModule("reviews"),
		now:           time.Now,
	}, nil
}

// Run requests reviews for appointments completed about two hours ago, or
// for the single appointment named in req.
func (b *ReviewRequestBatcher) Run(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	ctx = ensureContext(ctx)
	if id := strings.TrimSpace(req.AppointmentID); id != "" {
		return b.runOne(ctx, id)
	}

	now := b.now().UTC()
	target := now.Add(-ReviewDelay)
	var appts []models.Appointment
	if err := b.db.WithContext(ctx).
		Preload("Trainer").
		Where("status = ?", models.AppointmentCompleted).
		Where("completed_at >= ? AND completed_at <= ?", target.Add(-ReviewTolerance), target.Add(ReviewTolerance)).
		Order("completed_at ASC").
		Find(&appts).Error; err != nil {
		return ReviewResult{}, fmt.Errorf("review request batcher: load appointments: %w", err)
	}

	clientIDs := make([]string, 0, len(appts))
	for _, appt := range appts {
		clientIDs = append(clientIDs, appt.ClientID)
	}
	prefs, err := b.preferences.FindMany(ctx, clientIDs)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review request batcher: %w", err)
	}

	items := make([]queuedNotification, 0, len(appts))
	for _, appt := range appts {
		if !prefs[appt.ClientID].TypeEnabled(models.NotificationTypeReviewRequest) {
			continue
		}
		items = append(items, queuedNotification{
			key:   "review:" + appt.ID,
			input: reviewNotification(appt),
		})
	}

	outcome := queueBatch(ctx, b.notifications, b.idempotency, b.log, ScopeReviewRequest, reviewKeyTTL, items)
	result := ReviewResult{
		AppointmentsProcessed: len(appts),
		NotificationsSent:     outcome.sent,
		Errors:                outcome.errors,
	}
	b.log.Info("review request batch finished",
		zap.Int("appointments", result.AppointmentsProcessed),
		zap.Int("sent", result.NotificationsSent))
	return result, nil
}

func (b *ReviewRequestBatcher) runOne(ctx context.Context, appointmentID string) (ReviewResult, error) {
	var appt models.Appointment
	if err := b.db.WithContext(ctx).
		Preload("Trainer").
		Where("id = ?", appointmentID).
		First(&appt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReviewResult{}, apperrors.NewNotFound("appointment not found")
		}
		return ReviewResult{}, fmt.Errorf("review request batcher: load appointment: %w", err)
	}
	if appt.Status != models.AppointmentCompleted {
		return ReviewResult{}, apperrors.NewConflict("appointment is not completed")
	}

	result := ReviewResult{AppointmentsProcessed: 1}
	pref, err := b.preferences.Find(ctx, appt.ClientID)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review request batcher: %w", err)
	}
	if !pref.TypeEnabled(models.NotificationTypeReviewRequest) {
		return result, nil
	}

	key := "review:" + appt.ID
	won, err := b.idempotency.Claim(ctx, key, ScopeReviewRequest, reviewKeyTTL)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review request batcher: %w", err)
	}
	if !won {
		return ReviewResult{}, apperrors.NewConflict("review already requested")
	}

	if _, err := b.notifications.Create(ctx, reviewNotification(appt)); err != nil {
		if rerr := b.idempotency.Release(ctx, key); rerr != nil {
			b.log.Warn("release review claim failed", zap.String("key", key), zap.Error(rerr))
		}
		return ReviewResult{}, err
	}
	result.NotificationsSent = 1
	return result, nil
}

func reviewNotification(appt models.Appointment) CreateNotificationInput {
	service := defaultIfEmpty(appt.ServiceName, "session")
	return CreateNotificationInput{
		UserID:   appt.ClientID,
		Type:     models.NotificationTypeReviewRequest,
		Title:    "How was your session?",
		Body:     fmt.Sprintf("Tell us how your %s with %s went.", service, trainerName(appt.Trainer)),
		DeepLink: "/appointments/" + appt.ID + "/review",
		Metadata: map[string]any{
			"appointment_id": appt.ID,
			"trainer_id":     appt.TrainerID,
		},
	}
}
