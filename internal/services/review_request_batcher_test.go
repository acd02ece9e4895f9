package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
	apperrors "github.com/fitos/notify/pkg/errors"
)

func newTestReviewBatcher(t *testing.T, db *gorm.DB, now time.Time) *ReviewRequestBatcher {
	t.Helper()
	prefs, err := NewPreferenceService(db)
	require.NoError(t, err)
	batcher, err := NewReviewRequestBatcher(db, newTestNotificationService(t, db), prefs, newTestIdempotencyStore(t, db))
	require.NoError(t, err)
	batcher.now = fixedClock(now)
	return batcher
}

func TestReviewRequestBatcherWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "c1", "c2")

	inWindow := now.Add(-2 * time.Hour)
	tooRecent := now.Add(-30 * time.Minute)
	due := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentCompleted, inWindow.Add(-time.Hour), &inWindow)
	seedAppointment(t, db, trainer.ID, clients[1].ID, models.AppointmentCompleted, tooRecent.Add(-time.Hour), &tooRecent)

	batcher := newTestReviewBatcher(t, db, now)
	ctx := context.Background()

	result, err := batcher.Run(ctx, ReviewRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, result.AppointmentsProcessed)
	require.Equal(t, 1, result.NotificationsSent)

	var note models.Notification
	require.NoError(t, db.Where("type = ?", models.NotificationTypeReviewRequest).First(&note).Error)
	require.Equal(t, "/appointments/"+due.ID+"/review", note.DeepLink)

	// Overlapping runs do not request twice.
	batcher.now = fixedClock(now.Add(10 * time.Minute))
	result, err = batcher.Run(ctx, ReviewRequest{})
	require.NoError(t, err)
	require.Zero(t, result.NotificationsSent)
}

func TestReviewRequestBatcherSingleAppointment(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "c1")
	done := now.Add(-5 * time.Minute)
	completed := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentCompleted, now.Add(-time.Hour), &done)
	booked := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(time.Hour), nil)

	batcher := newTestReviewBatcher(t, db, now)
	ctx := context.Background()

	_, err := batcher.Run(ctx, ReviewRequest{AppointmentID: "missing"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = batcher.Run(ctx, ReviewRequest{AppointmentID: booked.ID})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	result, err := batcher.Run(ctx, ReviewRequest{AppointmentID: completed.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.NotificationsSent)

	_, err = batcher.Run(ctx, ReviewRequest{AppointmentID: completed.ID})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}
