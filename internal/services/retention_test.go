package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
)

func TestRetentionServiceSweep(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Now().UTC()

	for _, sentAt := range []time.Time{now.Add(-40 * 24 * time.Hour), now.Add(-time.Hour)} {
		require.NoError(t, db.Create(&models.NotificationLog{
			UserID: "u1", SentAt: sentAt, Type: "checkin", Title: "t", Body: "b", Channel: models.ChannelLocal,
		}).Error)
	}
	require.NoError(t, db.Create(&models.NotificationEvent{UserID: "u1", Event: models.EventOpened, OccurredAt: now.Add(-365 * 24 * time.Hour)}).Error)
	require.NoError(t, db.Create(&models.NotificationEvent{UserID: "u1", Event: models.EventOpened, OccurredAt: now}).Error)

	idempotency := newTestIdempotencyStore(t, db)
	idempotency.now = fixedClock(now.Add(-2 * time.Hour))
	_, err := idempotency.Claim(context.Background(), "review:old", ScopeReviewRequest, time.Hour)
	require.NoError(t, err)
	idempotency.now = time.Now

	svc, err := NewRetentionService(db, idempotency, cache.NewDatabaseStore(db), RetentionPolicy{Logs: time.Hour})
	require.NoError(t, err)
	require.Equal(t, minLogRetention, svc.policy.Logs)

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Logs)
	require.EqualValues(t, 1, result.Events)
	require.EqualValues(t, 1, result.Keys)
	require.EqualValues(t, 1, countRows(t, db, &models.NotificationLog{}, ""))
}
