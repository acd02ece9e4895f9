package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
)

func TestPodDigestBatcherNotifiesActivePods(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "c1", "c2", "c3", "c4")

	active := models.Pod{Name: "Morning Crew", TrainerID: trainer.ID}
	quiet := models.Pod{Name: "Night Owls", TrainerID: trainer.ID}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&quiet).Error)
	for _, member := range []models.PodMember{
		{PodID: active.ID, UserID: clients[0].ID},
		{PodID: active.ID, UserID: clients[1].ID},
		{PodID: active.ID, UserID: clients[2].ID},
		{PodID: quiet.ID, UserID: clients[3].ID},
	} {
		require.NoError(t, db.Create(&member).Error)
	}
	seedPreference(t, db, clients[2].ID, func(p *models.NotificationPreference) { p.PodDigestEnabled = false })

	for _, log := range []models.WorkoutLog{
		{UserID: clients[0].ID, Title: "Run", CompletedAt: now.Add(-24 * time.Hour)},
		{UserID: clients[0].ID, Title: "Lift", CompletedAt: now.Add(-48 * time.Hour)},
		{UserID: clients[3].ID, Title: "Old", CompletedAt: now.Add(-10 * 24 * time.Hour)},
	} {
		require.NoError(t, db.Create(&log).Error)
	}

	prefs, err := NewPreferenceService(db)
	require.NoError(t, err)
	batcher, err := NewPodDigestBatcher(db, newTestNotificationService(t, db), prefs, newTestIdempotencyStore(t, db))
	require.NoError(t, err)
	batcher.now = fixedClock(now)

	ctx := context.Background()
	result, err := batcher.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.PodsProcessed)
	require.Equal(t, 2, result.NotificationsSent)

	var note models.Notification
	require.NoError(t, db.Where("user_id = ?", clients[1].ID).First(&note).Error)
	require.Equal(t, "Morning Crew weekly recap", note.Title)
	require.Contains(t, note.Body, "2 workouts")
	require.Contains(t, note.Body, "1 of 3 members")

	result, err = batcher.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, result.NotificationsSent)
}
