package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/internal/push"
	apperrors "github.com/fitos/notify/pkg/errors"
)

func newTestDispatcher(t *testing.T, db *gorm.DB, gateway push.Gateway, counter cache.Store, now time.Time) *PushDispatcher {
	t.Helper()
	prefs, err := NewPreferenceService(db)
	require.NoError(t, err)
	devices, err := NewDeviceService(db)
	require.NoError(t, err)

	dispatcher, err := NewPushDispatcher(db, prefs, devices, newTestIdempotencyStore(t, db), gateway, counter)
	require.NoError(t, err)
	dispatcher.now = fixedClock(now)
	return dispatcher
}

func dispatchRequest(userID string) DispatchRequest {
	return DispatchRequest{
		UserID: userID,
		Title:  "Session in 1 hour",
		Body:   "Strength Session with Sam starts at 3:00 PM.",
		Type:   models.NotificationTypeReminder60,
	}
}

func TestPushDispatcherSendsThroughGateway(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	seedPreference(t, db, "user-1", nil)
	seedDevice(t, db, "user-1", "device-token")

	gateway := &fakeGateway{}
	dispatcher := newTestDispatcher(t, db, gateway, nil, noon)

	req := dispatchRequest("user-1")
	req.DeepLink = "/appointments/a1"
	result, err := dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)
	require.Equal(t, models.ChannelPush, result.Channel)
	require.NotNil(t, result.GatewayMessageID)
	require.NotEmpty(t, result.LogID)

	require.Len(t, gateway.messages, 1)
	require.Equal(t, "device-token", gateway.messages[0].Token)
	require.Equal(t, "/appointments/a1", gateway.messages[0].Data["deep_link"])

	var entry models.NotificationLog
	require.NoError(t, db.First(&entry, "id = ?", result.LogID).Error)
	require.Equal(t, models.ChannelPush, entry.Channel)
	require.NotNil(t, entry.GatewayMessageID)
}

func TestPushDispatcherFallsBackToLocal(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	dispatcher := newTestDispatcher(t, db, &fakeGateway{}, nil, noon)
	result, err := dispatcher.Dispatch(context.Background(), dispatchRequest("no-token"))
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)
	require.Equal(t, models.ChannelLocal, result.Channel)
	require.Nil(t, result.GatewayMessageID)

	seedDevice(t, db, "bad-token-user", "stale")
	dispatcher = newTestDispatcher(t, db, &fakeGateway{err: push.ErrInvalidToken}, nil, noon)
	result, err = dispatcher.Dispatch(context.Background(), dispatchRequest("bad-token-user"))
	require.NoError(t, err)
	require.Equal(t, models.ChannelLocal, result.Channel)
	require.Zero(t, countRows(t, db, &models.DeviceToken{}, "token = ?", "stale"))
}

func TestPushDispatcherQuietHours(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", nil)

	late := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	dispatcher := newTestDispatcher(t, db, nil, nil, late)
	result, err := dispatcher.Dispatch(context.Background(), dispatchRequest("user-1"))
	require.NoError(t, err)
	require.Equal(t, DispatchSkipped, result.Status)
	require.Equal(t, SkipQuietHours, result.Reason)
	require.Zero(t, countRows(t, db, &models.NotificationLog{}, ""))

	// No preference row means no suppression.
	result, err = dispatcher.Dispatch(context.Background(), dispatchRequest("user-2"))
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)
}

func TestPushDispatcherTypeDisabled(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", func(p *models.NotificationPreference) {
		p.Reminder60Enabled = false
	})

	dispatcher := newTestDispatcher(t, db, nil, nil, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	result, err := dispatcher.Dispatch(context.Background(), dispatchRequest("user-1"))
	require.NoError(t, err)
	require.Equal(t, SkipTypeDisabled, result.Reason)
}

func TestPushDispatcherDailyCap(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", nil)
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Yesterday's sends do not count.
	require.NoError(t, db.Create(&models.NotificationLog{
		UserID: "user-1", SentAt: noon.Add(-24 * time.Hour), Type: "checkin",
		Title: "old", Body: "old", Channel: models.ChannelLocal,
	}).Error)

	dispatcher := newTestDispatcher(t, db, nil, nil, noon)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		result, err := dispatcher.Dispatch(ctx, dispatchRequest("user-1"))
		require.NoError(t, err)
		require.Equal(t, DispatchSent, result.Status, "dispatch %d", i+1)
	}

	result, err := dispatcher.Dispatch(ctx, dispatchRequest("user-1"))
	require.NoError(t, err)
	require.Equal(t, DispatchSkipped, result.Status)
	require.Equal(t, SkipDailyLimit, result.Reason)
	require.EqualValues(t, 3, countRows(t, db, &models.NotificationLog{}, "user_id = ? AND sent_at >= ?", "user-1", startOfDay(noon)))
}

func TestPushDispatcherDailyCapWithCounter(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", func(p *models.NotificationPreference) { p.MaxDaily = 2 })
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	store := cache.NewDatabaseStore(db)
	dispatcher := newTestDispatcher(t, db, nil, store, noon)

	ctx := context.Background()
	key := fmt.Sprintf("push:daily:%s:%s", "user-1", "2026-03-02")
	// Two reservations already taken by a concurrent dispatcher.
	for i := 0; i < 2; i++ {
		_, _, err := store.IncrementWithTTL(ctx, key, time.Hour)
		require.NoError(t, err)
	}

	result, err := dispatcher.Dispatch(ctx, dispatchRequest("user-1"))
	require.NoError(t, err)
	require.Equal(t, SkipDailyLimit, result.Reason)
}

func TestPushDispatcherDuplicatesDoNotUseDailySlots(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", func(p *models.NotificationPreference) { p.MaxDaily = 3 })
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	store := cache.NewDatabaseStore(db)
	dispatcher := newTestDispatcher(t, db, nil, store, noon)
	ctx := context.Background()

	req := dispatchRequest("user-1")
	req.SourceID = "appt-1"
	for i, want := range []string{DispatchSent, DispatchSkipped, DispatchSkipped} {
		result, err := dispatcher.Dispatch(ctx, req)
		require.NoError(t, err)
		require.Equal(t, want, result.Status, "attempt %d", i+1)
		if want == DispatchSkipped {
			require.Equal(t, SkipDuplicate, result.Reason)
		}
	}

	other := dispatchRequest("user-1")
	other.SourceID = "appt-2"
	result, err := dispatcher.Dispatch(ctx, other)
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)

	value, found, err := store.Get(ctx, "push:daily:user-1:2026-03-02")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(value))
	require.EqualValues(t, 2, countRows(t, db, &models.NotificationLog{}, "user_id = ?", "user-1"))
}

func TestPushDispatcherFailedLogWriteReturnsSlot(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	seedPreference(t, db, "user-1", func(p *models.NotificationPreference) { p.MaxDaily = 1 })
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	store := cache.NewDatabaseStore(db)
	dispatcher := newTestDispatcher(t, db, nil, store, noon)
	ctx := context.Background()

	const hook = "test:fail_notification_logs"
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "notification_logs" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	req := dispatchRequest("user-1")
	req.SourceID = "appt-1"
	_, err := dispatcher.Dispatch(ctx, req)
	require.Error(t, err)

	require.NoError(t, db.Callback().Create().Remove(hook))

	// The retry is neither a duplicate nor over the cap of one.
	result, err := dispatcher.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)
	require.EqualValues(t, 1, countRows(t, db, &models.NotificationLog{}, "user_id = ?", "user-1"))
}

func TestPushDispatcherSkipsDuplicates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	dispatcher := newTestDispatcher(t, db, nil, nil, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	req := dispatchRequest("user-1")
	req.SourceID = "appt-1"
	ctx := context.Background()

	result, err := dispatcher.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DispatchSent, result.Status)

	result, err = dispatcher.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, SkipDuplicate, result.Reason)
	require.EqualValues(t, 1, countRows(t, db, &models.NotificationLog{}, "source_id = ?", "appt-1"))
}

func TestPushDispatcherValidatesInput(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	dispatcher := newTestDispatcher(t, db, nil, nil, time.Now())

	_, err := dispatcher.Dispatch(context.Background(), DispatchRequest{UserID: "u", Type: "checkin"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Contains(t, err.Error(), "title")
}
