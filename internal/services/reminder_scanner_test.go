package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/database/testutil"
	"github.com/fitos/notify/internal/models"
)

func newTestReminderScanner(t *testing.T, db *gorm.DB, now time.Time) *ReminderScanner {
	t.Helper()
	prefs, err := NewPreferenceService(db)
	require.NoError(t, err)
	devices, err := NewDeviceService(db)
	require.NoError(t, err)

	scanner, err := NewReminderScanner(db, newTestNotificationService(t, db), prefs, devices, newTestIdempotencyStore(t, db))
	require.NoError(t, err)
	scanner.now = fixedClock(now)
	return scanner
}

func TestReminderScannerWindows(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "client-1")

	at61 := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(61*time.Minute), nil)
	at5930 := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentConfirmed, now.Add(59*time.Minute+30*time.Second), nil)
	at63 := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(63*time.Minute), nil)

	scanner := newTestReminderScanner(t, db, now)
	ctx := context.Background()

	due60, err := scanner.DueAppointments(ctx, now, 60)
	require.NoError(t, err)
	due15, err := scanner.DueAppointments(ctx, now, 15)
	require.NoError(t, err)

	ids60 := map[string]bool{}
	for _, appt := range due60 {
		ids60[appt.ID] = true
	}
	require.True(t, ids60[at61.ID])
	require.True(t, ids60[at5930.ID])
	require.False(t, ids60[at63.ID])
	require.Empty(t, due15)
}

func TestReminderScannerQueuesOncePerLead(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "client-1", "client-2", "client-3")
	seedDevice(t, db, clients[0].ID, "tok-1")
	seedDevice(t, db, clients[2].ID, "tok-3")
	seedPreference(t, db, clients[2].ID, func(p *models.NotificationPreference) { p.Reminder15Enabled = false })

	appt60 := seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(time.Hour), nil)
	seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentConfirmed, now.Add(15*time.Minute), nil)
	noToken := seedAppointment(t, db, trainer.ID, clients[1].ID, models.AppointmentBooked, now.Add(15*time.Minute), nil)
	seedAppointment(t, db, trainer.ID, clients[2].ID, models.AppointmentBooked, now.Add(15*time.Minute), nil)
	seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentCancelled, now.Add(time.Hour), nil)

	scanner := newTestReminderScanner(t, db, now)
	ctx := context.Background()

	result, err := scanner.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent60)
	require.Equal(t, 1, result.Sent15)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], noToken.ID)
	require.Equal(t, now, result.CheckedAt)

	var reminder models.Notification
	require.NoError(t, db.Where("type = ?", models.NotificationTypeReminder60).First(&reminder).Error)
	require.Equal(t, clients[0].ID, reminder.UserID)
	require.Equal(t, "/appointments/"+appt60.ID, reminder.DeepLink)
	require.Contains(t, reminder.Body, "First-trainer-1 Last")
	require.Contains(t, reminder.Body, "3:00 PM")

	// A second scan inside the same window queues nothing new.
	scanner.now = fixedClock(now.Add(time.Minute))
	result, err = scanner.Scan(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Sent60)
	require.Zero(t, result.Sent15)
	require.EqualValues(t, 2, countRows(t, db, &models.Notification{}, ""))
}

func TestReminderScannerKeepsScanningAfterFailedLead(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	trainer, clients := seedTrainerWithClients(t, db, "trainer-1", "client-1")
	seedDevice(t, db, clients[0].ID, "tok-1")
	seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(time.Hour), nil)
	seedAppointment(t, db, trainer.ID, clients[0].ID, models.AppointmentBooked, now.Add(15*time.Minute), nil)

	// Fail only the first appointment query, which serves the 60-minute lead.
	const hook = "test:fail_first_appointment_query"
	failed := false
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "appointments" && !failed {
			failed = true
			_ = tx.AddError(errors.New("connection reset"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove(hook) })

	scanner := newTestReminderScanner(t, db, now)
	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Sent60)
	require.Equal(t, 1, result.Sent15)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "lead 60")
	require.Contains(t, result.Errors[0], "connection reset")
	require.Equal(t, now, result.CheckedAt)
}
