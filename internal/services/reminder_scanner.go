package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/pkg/logger"
	"github.com/fitos/notify/pkg/metrics"
)

// ReminderTolerance is the half-width of the window around each lead time.
const ReminderTolerance = 2 * time.Minute

// reminderLeads are the lead times in minutes, scanned in this order.
var reminderLeads = []int{60, 15}

// ReminderScanResult summarises one scan.
type ReminderScanResult struct {
	Sent60    int       `json:"reminders_60"`
	Sent15    int       `json:"reminders_15"`
	Errors    []string  `json:"errors"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ReminderScanner queues reminders for appointments starting soon. Each
// (appointment, lead) pair produces at most one reminder across scans.
type ReminderScanner struct {
	db            *gorm.DB
	notifications *NotificationService
	preferences   *PreferenceService
	devices       *DeviceService
	idempotency   *IdempotencyStore
	log           *zap.Logger
	now           func() time.Time
}

// NewReminderScanner constructs a ReminderScanner.
func NewReminderScanner(db *gorm.DB, notifications *NotificationService, preferences *PreferenceService, devices *DeviceService, idempotency *IdempotencyStore) (*ReminderScanner, error) {
	if db == nil {
		return nil, errors.New("reminder scanner: db is required")
	}
	if notifications == nil || preferences == nil || devices == nil || idempotency == nil {
		return nil, errors.New("reminder scanner: dependencies are required")
	}
	return &ReminderScanner{
		db:            db,
		notifications: notifications,
		preferences:   preferences,
		devices:       devices,
		idempotency:   idempotency,
		log:           logger.WithModule("reminders"),
		now:           time.Now,
	}, nil
}

// Scan queues 60- and 15-minute reminders. Failures, including a failed
// query for one lead, are collected in the result and the remaining leads
// still run. The returned error is always nil.
func (r *ReminderScanner) Scan(ctx context.Context) (ReminderScanResult, error) {
	ctx = ensureContext(ctx)
	now := r.now().UTC()
	result := ReminderScanResult{Errors: []string{}, CheckedAt: now}

	for _, lead := range reminderLeads {
		sent, errs, err := r.scanLead(ctx, now, lead)
		metrics.RemindersSent.WithLabelValues(strconv.Itoa(lead)).Add(float64(sent))
		if err != nil {
			r.log.Warn("reminder lead scan failed", zap.Int("lead", lead), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("lead %d: %v", lead, err))
			continue
		}
		result.Errors = append(result.Errors, errs...)
		switch lead {
		case 60:
			result.Sent60 = sent
		case 15:
			result.Sent15 = sent
		}
	}

	r.log.Info("reminder scan finished",
		zap.Int("reminders_60", result.Sent60),
		zap.Int("reminders_15", result.Sent15),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// DueAppointments returns booked or confirmed appointments starting within
// ReminderTolerance of now+lead.
func (r *ReminderScanner) DueAppointments(ctx context.Context, now time.Time, lead int) ([]models.Appointment, error) {
	target := now.Add(time.Duration(lead) * time.Minute)
	var appts []models.Appointment
	if err := r.db.WithContext(ensureContext(ctx)).
		Preload("Trainer").
		Preload("Client").
		Where("status IN ?", []string{models.AppointmentBooked, models.AppointmentConfirmed}).
		Where("starts_at >= ? AND starts_at <= ?", target.Add(-ReminderTolerance), target.Add(ReminderTolerance)).
		Order("starts_at ASC").
		Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("reminder scanner: load appointments: %w", err)
	}
	return appts, nil
}

func (r *ReminderScanner) scanLead(ctx context.Context, now time.Time, lead int) (int, []string, error) {
	appts, err := r.DueAppointments(ctx, now, lead)
	if err != nil {
		return 0, nil, err
	}
	if len(appts) == 0 {
		return 0, nil, nil
	}

	clientIDs := make([]string, 0, len(appts))
	for _, appt := range appts {
		clientIDs = append(clientIDs, appt.ClientID)
	}
	prefs, err := r.preferences.FindMany(ctx, clientIDs)
	if err != nil {
		return 0, nil, fmt.Errorf("reminder scanner: %w", err)
	}
	withTokens, err := r.devices.UsersWithTokens(ctx, clientIDs)
	if err != nil {
		return 0, nil, fmt.Errorf("reminder scanner: %w", err)
	}

	notificationType := reminderType(lead)
	var (
		sent int
		errs []string
	)
	for _, appt := range appts {
		if !prefs[appt.ClientID].TypeEnabled(notificationType) {
			continue
		}
		if !withTokens[appt.ClientID] {
			errs = append(errs, fmt.Sprintf("appointment %s: no device token for client %s", appt.ID, appt.ClientID))
			continue
		}

		key := fmt.Sprintf("reminder:%s:%d", appt.ID, lead)
		won, err := r.idempotency.Claim(ctx, key, ScopeReminder, 24*time.Hour)
		if err != nil {
			errs = append(errs, fmt.Sprintf("appointment %s: %v", appt.ID, err))
			continue
		}
		if !won {
			continue
		}

		if _, err := r.notifications.Create(ctx, reminderNotification(appt, lead)); err != nil {
			if rerr := r.idempotency.Release(ctx, key); rerr != nil {
				r.log.Warn("release reminder claim failed", zap.String("key", key), zap.Error(rerr))
			}
			errs = append(errs, fmt.Sprintf("appointment %s: %v", appt.ID, err))
			continue
		}
		sent++
	}
	return sent, errs, nil
}

func reminderType(lead int) string {
	if lead == 15 {
		return models.NotificationTypeReminder15
	}
	return models.NotificationTypeReminder60
}

func reminderNotification(appt models.Appointment, lead int) CreateNotificationInput {
	service := defaultIfEmpty(appt.ServiceName, "session")
	trainer := trainerName(appt.Trainer)
	startsAt := appt.StartsAt.In(appt.Client.Location()).Format("3:04 PM")

	input := CreateNotificationInput{
		UserID:   appt.ClientID,
		Type:     reminderType(lead),
		DeepLink: "/appointments/" + appt.ID,
		Metadata: map[string]any{
			"appointment_id": appt.ID,
			"lead_minutes":   lead,
			"starts_at":      appt.StartsAt.UTC().Format(time.RFC3339),
		},
	}
	if lead == 15 {
		input.Title = "Starting in 15 minutes"
		input.Body = fmt.Sprintf("%s with %s starts at %s. Time to head over!", service, trainer, startsAt)
	} else {
		input.Title = "Session in 1 hour"
		input.Body = fmt.Sprintf("Your %s with %s starts at %s.", service, trainer, startsAt)
	}
	return input
}
