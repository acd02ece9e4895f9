package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/push"
	"github.com/fitos/notify/internal/realtime"
)

// PipelineOptions carries the optional collaborators of the notification
// pipeline. Zero values select local fallbacks.
type PipelineOptions struct {
	Hub       *realtime.Hub
	Publisher EventPublisher
	// Gateway defaults to push.LogGateway.
	Gateway push.Gateway
	// Counter backs the atomic daily push cap when set.
	Counter cache.Store
	// CacheSweeper is purged by the retention job. Only stores without native
	// expiry need it.
	CacheSweeper ExpiringStore
	// OpenSource defaults to the notification_events table.
	OpenSource           OpenEventSource
	PredictorConcurrency int
	Retention            RetentionPolicy
}

// Pipeline is the full set of notification services sharing one database.
type Pipeline struct {
	Notifications  *NotificationService
	Preferences    *PreferenceService
	Devices        *DeviceService
	Idempotency    *IdempotencyStore
	Predictor      *SendTimePredictor
	Dispatcher     *PushDispatcher
	Reminders      *ReminderScanner
	Checkins       *CheckinBatcher
	PodDigests     *PodDigestBatcher
	NPS            *NPSBatcher
	ReviewRequests *ReviewRequestBatcher
	Retention      *RetentionService
}

// NewPipeline wires every pipeline service.
func NewPipeline(db *gorm.DB, opts PipelineOptions) (*Pipeline, error) {
	if db == nil {
		return nil, errors.New("pipeline: db is required")
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway = push.NewLogGateway()
	}

	p := &Pipeline{}
	var err error
	if p.Notifications, err = NewNotificationService(db, opts.Hub, opts.Publisher); err != nil {
		return nil, err
	}
	if p.Preferences, err = NewPreferenceService(db); err != nil {
		return nil, err
	}
	if p.Devices, err = NewDeviceService(db); err != nil {
		return nil, err
	}
	if p.Idempotency, err = NewIdempotencyStore(db); err != nil {
		return nil, err
	}
	if p.Predictor, err = NewSendTimePredictor(db, opts.OpenSource, opts.PredictorConcurrency); err != nil {
		return nil, err
	}
	if p.Dispatcher, err = NewPushDispatcher(db, p.Preferences, p.Devices, p.Idempotency, gateway, opts.Counter); err != nil {
		return nil, err
	}
	if p.Reminders, err = NewReminderScanner(db, p.Notifications, p.Preferences, p.Devices, p.Idempotency); err != nil {
		return nil, err
	}
	if p.Checkins, err = NewCheckinBatcher(db, p.Notifications, p.Preferences, p.Idempotency); err != nil {
		return nil, err
	}
	if p.PodDigests, err = NewPodDigestBatcher(db, p.Notifications, p.Preferences, p.Idempotency); err != nil {
		return nil, err
	}
	if p.NPS, err = NewNPSBatcher(db, p.Notifications, p.Preferences); err != nil {
		return nil, err
	}
	if p.ReviewRequests, err = NewReviewRequestBatcher(db, p.Notifications, p.Preferences, p.Idempotency); err != nil {
		return nil, err
	}
	if p.Retention, err = NewRetentionService(db, p.Idempotency, opts.CacheSweeper, opts.Retention); err != nil {
		return nil, err
	}
	return p, nil
}
