package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/pkg/logger"
)

// minLogRetention keeps at least today's and yesterday's logs so the daily
// cap always sees the whole day.
const minLogRetention = 48 * time.Hour

// RetentionPolicy sets how long each kind of row is kept.
type RetentionPolicy struct {
	Logs          time.Duration
	Events        time.Duration
	Notifications time.Duration
}

// DefaultRetentionPolicy returns the retention applied when none is configured.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		Logs:          30 * 24 * time.Hour,
		Events:        2 * PredictionLookback,
		Notifications: 90 * 24 * time.Hour,
	}
}

// ExpiringStore is a cache that can drop its expired entries.
type ExpiringStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RetentionResult counts rows removed by a sweep.
type RetentionResult struct {
	Logs          int64 `json:"logs"`
	Events        int64 `json:"events"`
	Notifications int64 `json:"notifications"`
	Keys          int64 `json:"idempotency_keys"`
	CacheEntries  int64 `json:"cache_entries"`
}

// RetentionService prunes rows that have aged out.
type RetentionService struct {
	db          *gorm.DB
	idempotency *IdempotencyStore
	cache       ExpiringStore
	policy      RetentionPolicy
	log         *zap.Logger
	now         func() time.Time
}

// NewRetentionService constructs a RetentionService. cache may be nil.
func NewRetentionService(db *gorm.DB, idempotency *IdempotencyStore, cache ExpiringStore, policy RetentionPolicy) (*RetentionService, error) {
	if db == nil {
		return nil, errors.New("retention service: db is required")
	}
	if idempotency == nil {
		return nil, errors.New("retention service: idempotency store is required")
	}

	defaults := DefaultRetentionPolicy()
	if policy.Logs <= 0 {
		policy.Logs = defaults.Logs
	}
	policy.Logs = max(policy.Logs, minLogRetention)
	if policy.Events <= 0 {
		policy.Events = defaults.Events
	}
	if policy.Notifications <= 0 {
		policy.Notifications = defaults.Notifications
	}

	return &RetentionService{
		db:          db,
		idempotency: idempotency,
		cache:       cache,
		policy:      policy,
		log:         logger.WithModule("retention"),
		now:         time.Now,
	}, nil
}

// Sweep deletes expired rows. Every step runs; their errors are combined.
func (s *RetentionService) Sweep(ctx context.Context) (RetentionResult, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var (
		result RetentionResult
		errs   error
	)

	logs := s.db.WithContext(ctx).Where("sent_at < ?", now.Add(-s.policy.Logs)).Delete(&models.NotificationLog{})
	if logs.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("retention: notification logs: %w", logs.Error))
	}
	result.Logs = logs.RowsAffected

	events := s.db.WithContext(ctx).Where("occurred_at < ?", now.Add(-s.policy.Events)).Delete(&models.NotificationEvent{})
	if events.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("retention: notification events: %w", events.Error))
	}
	result.Events = events.RowsAffected

	notes := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, now.Add(-s.policy.Notifications)).
		Delete(&models.Notification{})
	if notes.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("retention: notifications: %w", notes.Error))
	}
	result.Notifications = notes.RowsAffected

	keys, err := s.idempotency.PurgeExpired(ctx)
	errs = multierr.Append(errs, err)
	result.Keys = keys

	if s.cache != nil {
		entries, err := s.cache.PurgeExpired(ctx)
		errs = multierr.Append(errs, err)
		result.CacheEntries = entries
	}

	s.log.Info("retention sweep finished",
		zap.Int64("logs", result.Logs),
		zap.Int64("events", result.Events),
		zap.Int64("notifications", result.Notifications),
		zap.Int64("idempotency_keys", result.Keys),
		zap.Int64("cache_entries", result.CacheEntries))
	return result, errs
}
