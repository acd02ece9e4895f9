package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitos/notify/internal/models"
)

// Idempotency scopes.
const (
	ScopeReminder      = "reminder"
	ScopeCheckin       = "checkin"
	ScopePodDigest     = "pod_digest"
	ScopeReviewRequest = "review_request"
	ScopePush          = "push"
)

// IdempotencyStore records which triggering events have already produced a
// notification. A claim is a single insert against the key's primary key, so
// concurrent claimers race in the database and exactly one wins.
type IdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIdempotencyStore constructs an IdempotencyStore.
func NewIdempotencyStore(db *gorm.DB) (*IdempotencyStore, error) {
	if db == nil {
		return nil, errors.New("idempotency store: db is required")
	}
	return &IdempotencyStore{db: db, now: time.Now}, nil
}

// Claim marks key as handled for ttl and reports whether this caller won it.
// An expired key may be claimed again.
func (s *IdempotencyStore) Claim(ctx context.Context, key, scope string, ttl time.Duration) (bool, error) {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("idempotency store: key is required")
	}

	now := s.now().UTC()
	record := models.IdempotencyKey{
		Key:       key,
		Scope:     scope,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Create(&record).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, fmt.Errorf("idempotency store: claim %s: %w", key, err)
	}

	// Take over the key only when the previous claim has lapsed.
	result := s.db.WithContext(ctx).
		Model(&models.IdempotencyKey{}).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Where("expires_at <= ?", now).
		Updates(map[string]any{
			"scope":      scope,
			"expires_at": record.ExpiresAt,
			"created_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("idempotency store: reclaim %s: %w", key, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Release forgets key so the event can be handled again.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	ctx = ensureContext(ctx)
	if err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Delete(&models.IdempotencyKey{}).Error; err != nil {
		return fmt.Errorf("idempotency store: release %s: %w", key, err)
	}
	return nil
}

// Claimed reports whether key is currently held.
func (s *IdempotencyStore) Claimed(ctx context.Context, key string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.IdempotencyKey{}).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Where("expires_at > ?", s.now().UTC()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("idempotency store: lookup %s: %w", key, err)
	}
	return count > 0, nil
}

// PurgeExpired deletes lapsed keys and returns how many were removed.
func (s *IdempotencyStore) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.IdempotencyKey{})
	if result.Error != nil {
		return 0, fmt.Errorf("idempotency store: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
