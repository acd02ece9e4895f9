package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/models"
	"github.com/fitos/notify/internal/push"
	apperrors "github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/logger"
	"github.com/fitos/notify/pkg/metrics"
)

// Dispatch outcomes.
const (
	DispatchSent    = "sent"
	DispatchSkipped = "skipped"

	SkipQuietHours   = "quiet_hours"
	SkipTypeDisabled = "type_disabled"
	SkipDailyLimit   = "daily_limit_reached"
	SkipDuplicate    = "duplicate"
)

const duplicateWindow = 7 * 24 * time.Hour

// DispatchRequest is a single push to a single user.
type DispatchRequest struct {
	UserID   string            `json:"user_id" validate:"required"`
	Title    string            `json:"title" validate:"required,max=255"`
	Body     string            `json:"body" validate:"required"`
	Type     string            `json:"type" validate:"required,max=64"`
	DeepLink string            `json:"deep_link,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	// SourceID identifies the triggering event. Dispatches repeating a
	// (type, source, user) triple are skipped as duplicates.
	SourceID string `json:"source_id,omitempty"`
}

// DispatchResult reports what happened to a dispatch request.
type DispatchResult struct {
	Status           string  `json:"status"`
	Reason           string  `json:"reason,omitempty"`
	Channel          string  `json:"channel,omitempty"`
	GatewayMessageID *string `json:"gateway_message_id,omitempty"`
	LogID            string  `json:"log_id,omitempty"`
}

// PushDispatcher applies a user's delivery policy and sends through the push
// gateway, falling back to the local channel when no token is registered.
type PushDispatcher struct {
	db          *gorm.DB
	preferences *PreferenceService
	devices     *DeviceService
	idempotency *IdempotencyStore
	gateway     push.Gateway
	counter     cache.Store
	log         *zap.Logger
	now         func() time.Time
}

// NewPushDispatcher constructs a PushDispatcher. gateway may be nil, in which
// case every delivery is local. counter is optional; when set, the daily cap
// also reserves a slot atomically in the store so concurrent dispatches for
// one user cannot overshoot it.
func NewPushDispatcher(db *gorm.DB, preferences *PreferenceService, devices *DeviceService, idempotency *IdempotencyStore, gateway push.Gateway, counter cache.Store) (*PushDispatcher, error) {
	if db == nil {
		return nil, errors.New("push dispatcher: db is required")
	}
	if preferences == nil || devices == nil || idempotency == nil {
		return nil, errors.New("push dispatcher: preference, device and idempotency services are required")
	}
	return &PushDispatcher{
		db:          db,
		preferences: preferences,
		devices:     devices,
		idempotency: idempotency,
		gateway:     gateway,
		counter:     counter,
		log:         logger.WithModule("dispatcher"),
		now:         time.Now,
	}, nil
}

// Dispatch evaluates policy for req and delivers it when allowed. Policy
// skips are results, not errors.
func (d *PushDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	ctx = ensureContext(ctx)
	req, err := normaliseDispatch(req)
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()

	pref, err := d.preferences.Find(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("push dispatcher: %w", err)
	}

	if pref != nil {
		if reason := d.policyReason(pref, req, now); reason != "" {
			return d.skip(req, reason), nil
		}
	}

	var claimKey string
	if req.SourceID != "" {
		claimKey = fmt.Sprintf("push:%s:%s:%s", req.Type, req.SourceID, req.UserID)
		won, err := d.idempotency.Claim(ctx, claimKey, ScopePush, duplicateWindow)
		if err != nil {
			return nil, fmt.Errorf("push dispatcher: %w", err)
		}
		if !won {
			return d.skip(req, SkipDuplicate), nil
		}
	}

	var slot *capReservation
	if pref != nil {
		var capped bool
		slot, capped = d.reserveDailySlot(ctx, pref, req.UserID, now)
		if capped {
			d.giveBack(ctx, slot, claimKey)
			return d.skip(req, SkipDailyLimit), nil
		}
	}

	channel, gatewayID := d.deliver(ctx, req)

	entry := models.NotificationLog{
		UserID:           req.UserID,
		SentAt:           now,
		Type:             req.Type,
		Title:            req.Title,
		Body:             req.Body,
		Channel:          channel,
		GatewayMessageID: gatewayID,
		SourceID:         req.SourceID,
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		d.giveBack(ctx, slot, claimKey)
		metrics.PushDispatches.WithLabelValues("failed", "log_write").Inc()
		return nil, fmt.Errorf("push dispatcher: write log: %w", err)
	}

	metrics.PushDispatches.WithLabelValues(DispatchSent, channel).Inc()
	d.log.Debug("push dispatched",
		zap.String("user_id", req.UserID),
		zap.String("type", req.Type),
		zap.String("channel", channel))

	return &DispatchResult{
		Status:           DispatchSent,
		Channel:          channel,
		GatewayMessageID: gatewayID,
		LogID:            entry.ID,
	}, nil
}

// policyReason returns the quiet-hours or per-type rule that blocks req, or
// "" when neither does. The daily cap is checked separately once the
// duplicate claim is held.
func (d *PushDispatcher) policyReason(pref *models.NotificationPreference, req DispatchRequest, now time.Time) string {
	start, startErr := ParseClock(pref.QuietHoursStart)
	end, endErr := ParseClock(pref.QuietHoursEnd)
	if startErr == nil && endErr == nil {
		if InQuietHours(start, end, minuteOfDay(now)) {
			return SkipQuietHours
		}
	} else {
		d.log.Warn("ignoring malformed quiet hours",
			zap.String("user_id", req.UserID),
			zap.String("start", pref.QuietHoursStart),
			zap.String("end", pref.QuietHoursEnd))
	}

	if !pref.PushEnabled || !pref.TypeEnabled(req.Type) {
		return SkipTypeDisabled
	}
	return ""
}

// capReservation is a daily counter slot taken in the cache store.
type capReservation struct {
	key string
}

// reserveDailySlot reports whether today's cap is already used up. With a
// counter store it also reserves a slot; the returned reservation must be
// given back unless a log row is appended.
func (d *PushDispatcher) reserveDailySlot(ctx context.Context, pref *models.NotificationPreference, userID string, now time.Time) (*capReservation, bool) {
	limit := pref.MaxDaily
	if limit <= 0 {
		limit = models.DefaultMaxDaily
	}
	sent, slot, err := d.sentToday(ctx, userID, now)
	if err != nil {
		// Fail open.
		d.log.Warn("daily cap lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return slot, sent >= int64(limit)
}

// sentToday returns how many dispatches already count against today's cap.
// With a counter store the reservation made here counts too, so the value is
// the larger of the log count and the reservations before this one.
func (d *PushDispatcher) sentToday(ctx context.Context, userID string, now time.Time) (int64, *capReservation, error) {
	midnight := startOfDay(now)

	var logged int64
	if err := d.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("user_id = ? AND sent_at >= ?", userID, midnight).
		Count(&logged).Error; err != nil {
		return 0, nil, err
	}
	if d.counter == nil {
		return logged, nil, nil
	}

	key := fmt.Sprintf("push:daily:%s:%s", userID, midnight.Format("2006-01-02"))
	reserved, _, err := d.counter.IncrementWithTTL(ctx, key, midnight.Add(24*time.Hour).Sub(now))
	if err != nil {
		d.log.Warn("daily counter unavailable", zap.String("key", key), zap.Error(err))
		return logged, nil, nil
	}
	return max(logged, reserved-1), &capReservation{key: key}, nil
}

// giveBack returns a reserved cap slot and releases the duplicate claim for a
// dispatch that ended without a log row.
func (d *PushDispatcher) giveBack(ctx context.Context, slot *capReservation, claimKey string) {
	if slot != nil && d.counter != nil {
		if err := d.counter.Decrement(ctx, slot.key); err != nil {
			d.log.Warn("return daily slot failed", zap.String("key", slot.key), zap.Error(err))
		}
	}
	if claimKey != "" {
		if err := d.idempotency.Release(ctx, claimKey); err != nil {
			d.log.Warn("release claim failed", zap.String("key", claimKey), zap.Error(err))
		}
	}
}

func (d *PushDispatcher) deliver(ctx context.Context, req DispatchRequest) (string, *string) {
	if d.gateway == nil {
		return models.ChannelLocal, nil
	}

	device, err := d.devices.Latest(ctx, req.UserID)
	if err != nil {
		d.log.Warn("device lookup failed", zap.String("user_id", req.UserID), zap.Error(err))
		return models.ChannelLocal, nil
	}
	if device == nil {
		return models.ChannelLocal, nil
	}

	data := make(map[string]string, len(req.Data)+2)
	for k, v := range req.Data {
		data[k] = v
	}
	data["type"] = req.Type
	if req.DeepLink != "" {
		data["deep_link"] = req.DeepLink
	}

	messageID, err := d.gateway.Send(ctx, push.Message{
		Token:    device.Token,
		Platform: device.Platform,
		Title:    req.Title,
		Body:     req.Body,
		Data:     data,
	})
	if err != nil {
		d.log.Warn("push gateway send failed",
			zap.String("user_id", req.UserID),
			zap.String("platform", device.Platform),
			zap.Error(err))
		if errors.Is(err, push.ErrInvalidToken) {
			if ferr := d.devices.Forget(ctx, device.Token); ferr != nil {
				d.log.Warn("forget token failed", zap.Error(ferr))
			}
		}
		return models.ChannelLocal, nil
	}
	return models.ChannelPush, &messageID
}

func (d *PushDispatcher) skip(req DispatchRequest, reason string) *DispatchResult {
	metrics.PushDispatches.WithLabelValues(DispatchSkipped, reason).Inc()
	d.log.Debug("push skipped",
		zap.String("user_id", req.UserID),
		zap.String("type", req.Type),
		zap.String("reason", reason))
	return &DispatchResult{Status: DispatchSkipped, Reason: reason}
}

func normaliseDispatch(req DispatchRequest) (DispatchRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	req.Type = strings.TrimSpace(req.Type)
	req.DeepLink = strings.TrimSpace(req.DeepLink)
	req.SourceID = strings.TrimSpace(req.SourceID)

	var missing []string
	if req.UserID == "" {
		missing = append(missing, "user_id")
	}
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Body == "" {
		missing = append(missing, "body")
	}
	if req.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return req, apperrors.NewBadRequest("missing required fields: " + strings.Join(missing, ", "))
	}
	return req, nil
}
