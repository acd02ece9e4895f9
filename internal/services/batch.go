package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// queuedNotification is a notification guarded by an idempotency key.
type queuedNotification struct {
	key   string
	input CreateNotificationInput
}

type batchOutcome struct {
	sent       int
	duplicates int
	errors     []string
}

// queueBatch claims each item's key, bulk inserts the winners and releases
// the keys of rows that failed to insert so a later run can retry them.
func queueBatch(ctx context.Context, notifications *NotificationService, idempotency *IdempotencyStore, log *zap.Logger, scope string, ttl time.Duration, items []queuedNotification) batchOutcome {
	var out batchOutcome
	claimed := make([]queuedNotification, 0, len(items))
	for _, item := range items {
		won, err := idempotency.Claim(ctx, item.key, scope, ttl)
		if err != nil {
			out.errors = append(out.errors, fmt.Sprintf("%s: %v", item.key, err))
			continue
		}
		if !won {
			out.duplicates++
			continue
		}
		claimed = append(claimed, item)
	}
	if len(claimed) == 0 {
		return out
	}

	inputs := make([]CreateNotificationInput, len(claimed))
	for i, item := range claimed {
		inputs[i] = item.input
	}
	stored, failures := notifications.CreateBatch(ctx, inputs)
	out.sent = len(stored)

	for _, failure := range failures {
		key := claimed[failure.Index].key
		out.errors = append(out.errors, fmt.Sprintf("%s: %v", key, failure.Err))
		if err := idempotency.Release(ctx, key); err != nil {
			log.Warn("release claim failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out
}
