package cache

import (
	"context"
	"time"
)

// Store is the shared cache used for counters, rate limits and short-lived locks.
type Store interface {
	// IncrementWithTTL increments key and returns the new value and the time
	// left in its window. The window starts with the first increment.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Decrement gives back one increment on a live counter. Missing or
	// expired counters are left alone and never go below zero.
	Decrement(ctx context.Context, key string) error
	// SetIfAbsent stores value only when key is missing or expired and
	// reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
