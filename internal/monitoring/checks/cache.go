package checks

import (
	"context"
	"time"

	"github.com/fitos/notify/internal/monitoring"
)

const defaultCacheTimeout = 2 * time.Second

// Pinger is satisfied by the cache stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache returns a readiness probe for the shared cache. backend names the
// store in the probe details ("redis" or "database").
func Cache(store Pinger, backend string, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "cache unavailable",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultCacheTimeout))
		defer cancel()

		if err := store.Ping(probeCtx); err != nil {
			// Counters fail open, so a dead cache degrades rather than downs.
			result := monitoring.ResultFromError("cache", err, time.Since(start))
			result.Status = monitoring.StatusDegraded
			result.Details = backend + ": " + result.Details
			return result
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  backend,
			Duration: time.Since(start),
		}
	})
}
