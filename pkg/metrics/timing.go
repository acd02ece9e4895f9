package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Time runs fn and logs a warning when it takes longer than threshold.
// The elapsed duration is returned alongside fn's error.
func Time(log *zap.Logger, name string, threshold time.Duration, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if log != nil && threshold > 0 && elapsed > threshold {
		log.Warn("slow operation",
			zap.String("operation", name),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold),
		)
	}
	return elapsed, err
}
