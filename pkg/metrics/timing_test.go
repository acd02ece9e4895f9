package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTimeLogsSlowOperations(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	log := zap.New(core)

	elapsed, err := Time(log, "scan", time.Millisecond, func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	require.Equal(t, 1, recorded.FilterMessage("slow operation").Len())
	require.Equal(t, "scan", recorded.All()[0].ContextMap()["operation"])
}

func TestTimeReturnsErrorWithoutLoggingFastCalls(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	boom := errors.New("boom")

	_, err := Time(zap.New(core), "fast", time.Minute, func() error { return boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, recorded.Len())
}
