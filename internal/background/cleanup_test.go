package background

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/steeldesk/internal/metrics"
	"github.com/BradenHooton/steeldesk/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunCleanup(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())
	limiter.Check("198.51.100.1", start)
	limiter.Check("198.51.100.2", start)
	limiter.Check("198.51.100.3", start.Add(10*time.Minute))

	m := metrics.New(prometheus.NewRegistry())
	cm := NewCleanupManager(limiter, m, newTestLogger(), time.Minute)
	cm.now = func() time.Time { return start.Add(16 * time.Minute) }

	cm.runCleanup()

	assert.Equal(t, 1, limiter.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RateLimitSweptTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitTrackedKeys))
}

func TestCleanupManager_NilMetrics(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())
	cm := NewCleanupManager(limiter, nil, newTestLogger(), time.Minute)

	assert.NotPanics(t, cm.runCleanup)
}

func TestCleanupManager_StartStops(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())
	cm := NewCleanupManager(limiter, nil, newTestLogger(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StartHonoursContext(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())
	cm := NewCleanupManager(limiter, nil, newTestLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager ignored context cancellation")
	}
}

func TestCleanupManager_NonPositiveIntervalUsesDefault(t *testing.T) {
	limiter := ratelimit.NewFixedWindow(ratelimit.DefaultConfig())

	for _, interval := range []time.Duration{0, -time.Second} {
		cm := NewCleanupManager(limiter, nil, newTestLogger(), interval)
		assert.Equal(t, DefaultInterval, cm.interval)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NotPanics(t, func() { cm.Start(ctx) })
	}
}
