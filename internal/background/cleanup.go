package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/steeldesk/internal/metrics"
)

// DefaultInterval is used when a non-positive sweep interval is configured
const DefaultInterval = 5 * time.Minute

// Sweeper drops expired entries and reports how many are left
type Sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

// CleanupManager periodically removes expired sign-in rate limit windows
type CleanupManager struct {
	sweeper  Sweeper
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sweeper Sweeper,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CleanupManager{
		sweeper:  sweeper,
		metrics:  m,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps expired windows out of the limiter
func (cm *CleanupManager) runCleanup() {
	removed := cm.sweeper.Sweep(cm.now())
	remaining := cm.sweeper.Len()
	cm.metrics.ObserveSweep(removed, remaining)

	if removed > 0 {
		cm.logger.Info("rate limit sweep completed",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
