// Package ratelimit throttles sign-in submissions per client network address.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Result is the outcome of a single limiter check
type Result struct {
	Limited   bool
	Remaining time.Duration // Time left in the current window, set when Limited
}

// Limiter records an attempt for key and reports whether it is over the limit
type Limiter interface {
	Check(key string, now time.Time) Result
}

// Config holds fixed window settings
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig returns 5 attempts per 15 minutes
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Window:      DefaultWindow,
	}
}

type entry struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-memory fixed window counter keyed by client address.
// A window opens on the first attempt for a key and lasts Config.Window.
// State is process-local and lost on restart.
type FixedWindow struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
}

// NewFixedWindow creates a limiter, falling back to defaults for unset values
func NewFixedWindow(config Config) *FixedWindow {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	return &FixedWindow{
		config:  config,
		entries: make(map[string]*entry),
	}
}

// Check counts an attempt for key at now.
// The attempt that lands after the window has expired starts a new window as attempt #1.
func (l *FixedWindow) Check(key string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.config.Window)}
		return Result{}
	}

	if e.count < l.config.MaxAttempts {
		e.count++
		return Result{}
	}

	// Already at the limit; count stays capped so a flood cannot overflow it
	return Result{Limited: true, Remaining: e.resetAt.Sub(now)}
}

// Sweep removes entries whose window has ended and returns how many were dropped
func (l *FixedWindow) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset forgets a key
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

var _ Limiter = (*FixedWindow)(nil)
