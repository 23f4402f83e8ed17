// Package lockout decides per-account lockout transitions.
//
// All functions are pure: the caller loads the persisted state, supplies the
// current time from a single clock and persists whatever state is returned.
package lockout

import (
	"fmt"
	"time"

	"github.com/BradenHooton/steeldesk/internal/models"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// PasswordOutcome is the result of checking a secret against the stored digest
type PasswordOutcome int

const (
	PasswordInvalid PasswordOutcome = iota
	PasswordValid
)

func (o PasswordOutcome) String() string {
	if o == PasswordValid {
		return "valid"
	}
	return "invalid"
}

// Policy holds the lockout threshold and duration
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy returns 5 failures / 15 minutes
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultThreshold,
		Duration:  DefaultDuration,
	}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1 (got %d)", p.Threshold)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("lockout duration must be positive (got %s)", p.Duration)
	}
	return nil
}

// CheckLock applies the lock rules that run before any password check.
// A live lock yields a rejection with the state unchanged. An expired lock is
// cleared together with the counter and the unlocked state is returned with a
// nil decision so evaluation can continue.
func (p Policy) CheckLock(state models.LockState, now time.Time) (models.LockState, *models.LoginDecision) {
	if state.LockUntil == nil {
		return state, nil
	}

	if now.Before(*state.LockUntil) {
		decision := models.Rejected(models.ReasonAccountLocked, state.LockUntil.Sub(now))
		return state, &decision
	}

	return models.LockState{}, nil
}

// Apply evaluates a password outcome against an unlocked state
func (p Policy) Apply(state models.LockState, now time.Time, outcome PasswordOutcome) (models.LockState, models.LoginDecision) {
	if outcome == PasswordValid {
		return models.LockState{}, models.Succeeded()
	}

	count := state.FailedAttemptCount + 1
	if count >= p.Threshold {
		lockUntil := now.Add(p.Duration)
		return models.LockState{FailedAttemptCount: count, LockUntil: &lockUntil},
			models.Rejected(models.ReasonAccountLocked, p.Duration)
	}

	return models.LockState{FailedAttemptCount: count},
		models.Rejected(models.ReasonWrongPassword, 0)
}

// Evaluate runs the full decision for one attempt
func (p Policy) Evaluate(state models.LockState, now time.Time, outcome PasswordOutcome) (models.LockState, models.LoginDecision) {
	unlocked, rejection := p.CheckLock(state, now)
	if rejection != nil {
		return state, *rejection
	}
	return p.Apply(unlocked, now, outcome)
}

// NewlyLocked reports whether the transition from prev to next set a fresh lock
func NewlyLocked(prev, next models.LockState, now time.Time) bool {
	return next.LockedAt(now) && !prev.LockedAt(now)
}
