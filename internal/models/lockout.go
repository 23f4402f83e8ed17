package models

import (
	"time"
)

// LockState is the per-account lockout state kept in the record store
type LockState struct {
	FailedAttemptCount int
	LockUntil          *time.Time
}

// LockedAt reports whether the state holds an unexpired lock at now
func (s LockState) LockedAt(now time.Time) bool {
	return s.LockUntil != nil && now.Before(*s.LockUntil)
}

// Equal compares two states by value
func (s LockState) Equal(other LockState) bool {
	if s.FailedAttemptCount != other.FailedAttemptCount {
		return false
	}
	if s.LockUntil == nil || other.LockUntil == nil {
		return s.LockUntil == nil && other.LockUntil == nil
	}
	return s.LockUntil.Equal(*other.LockUntil)
}

// Outcome is the top-level result of a sign-in decision
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
)

// RejectReason tells why a sign-in was rejected
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonUserNotFound      RejectReason = "user_not_found"
	ReasonAccountInactive   RejectReason = "account_inactive"
	ReasonWrongPassword     RejectReason = "wrong_password"
	ReasonAccountLocked     RejectReason = "account_locked"
	ReasonRateLimitExceeded RejectReason = "rate_limit_exceeded"
)

// LoginDecision is the structured result of one sign-in attempt.
// Remaining is only meaningful for AccountLocked and RateLimitExceeded.
type LoginDecision struct {
	Outcome   Outcome
	Reason    RejectReason
	Remaining time.Duration
}

// Succeeded returns the success decision
func Succeeded() LoginDecision {
	return LoginDecision{Outcome: OutcomeSuccess}
}

// Rejected returns a rejection for the given reason
func Rejected(reason RejectReason, remaining time.Duration) LoginDecision {
	return LoginDecision{
		Outcome:   OutcomeRejected,
		Reason:    reason,
		Remaining: remaining,
	}
}

// IsSuccess reports whether the decision allows sign-in
func (d LoginDecision) IsSuccess() bool {
	return d.Outcome == OutcomeSuccess
}

// Minutes returns the remaining time as whole minutes, rounded up and never below 1
func (d LoginDecision) Minutes() int {
	return CeilMinutes(d.Remaining)
}

// CeilMinutes rounds a duration up to whole minutes with a floor of 1
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}
