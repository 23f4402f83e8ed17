package models

import (
	"time"
)

// User is an administrative account of the back office.
// Only the lock fields are mutated by sign-in.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	Name               string
	Role               string // "admin", "staff"
	IsActive           bool
	FailedAttemptCount int        // Consecutive failed password checks
	LockUntil          *time.Time // Set while the account is locked
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LockState returns the persisted lockout fields of the user
func (u *User) LockState() LockState {
	return LockState{
		FailedAttemptCount: u.FailedAttemptCount,
		LockUntil:          u.LockUntil,
	}
}
