package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Lockout store errors. These are infrastructure failures, never rejections.
	ErrLockStateConflict = errors.New("lock state changed concurrently")
	ErrStoreUnavailable  = errors.New("account store unavailable")
	ErrLockStateWrite    = errors.New("failed to persist lock state")
	ErrMalformedState    = errors.New("malformed persisted lock state")
)
