package idempotency

import "errors"

var (
	ErrEmptyKey         = errors.New("idempotency: key is required")
	ErrLockHeld         = errors.New("idempotency: lock is held by another owner")
	ErrStoreUnavailable = errors.New("idempotency: backing store unavailable")
)
