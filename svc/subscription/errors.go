package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	ErrStoreFailure         = errors.New("subscription: store operation failed")
)
