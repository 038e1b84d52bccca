package guest

import "errors"

var (
	ErrSessionNotFound   = errors.New("guest: session not found")
	ErrSessionConsumed   = errors.New("guest: session already consumed")
	ErrSessionIncomplete = errors.New("guest: session missing customer or email")
	ErrStoreFailure      = errors.New("guest: store operation failed")
)
