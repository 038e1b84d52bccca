package audit

import "errors"

var (
	ErrMissingOperation = errors.New("audit: operation is required")
	ErrMissingStatus    = errors.New("audit: status is required")
	ErrStorageFailure   = errors.New("audit: storage operation failed")
)
