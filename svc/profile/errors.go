package profile

import "errors"

var (
	ErrProfileNotFound       = errors.New("profile: not found")
	ErrCustomerAlreadyLinked = errors.New("profile: user already linked to a different billing customer")
	ErrStoreFailure          = errors.New("profile: store operation failed")
)
