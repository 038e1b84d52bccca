package feature

import "errors"

var (
	ErrFlagNotFound    = errors.New("feature: flag not found")
	ErrInvalidFlag     = errors.New("feature: invalid flag")
	ErrInvalidStrategy = errors.New("feature: invalid strategy")
	ErrInvalidFlagFile = errors.New("feature: invalid flag configuration file")
)
