package linktoken

import "errors"

var (
	ErrMissingSecret    = errors.New("linktoken: signing secret is required")
	ErrInvalidToken     = errors.New("linktoken: malformed token")
	ErrSignatureInvalid = errors.New("linktoken: signature verification failed")
	ErrTokenExpired     = errors.New("linktoken: token expired")
)
