package billing

import "errors"

var (
	ErrMissingAPIKey        = errors.New("billing: API key is required")
	ErrMissingWebhookSecret = errors.New("billing: webhook secret is required")

	ErrCustomerNotFound     = errors.New("billing: customer not found")
	ErrSessionNotFound      = errors.New("billing: checkout session not found")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")

	ErrInvalidSignature = errors.New("billing: webhook signature verification failed")
	ErrProviderFailure  = errors.New("billing: provider request failed")
)
