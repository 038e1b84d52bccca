// Package guest tracks checkout sessions completed by visitors without an
// account. Sessions are persisted locally with a 24 hour linking window; a
// session missing from the store is reconstructed from the billing platform's
// checkout-session record, so sessions created before persistence was
// introduced remain linkable.
package guest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LinkWindow is how long after checkout a guest purchase stays linkable.
const LinkWindow = 24 * time.Hour

// GuestSession is one guest checkout awaiting an account link.
type GuestSession struct {
	SessionID      string            `json:"session_id"`
	CustomerID     string            `json:"customer_id"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Email          string            `json:"email"`
	PriceID        string            `json:"price_id,omitempty"`
	PaymentStatus  string            `json:"payment_status"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	ConsumedBy     *uuid.UUID        `json:"consumed_by,omitempty"`
	ConsumedAt     *time.Time        `json:"consumed_at,omitempty"`
}

// Consumed reports whether the session has already been linked to a user.
func (s *GuestSession) Consumed() bool {
	return s.ConsumedBy != nil
}

// Expired reports whether the linking window has closed.
func (s *GuestSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store persists guest sessions.
type Store interface {
	// Create inserts a session row. Inserting an existing session ID is an
	// idempotent no-op.
	Create(ctx context.Context, sess *GuestSession) error

	// Get returns a session by ID, or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*GuestSession, error)

	// MarkConsumed stamps the session with the linking user and time.
	// Returns ErrSessionConsumed when another user got there first.
	MarkConsumed(ctx context.Context, sessionID string, userID uuid.UUID, at time.Time) error

	// DeleteExpired removes unconsumed sessions whose window closed before
	// the cutoff. Returns the number of rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	// ListPending returns unconsumed sessions whose window is still open.
	ListPending(ctx context.Context, now time.Time) ([]GuestSession, error)
}
