// Package profile manages application user profiles and their link to the
// billing platform's customer records. The profile row is the authoritative
// mapping from user ID to billing-customer ID; everything else (customer
// metadata tags, the tracking table) is derived from it.
package profile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Profile is one application user's profile row.
type Profile struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	Email            string         `json:"email"`
	FullName         string         `json:"full_name,omitempty"`
	Preferences      map[string]any `json:"preferences,omitempty"`
	StripeCustomerID string         `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Store persists profiles and the customer-link tracking table.
type Store interface {
	// GetByUserID returns the profile of a user, or ErrProfileNotFound.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// GetByCustomerID returns the profile owning the billing customer, or
	// ErrProfileNotFound. This is the authoritative guest-vs-authenticated check.
	GetByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// Upsert creates or updates a profile keyed by user ID.
	Upsert(ctx context.Context, p *Profile) error

	// LinkCustomer points a user's profile at a billing customer.
	LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error

	// UnlinkCustomer clears the link only when it still points at customerID.
	// Used as the compensating action for a failed multi-step link.
	UnlinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error

	// SaveCustomerLink records the customer->user mapping in the secondary
	// tracking table used for fast webhook lookups.
	SaveCustomerLink(ctx context.Context, customerID string, userID uuid.UUID) error
}
