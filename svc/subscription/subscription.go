// Package subscription maintains a local mirror of billing-platform
// subscriptions so the application can answer entitlement questions without a
// network round trip. The mirror is refreshed from webhook events and is
// eventually consistent with the provider.
package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status mirrors the billing platform's subscription lifecycle states.
type Status string

const (
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPaused            Status = "paused"
)

// Entitled reports whether the status grants access to paid features.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the locally mirrored subscription row.
type Subscription struct {
	ID                 string     `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	CustomerID         string     `json:"customer_id"`
	PriceID            string     `json:"price_id"`
	Status             Status     `json:"status"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Store persists the subscription mirror.
type Store interface {
	// Upsert writes a subscription row keyed by provider subscription ID.
	Upsert(ctx context.Context, sub *Subscription) error

	// Get returns a subscription by provider ID, or ErrSubscriptionNotFound.
	Get(ctx context.Context, id string) (*Subscription, error)

	// ListByUser returns a user's subscriptions, most recent period first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)

	// DeleteByCustomer removes all rows of a customer. Used when a customer is
	// merged away during reconciliation.
	DeleteByCustomer(ctx context.Context, customerID string) error
}
