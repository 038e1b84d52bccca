// Package audit records an append-only trail of account-linking and billing
// reconciliation operations. Every terminal outcome of a reconciliation
// attempt produces exactly one entry; entries are never updated or deleted.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal result of an audited operation.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusRequiresReview Status = "requires_review"
)

// Entry is a single audit record.
type Entry struct {
	ID             uuid.UUID      `json:"id" bson:"_id"`
	Operation      string         `json:"operation" bson:"operation"`
	UserID         uuid.UUID      `json:"user_id" bson:"user_id"`
	SessionID      string         `json:"session_id,omitempty" bson:"session_id,omitempty"`
	CustomerID     string         `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	SubscriptionID string         `json:"subscription_id,omitempty" bson:"subscription_id,omitempty"`
	Email          string         `json:"email,omitempty" bson:"email,omitempty"`
	Status         Status         `json:"status" bson:"status"`
	Error          string         `json:"error,omitempty" bson:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
}

// Validate checks the required fields.
func (e *Entry) Validate() error {
	if e.Operation == "" {
		return ErrMissingOperation
	}
	if e.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

// EntryOption mutates an entry during logging.
type EntryOption func(*Entry)

func WithSessionID(id string) EntryOption {
	return func(e *Entry) { e.SessionID = id }
}

func WithCustomerID(id string) EntryOption {
	return func(e *Entry) { e.CustomerID = id }
}

func WithSubscriptionID(id string) EntryOption {
	return func(e *Entry) { e.SubscriptionID = id }
}

func WithEmail(email string) EntryOption {
	return func(e *Entry) { e.Email = email }
}

func WithMetadata(md map[string]any) EntryOption {
	return func(e *Entry) { e.Metadata = md }
}
