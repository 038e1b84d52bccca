// Package reconcile links guest checkout purchases to user accounts. The link
// is a multi-step dance across the billing platform and local stores; every
// attempt terminates in an explicit outcome and leaves an audit entry.
package reconcile

// Outcome is the terminal state of a link attempt.
type Outcome string

const (
	// OutcomeLinkedNew means the guest customer became the user's customer.
	OutcomeLinkedNew Outcome = "linked_new"

	// OutcomeLinkedExisting means the user already had a customer and the
	// guest purchase was transferred onto their account.
	OutcomeLinkedExisting Outcome = "linked_existing"

	// OutcomeRequiresReview means an ownership conflict needs manual support.
	OutcomeRequiresReview Outcome = "requires_review"

	// OutcomeFailed means the attempt was rejected or rolled back. Failed
	// attempts are safe to retry.
	OutcomeFailed Outcome = "failed"
)

// Result describes how a link attempt ended.
type Result struct {
	Outcome        Outcome `json:"outcome"`
	CustomerID     string  `json:"customer_id,omitempty"`
	SubscriptionID string  `json:"subscription_id,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// CheckResult reports whether anything is waiting to be linked for an email.
type CheckResult struct {
	Linkable   bool   `json:"linkable"`
	SessionID  string `json:"session_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}
