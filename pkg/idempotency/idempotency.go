// Package idempotency provides the two small coordination primitives the
// billing flow needs: webhook event deduplication and short-lived mutual
// exclusion around multi-step customer updates.
//
// Webhook senders deliver at-least-once; without dedupe a retried delivery
// replays side effects. Reconciliation and webhook-triggered sync can touch
// the same billing customer concurrently; the mutex serializes them.
package idempotency

import (
	"context"
	"time"
)

// Deduper records processed event IDs for a bounded window.
type Deduper interface {
	// Seen marks the event ID as processed and reports whether it had
	// already been marked. The first caller gets false, replays get true.
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Locker provides best-effort distributed mutual exclusion.
type Locker interface {
	// Acquire takes the named lock for at most ttl. Returns ErrLockHeld when
	// another holder owns it. The returned release function is safe to call
	// once; releasing a lock that expired is a no-op.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(ctx context.Context) error, err error)
}

// DefaultDedupeTTL bounds how long processed event IDs are remembered.
// Stripe retries webhooks for up to three days; keeping IDs slightly longer
// covers the full retry schedule.
const DefaultDedupeTTL = 72 * time.Hour
