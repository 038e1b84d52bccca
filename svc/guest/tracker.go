package guest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

// BillingGateway is the slice of the billing provider the tracker needs.
type BillingGateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error)
	GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error)
}

// ProfileDirectory answers whether a billing customer belongs to a known user.
type ProfileDirectory interface {
	GetByCustomerID(ctx context.Context, customerID string) (*profile.Profile, error)
}

// Tracker records guest checkouts and answers guest-vs-authenticated queries.
type Tracker struct {
	store    Store
	gateway  BillingGateway
	profiles ProfileDirectory
	log      *slog.Logger
	now      func() time.Time
}

func NewTracker(store Store, gateway BillingGateway, profiles ProfileDirectory, log *slog.Logger) *Tracker {
	if store == nil {
		panic("guest: store is required")
	}
	if gateway == nil {
		panic("guest: billing gateway is required")
	}
	if profiles == nil {
		panic("guest: profile directory is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:    store,
		gateway:  gateway,
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
}

// Create records a completed guest checkout. The linking window opens at
// creation time and closes exactly LinkWindow later.
func (t *Tracker) Create(ctx context.Context, sess *billing.CheckoutSession) (*GuestSession, error) {
	if sess.CustomerID == "" || sess.CustomerEmail == "" {
		return nil, ErrSessionIncomplete
	}

	now := t.now().UTC()
	gs := &GuestSession{
		SessionID:      sess.ID,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		Email:          sess.CustomerEmail,
		PriceID:        sess.PriceID,
		PaymentStatus:  sess.PaymentStatus,
		AmountTotal:    sess.AmountTotal,
		Currency:       sess.Currency,
		Metadata:       sess.Metadata,
		CreatedAt:      now,
		ExpiresAt:      now.Add(LinkWindow),
	}
	if err := t.store.Create(ctx, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

// Get returns a guest session, consulting the local store first and falling
// back to the billing platform's checkout-session record. The fallback keeps
// sessions created before local persistence linkable; such sessions get their
// window measured from now since the original creation time is not recoverable.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*GuestSession, error) {
	gs, err := t.store.Get(ctx, sessionID)
	if err == nil {
		return gs, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	sess, err := t.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.CustomerID == "" || sess.CustomerEmail == "" {
		return nil, ErrSessionIncomplete
	}

	now := t.now().UTC()
	return &GuestSession{
		SessionID:      sess.ID,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		Email:          sess.CustomerEmail,
		PriceID:        sess.PriceID,
		PaymentStatus:  sess.PaymentStatus,
		AmountTotal:    sess.AmountTotal,
		Currency:       sess.Currency,
		Metadata:       sess.Metadata,
		CreatedAt:      now,
		ExpiresAt:      now.Add(LinkWindow),
	}, nil
}

// MarkConsumed stamps the session as linked by userID.
func (t *Tracker) MarkConsumed(ctx context.Context, sessionID string, userID uuid.UUID) error {
	err := t.store.MarkConsumed(ctx, sessionID, userID, t.now().UTC())
	if errors.Is(err, ErrSessionNotFound) {
		// Fallback-derived sessions have no local row to stamp.
		return nil
	}
	return err
}

// IsGuestCustomer reports whether a billing customer belongs to no known user.
// A profile row owning the customer is authoritative; failing that, a user_id
// metadata tag on the remote customer counts as authenticated. A deleted or
// untagged customer is a guest.
func (t *Tracker) IsGuestCustomer(ctx context.Context, customerID string) (bool, error) {
	_, err := t.profiles.GetByCustomerID(ctx, customerID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, profile.ErrProfileNotFound):
		return false, err
	}

	cust, err := t.gateway.GetCustomer(ctx, customerID)
	switch {
	case errors.Is(err, billing.ErrCustomerNotFound):
		return true, nil
	case err != nil:
		return false, err
	case cust.Deleted:
		return true, nil
	}
	return cust.UserID() == "", nil
}

// CleanupExpired removes unconsumed sessions whose window has closed.
func (t *Tracker) CleanupExpired(ctx context.Context) (int, error) {
	n, err := t.store.DeleteExpired(ctx, t.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.InfoContext(ctx, "expired guest sessions removed", "count", n)
	}
	return n, nil
}

// PendingSessions returns unconsumed sessions still inside their window.
func (t *Tracker) PendingSessions(ctx context.Context) ([]GuestSession, error) {
	return t.store.ListPending(ctx, t.now().UTC())
}
