package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/audit"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/email"
	"github.com/dmitrymomot/launchkit/pkg/idempotency"
	"github.com/dmitrymomot/launchkit/svc/guest"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

const (
	opLinkGuestCheckout = "link_guest_checkout"

	lockTTL = 30 * time.Second
)

// GuestSessions is the slice of the guest tracker the service needs.
type GuestSessions interface {
	Get(ctx context.Context, sessionID string) (*guest.GuestSession, error)
	MarkConsumed(ctx context.Context, sessionID string, userID uuid.UUID) error
	PendingSessions(ctx context.Context) ([]guest.GuestSession, error)
}

// BillingGateway is the slice of the billing provider the service needs.
type BillingGateway interface {
	UpdateCustomer(ctx context.Context, customerID string, params billing.UpdateCustomerParams) (*billing.Customer, error)
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error
}

// SubscriptionSyncer mirrors a customer's subscriptions locally.
type SubscriptionSyncer interface {
	SyncCustomer(ctx context.Context, userID uuid.UUID, customerID string) (int, error)
	PruneCustomer(ctx context.Context, customerID string) error
}

// Service performs guest-checkout reconciliation.
type Service struct {
	sessions GuestSessions
	profiles profile.Store
	gateway  BillingGateway
	syncer   SubscriptionSyncer
	locker   idempotency.Locker
	auditLog *audit.Logger
	sender   email.Sender
	log      *slog.Logger
	now      func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithEmailSender enables the post-link notification email.
func WithEmailSender(sender email.Sender) Option {
	return func(s *Service) { s.sender = sender }
}

func NewService(
	sessions GuestSessions,
	profiles profile.Store,
	gateway BillingGateway,
	syncer SubscriptionSyncer,
	locker idempotency.Locker,
	auditLog *audit.Logger,
	log *slog.Logger,
	opts ...Option,
) *Service {
	if sessions == nil {
		panic("reconcile: guest sessions are required")
	}
	if profiles == nil {
		panic("reconcile: profile store is required")
	}
	if gateway == nil {
		panic("reconcile: billing gateway is required")
	}
	if syncer == nil {
		panic("reconcile: subscription syncer is required")
	}
	if locker == nil {
		panic("reconcile: locker is required")
	}
	if auditLog == nil {
		panic("reconcile: audit logger is required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		sessions: sessions,
		profiles: profiles,
		gateway:  gateway,
		syncer:   syncer,
		locker:   locker,
		auditLog: auditLog,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether a pending guest checkout matches the email. Used by
// clients to decide whether to offer the "claim your purchase" flow.
func (s *Service) Check(ctx context.Context, userEmail string) (*CheckResult, error) {
	pending, err := s.sessions.PendingSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if strings.EqualFold(pending[i].Email, userEmail) {
			return &CheckResult{
				Linkable:   true,
				SessionID:  pending[i].SessionID,
				CustomerID: pending[i].CustomerID,
			}, nil
		}
	}
	return &CheckResult{}, nil
}

// Link attaches the guest checkout identified by sessionID to the user. The
// returned Result always carries a terminal outcome; the error, when non-nil,
// explains a Failed outcome and is safe to retry.
func (s *Service) Link(ctx context.Context, userID uuid.UUID, userEmail, sessionID string) (*Result, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, guest.ErrSessionIncomplete) {
			return s.failed(ctx, userID, sessionID, "", "", ErrSessionIncomplete)
		}
		return s.failed(ctx, userID, sessionID, "", "", err)
	}

	// Serialize against concurrent webhook-driven updates to the same customer.
	release, err := s.locker.Acquire(ctx, "reconcile:customer:"+sess.CustomerID, lockTTL)
	if err != nil {
		if errors.Is(err, idempotency.ErrLockHeld) {
			return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, ErrLockContended)
		}
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WarnContext(ctx, "failed to release reconciliation lock",
				"customer_id", sess.CustomerID, "error", err)
		}
	}()

	// The store keeps expired rows until the sweep removes them, so the
	// window has to be enforced here too.
	if sess.Expired(s.now().UTC()) {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, ErrSessionExpired)
	}
	if sess.PaymentStatus != billing.PaymentStatusPaid {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, ErrSessionUnpaid)
	}
	if sess.CustomerID == "" || sess.Email == "" {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, ErrSessionIncomplete)
	}
	if !strings.EqualFold(sess.Email, userEmail) {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID,
			fmt.Errorf("%w: session email %q", ErrEmailMismatch, sess.Email))
	}

	// A different user's profile already owning the customer means two
	// accounts claim the same purchase. That is a support problem, not
	// something to resolve automatically.
	if owner, err := s.profiles.GetByCustomerID(ctx, sess.CustomerID); err == nil && owner.UserID != userID {
		reason := fmt.Sprintf("customer %s already linked to another account", sess.CustomerID)
		if err := s.auditLog.LogReview(ctx, opLinkGuestCheckout, userID, reason,
			audit.WithSessionID(sessionID),
			audit.WithCustomerID(sess.CustomerID),
			audit.WithEmail(sess.Email),
		); err != nil {
			s.log.ErrorContext(ctx, "failed to write audit entry", "error", err)
		}
		return &Result{
			Outcome:    OutcomeRequiresReview,
			CustomerID: sess.CustomerID,
			Reason:     ErrCustomerConflict.Error(),
		}, nil
	} else if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, err)
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, err)
	}

	var (
		undo    undoStack
		outcome Outcome
	)
	if p.StripeCustomerID == "" || p.StripeCustomerID == sess.CustomerID {
		outcome = OutcomeLinkedNew
		err = s.adoptGuestCustomer(ctx, &undo, userID, sess)
	} else {
		outcome = OutcomeLinkedExisting
		err = s.transferToExisting(ctx, &undo, userID, userEmail, p.StripeCustomerID, sess)
	}
	if err != nil {
		undo.unwind(context.WithoutCancel(ctx), s.log)
		return s.failed(ctx, userID, sessionID, sess.CustomerID, sess.SubscriptionID, err)
	}

	if err := s.sessions.MarkConsumed(ctx, sessionID, userID); err != nil {
		s.log.WarnContext(ctx, "failed to mark guest session consumed",
			"session_id", sessionID, "error", err)
	}

	if err := s.auditLog.Log(ctx, opLinkGuestCheckout, userID,
		audit.WithSessionID(sessionID),
		audit.WithCustomerID(sess.CustomerID),
		audit.WithSubscriptionID(sess.SubscriptionID),
		audit.WithEmail(sess.Email),
		audit.WithMetadata(map[string]any{"outcome": string(outcome)}),
	); err != nil {
		s.log.ErrorContext(ctx, "failed to write audit entry", "error", err)
	}

	s.notifyLinked(ctx, userEmail)

	return &Result{
		Outcome:        outcome,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
	}, nil
}

// adoptGuestCustomer makes the guest's billing customer the user's own.
func (s *Service) adoptGuestCustomer(ctx context.Context, undo *undoStack, userID uuid.UUID, sess *guest.GuestSession) error {
	linkedAt := s.now().UTC().Format(time.RFC3339)

	if _, err := s.gateway.UpdateCustomer(ctx, sess.CustomerID, billing.UpdateCustomerParams{
		Metadata: map[string]string{
			"user_id":   userID.String(),
			"linked_at": linkedAt,
		},
	}); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		_, err := s.gateway.UpdateCustomer(ctx, sess.CustomerID, billing.UpdateCustomerParams{
			Metadata: map[string]string{"user_id": "", "linked_at": ""},
		})
		return err
	})

	if err := s.profiles.LinkCustomer(ctx, userID, sess.CustomerID); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		return s.profiles.UnlinkCustomer(ctx, userID, sess.CustomerID)
	})

	if err := s.profiles.SaveCustomerLink(ctx, sess.CustomerID, userID); err != nil {
		s.log.WarnContext(ctx, "failed to record customer link",
			"user_id", userID, "customer_id", sess.CustomerID, "error", err)
	}

	if sess.SubscriptionID != "" {
		if _, err := s.syncer.SyncCustomer(ctx, userID, sess.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

// transferToExisting moves the guest purchase onto the user's pre-existing
// billing account. Only subscription purchases can be transferred; a one-time
// payment has nothing to re-point.
func (s *Service) transferToExisting(ctx context.Context, undo *undoStack, userID uuid.UUID, userEmail, existingCustomerID string, sess *guest.GuestSession) error {
	if sess.SubscriptionID == "" {
		return ErrNothingToTransfer
	}

	linkedAt := s.now().UTC().Format(time.RFC3339)

	if _, err := s.gateway.UpdateCustomer(ctx, sess.CustomerID, billing.UpdateCustomerParams{
		Email: userEmail,
		Metadata: map[string]string{
			"user_id":   userID.String(),
			"linked_at": linkedAt,
		},
	}); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		_, err := s.gateway.UpdateCustomer(ctx, sess.CustomerID, billing.UpdateCustomerParams{
			Email:    sess.Email,
			Metadata: map[string]string{"user_id": "", "linked_at": ""},
		})
		return err
	})

	if err := s.gateway.UpdateSubscriptionMetadata(ctx, sess.SubscriptionID, map[string]string{
		"user_id": userID.String(),
	}); err != nil {
		return err
	}

	// The old customer stays around for invoice history but is demoted so
	// future lookups prefer the one carrying the live subscription.
	if _, err := s.gateway.UpdateCustomer(ctx, existingCustomerID, billing.UpdateCustomerParams{
		Metadata: map[string]string{"secondary_customer": "true"},
	}); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		_, err := s.gateway.UpdateCustomer(ctx, existingCustomerID, billing.UpdateCustomerParams{
			Metadata: map[string]string{"secondary_customer": ""},
		})
		return err
	})

	if err := s.profiles.LinkCustomer(ctx, userID, sess.CustomerID); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		if err := s.profiles.UnlinkCustomer(ctx, userID, sess.CustomerID); err != nil {
			return err
		}
		return s.profiles.LinkCustomer(ctx, userID, existingCustomerID)
	})

	if err := s.profiles.SaveCustomerLink(ctx, sess.CustomerID, userID); err != nil {
		s.log.WarnContext(ctx, "failed to record customer link",
			"user_id", userID, "customer_id", sess.CustomerID, "error", err)
	}

	if _, err := s.syncer.SyncCustomer(ctx, userID, sess.CustomerID); err != nil {
		return err
	}

	// The demoted customer's mirror rows are stale now. Failing the link
	// over them is not worth an unwind.
	if err := s.syncer.PruneCustomer(ctx, existingCustomerID); err != nil {
		s.log.WarnContext(ctx, "failed to prune demoted customer subscriptions",
			"customer_id", existingCustomerID, "error", err)
	}
	return nil
}

func (s *Service) failed(ctx context.Context, userID uuid.UUID, sessionID, customerID, subscriptionID string, cause error) (*Result, error) {
	if err := s.auditLog.LogFailure(ctx, opLinkGuestCheckout, userID, cause,
		audit.WithSessionID(sessionID),
		audit.WithCustomerID(customerID),
		audit.WithSubscriptionID(subscriptionID),
	); err != nil {
		s.log.ErrorContext(ctx, "failed to write audit entry", "error", err)
	}
	return &Result{
		Outcome:        OutcomeFailed,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Reason:         cause.Error(),
	}, cause
}

func (s *Service) notifyLinked(ctx context.Context, userEmail string) {
	if s.sender == nil {
		return
	}
	msg := email.Message{
		To:       userEmail,
		Subject:  "Your purchase is now linked to your account",
		BodyHTML: fmt.Sprintf("<p>Hi,</p><p>The purchase you made as a guest is now linked to your account (%s). You can manage your subscription and billing from your account settings.</p>", html.EscapeString(userEmail)),
		Tag:      "guest-checkout-linked",
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "failed to send link notification", "error", err)
	}
}
