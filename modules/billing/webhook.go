package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	billingpkg "github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/idempotency"
	"github.com/dmitrymomot/launchkit/svc/guest"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

const maxWebhookBody = 1 << 20 // Stripe payloads are well under 1 MiB.

// handledEvents is the allow-list; anything else is acknowledged and ignored.
var handledEvents = map[string]bool{
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
	"checkout.session.completed":    true,
	"invoice.payment_succeeded":     true,
	"invoice.payment_failed":        true,
}

// sweepProbability is the chance a delivery piggybacks an expired guest
// session sweep, so cleanup needs no dedicated scheduler.
const sweepProbability = 0.05

// WebhookGateway is the slice of the billing provider the receiver needs.
type WebhookGateway interface {
	VerifyWebhook(payload []byte, sigHeader string) (*billingpkg.Event, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*billingpkg.CheckoutSession, error)
	UpdateCustomer(ctx context.Context, customerID string, params billingpkg.UpdateCustomerParams) (*billingpkg.Customer, error)
}

// GuestTracker is the slice of the guest session tracker the receiver needs.
type GuestTracker interface {
	Create(ctx context.Context, sess *billingpkg.CheckoutSession) (*guest.GuestSession, error)
	IsGuestCustomer(ctx context.Context, customerID string) (bool, error)
	CleanupExpired(ctx context.Context) (int, error)
}

// SubscriptionSyncer mirrors provider subscription state locally.
type SubscriptionSyncer interface {
	Apply(ctx context.Context, userID uuid.UUID, remote *billingpkg.Subscription) error
	SyncCustomer(ctx context.Context, userID uuid.UUID, customerID string) (int, error)
}

// ProfileDirectory resolves billing customers to application users.
type ProfileDirectory interface {
	GetByCustomerID(ctx context.Context, customerID string) (*profile.Profile, error)
}

// WebhookService receives and dispatches billing provider webhooks.
type WebhookService struct {
	gateway  WebhookGateway
	deduper  idempotency.Deduper
	guests   GuestTracker
	profiles ProfileDirectory
	syncer   SubscriptionSyncer
	log      *slog.Logger

	// randFloat is swappable in tests to pin the sweep decision.
	randFloat func() float64
}

func NewWebhookService(
	gateway WebhookGateway,
	deduper idempotency.Deduper,
	guests GuestTracker,
	profiles ProfileDirectory,
	syncer SubscriptionSyncer,
	log *slog.Logger,
) *WebhookService {
	if gateway == nil {
		panic("billing: webhook gateway is required")
	}
	if deduper == nil {
		panic("billing: deduper is required")
	}
	if guests == nil {
		panic("billing: guest tracker is required")
	}
	if profiles == nil {
		panic("billing: profile directory is required")
	}
	if syncer == nil {
		panic("billing: subscription syncer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookService{
		gateway:   gateway,
		deduper:   deduper,
		guests:    guests,
		profiles:  profiles,
		syncer:    syncer,
		log:       log,
		randFloat: rand.Float64,
	}
}

func (s *WebhookService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/stripe", s.receive)
	return r
}

func (s *WebhookService) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		respondError(w, http.StatusBadRequest, "missing signature")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	event, err := s.gateway.VerifyWebhook(payload, sig)
	if err != nil {
		s.log.WarnContext(ctx, "webhook signature verification failed", "error", err)
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if !handledEvents[event.Type] {
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	seen, err := s.deduper.Seen(ctx, event.ID)
	if err != nil {
		// Dedupe store trouble must not drop events; processing twice is
		// safer than not at all since handlers are idempotent.
		s.log.WarnContext(ctx, "event dedupe unavailable", "event_id", event.ID, "error", err)
	}
	if seen {
		respondJSONReceived(w)
		return
	}

	if err := s.dispatch(ctx, event); err != nil {
		s.log.ErrorContext(ctx, "webhook handler failed",
			"event_id", event.ID, "event_type", event.Type, "error", err)
		respondError(w, http.StatusInternalServerError, "event handling failed")
		return
	}

	s.maybeSweep(ctx)
	respondJSONReceived(w)
}

func respondJSONReceived(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *WebhookService) dispatch(ctx context.Context, event *billingpkg.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.onCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return s.onSubscriptionChanged(ctx, event)
	case "invoice.payment_succeeded", "invoice.payment_failed":
		return s.onInvoicePayment(ctx, event)
	}
	return nil
}

// onCheckoutCompleted records guest checkouts and syncs authenticated ones.
func (s *WebhookService) onCheckoutCompleted(ctx context.Context, event *billingpkg.Event) error {
	sess, err := billingpkg.DecodeCheckoutSessionEvent(event.Raw)
	if err != nil {
		return err
	}
	if sess.Mode != billingpkg.ModeSubscription || sess.CustomerID == "" {
		return nil
	}

	isGuest, err := s.guests.IsGuestCustomer(ctx, sess.CustomerID)
	if err != nil {
		return err
	}

	if !isGuest {
		p, err := s.profiles.GetByCustomerID(ctx, sess.CustomerID)
		if err != nil {
			if errors.Is(err, profile.ErrProfileNotFound) {
				// Tagged in customer metadata but no local profile yet; the
				// subscription events will catch up once the profile exists.
				return nil
			}
			return err
		}
		_, err = s.syncer.SyncCustomer(ctx, p.UserID, sess.CustomerID)
		return err
	}

	// Event payloads omit expansions; refetch when the email is missing so
	// the guest record is linkable later.
	if sess.CustomerEmail == "" {
		full, err := s.gateway.GetCheckoutSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		sess = full
	}

	if _, err := s.guests.Create(ctx, sess); err != nil {
		return err
	}
	if _, err := s.gateway.UpdateCustomer(ctx, sess.CustomerID, billingpkg.UpdateCustomerParams{
		Metadata: map[string]string{"is_guest_checkout": "true"},
	}); err != nil {
		s.log.WarnContext(ctx, "failed to tag guest customer",
			"customer_id", sess.CustomerID, "error", err)
	}

	s.log.InfoContext(ctx, "guest checkout recorded",
		"session_id", sess.ID, "customer_id", sess.CustomerID)
	return nil
}

// onSubscriptionChanged mirrors the subscription for authenticated customers
// and skips guests, whose state is picked up when their purchase is linked.
func (s *WebhookService) onSubscriptionChanged(ctx context.Context, event *billingpkg.Event) error {
	sub, err := billingpkg.DecodeSubscriptionEvent(event.Raw)
	if err != nil {
		return err
	}
	if sub.CustomerID == "" {
		return nil
	}

	userID, skip, err := s.resolveUser(ctx, sub.CustomerID)
	if err != nil || skip {
		return err
	}
	return s.syncer.Apply(ctx, userID, sub)
}

// onInvoicePayment refreshes the customer's mirror after a payment outcome,
// catching status flips like active -> past_due.
func (s *WebhookService) onInvoicePayment(ctx context.Context, event *billingpkg.Event) error {
	inv, err := billingpkg.DecodeInvoiceEvent(event.Raw)
	if err != nil {
		return err
	}
	if inv.CustomerID == "" {
		return nil
	}

	userID, skip, err := s.resolveUser(ctx, inv.CustomerID)
	if err != nil || skip {
		return err
	}
	_, err = s.syncer.SyncCustomer(ctx, userID, inv.CustomerID)
	return err
}

// resolveUser maps a customer to its user, reporting skip for guests.
func (s *WebhookService) resolveUser(ctx context.Context, customerID string) (uuid.UUID, bool, error) {
	isGuest, err := s.guests.IsGuestCustomer(ctx, customerID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if isGuest {
		s.log.DebugContext(ctx, "skipping event for guest customer", "customer_id", customerID)
		return uuid.Nil, true, nil
	}

	p, err := s.profiles.GetByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return uuid.Nil, true, nil
		}
		return uuid.Nil, false, err
	}
	return p.UserID, false, nil
}

// maybeSweep occasionally removes expired guest sessions, detached from the
// request so a slow delete cannot stall the webhook response.
func (s *WebhookService) maybeSweep(ctx context.Context) {
	if s.randFloat() >= sweepProbability {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := s.guests.CleanupExpired(ctx); err != nil {
			s.log.WarnContext(ctx, "guest session sweep failed", "error", err)
		}
	}()
}
