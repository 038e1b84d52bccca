package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	billingpkg "github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

// AccountGateway is the slice of the billing provider the account endpoints need.
type AccountGateway interface {
	GetBillingAddress(ctx context.Context, customerID string) (*billingpkg.Address, error)
	UpdateBillingAddress(ctx context.Context, customerID string, addr billingpkg.Address) error
	ListInvoices(ctx context.Context, customerID string, limit int64) ([]billingpkg.Invoice, error)
	ListPaymentIntents(ctx context.Context, customerID string, limit int64) ([]billingpkg.PaymentIntent, error)
}

// ProfileLookup resolves users to their linked billing customer.
type ProfileLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
}

// AccountService handles billing address and payment history endpoints.
type AccountService struct {
	gateway  AccountGateway
	profiles ProfileLookup
	log      *slog.Logger
}

func NewAccountService(gateway AccountGateway, profiles ProfileLookup, log *slog.Logger) *AccountService {
	if gateway == nil {
		panic("billing: account gateway is required")
	}
	if profiles == nil {
		panic("billing: profile lookup is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AccountService{gateway: gateway, profiles: profiles, log: log}
}

func (s *AccountService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/address", s.getAddress)
	r.Put("/address", s.updateAddress)
	r.Post("/payments", s.paymentHistory)
	return r
}

// customerID resolves the request's user to a linked billing customer, writing
// the error response itself on failure.
func (s *AccountService) customerID(w http.ResponseWriter, r *http.Request, rawUserID string) (string, bool) {
	if rawUserID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid userId")
		return "", false
	}

	p, err := s.profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			respondError(w, http.StatusNotFound, "no billing account for user")
			return "", false
		}
		s.log.ErrorContext(r.Context(), "profile lookup failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "profile lookup failed")
		return "", false
	}
	if p.StripeCustomerID == "" {
		respondError(w, http.StatusNotFound, "no billing account for user")
		return "", false
	}
	return p.StripeCustomerID, true
}

type addressRequest struct {
	UserID  string              `json:"userId"`
	Address *billingpkg.Address `json:"address,omitempty"`
}

func (s *AccountService) getAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	customerID, ok := s.customerID(w, r, req.UserID)
	if !ok {
		return
	}

	addr, err := s.gateway.GetBillingAddress(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, billingpkg.ErrCustomerNotFound) {
			respondError(w, http.StatusNotFound, "billing customer not found")
			return
		}
		s.log.ErrorContext(r.Context(), "billing address fetch failed",
			"customer_id", customerID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch billing address")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"address": addr})
}

func (s *AccountService) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == nil {
		respondError(w, http.StatusBadRequest, "address is required")
		return
	}
	customerID, ok := s.customerID(w, r, req.UserID)
	if !ok {
		return
	}

	if err := s.gateway.UpdateBillingAddress(r.Context(), customerID, *req.Address); err != nil {
		if errors.Is(err, billingpkg.ErrCustomerNotFound) {
			respondError(w, http.StatusNotFound, "billing customer not found")
			return
		}
		s.log.ErrorContext(r.Context(), "billing address update failed",
			"customer_id", customerID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update billing address")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"address": req.Address})
}

type paymentsRequest struct {
	UserID string `json:"userId"`
	Limit  int64  `json:"limit,omitempty"`
}

func (s *AccountService) paymentHistory(w http.ResponseWriter, r *http.Request) {
	var req paymentsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	customerID, ok := s.customerID(w, r, req.UserID)
	if !ok {
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	invoices, err := s.gateway.ListInvoices(r.Context(), customerID, limit)
	if err != nil {
		s.log.ErrorContext(r.Context(), "invoice list failed", "customer_id", customerID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch payment history")
		return
	}
	intents, err := s.gateway.ListPaymentIntents(r.Context(), customerID, limit)
	if err != nil {
		s.log.ErrorContext(r.Context(), "payment intent list failed", "customer_id", customerID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch payment history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"payments": intents,
	})
}
