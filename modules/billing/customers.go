package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/svc/profile"
)

// CustomerProvisioner guarantees a user has a billing customer and profile.
type CustomerProvisioner interface {
	EnsureCustomer(ctx context.Context, userID uuid.UUID, email, fullName string) (*profile.EnsureResult, error)
}

// CustomerService handles customer provisioning requests.
type CustomerService struct {
	provisioner CustomerProvisioner
	log         *slog.Logger
}

func NewCustomerService(provisioner CustomerProvisioner, log *slog.Logger) *CustomerService {
	if provisioner == nil {
		panic("billing: customer provisioner is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CustomerService{provisioner: provisioner, log: log}
}

func (s *CustomerService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.ensure)
	return r
}

type ensureCustomerRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
}

type ensureCustomerResponse struct {
	CustomerID      string `json:"customerId"`
	ProfileID       string `json:"profileId"`
	CreatedProfile  bool   `json:"createdProfile"`
	CreatedCustomer bool   `json:"createdCustomer"`
}

func (s *CustomerService) ensure(w http.ResponseWriter, r *http.Request) {
	var req ensureCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "userId and email are required")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid userId")
		return
	}

	res, err := s.provisioner.EnsureCustomer(r.Context(), userID, req.Email, req.FullName)
	if err != nil {
		s.log.ErrorContext(r.Context(), "ensure customer failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to provision customer")
		return
	}

	respondJSON(w, http.StatusOK, ensureCustomerResponse{
		CustomerID:      res.CustomerID,
		ProfileID:       res.Profile.ID.String(),
		CreatedProfile:  res.CreatedDoc,
		CreatedCustomer: res.CreatedRemote,
	})
}
