package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/feature"
	"github.com/dmitrymomot/launchkit/pkg/linktoken"
	"github.com/dmitrymomot/launchkit/svc/reconcile"
)

// Reconciler runs guest-checkout linking.
type Reconciler interface {
	Check(ctx context.Context, userEmail string) (*reconcile.CheckResult, error)
	Link(ctx context.Context, userID uuid.UUID, userEmail, sessionID string) (*reconcile.Result, error)
}

// LinkService handles the account-linking endpoint.
type LinkService struct {
	reconciler Reconciler
	tokens     *linktoken.Issuer
	log        *slog.Logger

	flags    feature.Provider
	flagName string
}

// LinkOption configures optional LinkService collaborators.
type LinkOption func(*LinkService)

// WithFeatureGate turns the linking flow off when the named flag is disabled.
// An unknown flag or evaluation failure leaves the flow on.
func WithFeatureGate(flags feature.Provider, flagName string) LinkOption {
	return func(s *LinkService) {
		s.flags = flags
		s.flagName = flagName
	}
}

func NewLinkService(reconciler Reconciler, tokens *linktoken.Issuer, log *slog.Logger, opts ...LinkOption) *LinkService {
	if reconciler == nil {
		panic("billing: reconciler is required")
	}
	if tokens == nil {
		panic("billing: token issuer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &LinkService{reconciler: reconciler, tokens: tokens, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LinkService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/link", s.link)
	return r
}

func (s *LinkService) linkingEnabled(ctx context.Context) bool {
	if s.flags == nil {
		return true
	}
	enabled, err := s.flags.IsEnabled(ctx, s.flagName)
	if err != nil {
		if !errors.Is(err, feature.ErrFlagNotFound) {
			s.log.WarnContext(ctx, "feature flag evaluation failed", "flag", s.flagName, "error", err)
		}
		return true
	}
	return enabled
}

type linkRequest struct {
	Action    string `json:"action"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Token     string `json:"token,omitempty"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *LinkService) link(w http.ResponseWriter, r *http.Request) {
	if !s.linkingEnabled(r.Context()) {
		respondError(w, http.StatusForbidden, "account linking is disabled")
		return
	}

	var req linkRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "check":
		s.check(w, r, req)
	case "link":
		s.runLink(w, r, req)
	default:
		respondError(w, http.StatusBadRequest, "action must be check or link")
	}
}

func (s *LinkService) check(w http.ResponseWriter, r *http.Request, req linkRequest) {
	if req.Email == "" || req.Provider == "" {
		respondError(w, http.StatusBadRequest, "email and provider are required")
		return
	}

	res, err := s.reconciler.Check(r.Context(), req.Email)
	if err != nil {
		s.log.ErrorContext(r.Context(), "link check failed", "error", err)
		respondError(w, http.StatusInternalServerError, "check failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *LinkService) runLink(w http.ResponseWriter, r *http.Request, req linkRequest) {
	if req.Token == "" || req.SessionID == "" || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "token, sessionId and userId are required")
		return
	}

	payload, err := s.tokens.Verify(req.Token)
	if err != nil {
		switch {
		case errors.Is(err, linktoken.ErrTokenExpired):
			respondError(w, http.StatusUnauthorized, "linking token expired")
		default:
			respondError(w, http.StatusUnauthorized, "invalid linking token")
		}
		return
	}

	// The caller proves account ownership separately; the token must be bound
	// to the same user or someone is replaying another account's token.
	claimed, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	if claimed != payload.UserID {
		respondError(w, http.StatusForbidden, "token does not belong to this user")
		return
	}

	result, err := s.reconciler.Link(r.Context(), payload.UserID, payload.Email, req.SessionID)
	if err != nil {
		if result != nil && result.Outcome == reconcile.OutcomeFailed {
			status := http.StatusBadRequest
			if errors.Is(err, reconcile.ErrLockContended) {
				status = http.StatusConflict
			}
			respondJSON(w, status, result)
			return
		}
		s.log.ErrorContext(r.Context(), "link failed", "session_id", req.SessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "link failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
