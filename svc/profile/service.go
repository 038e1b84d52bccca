package profile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/billing"
)

// BillingGateway is the slice of the billing provider this service needs.
type BillingGateway interface {
	CreateCustomer(ctx context.Context, params billing.CreateCustomerParams) (*billing.Customer, error)
	FindCustomerByUserID(ctx context.Context, userID string) (*billing.Customer, error)
}

// Service owns the user->customer mapping lifecycle.
type Service struct {
	store   Store
	gateway BillingGateway
	log     *slog.Logger
	now     func() time.Time
}

func NewService(store Store, gateway BillingGateway, log *slog.Logger) *Service {
	if store == nil {
		panic("profile: store is required")
	}
	if gateway == nil {
		panic("profile: billing gateway is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		gateway: gateway,
		log:     log,
		now:     time.Now,
	}
}

// EnsureResult reports what EnsureCustomer had to create.
type EnsureResult struct {
	Profile       *Profile `json:"profile"`
	CustomerID    string   `json:"customer_id"`
	CreatedDoc    bool     `json:"created_profile"`
	CreatedRemote bool     `json:"created_customer"`
}

// EnsureCustomer guarantees a user has both a profile row and a billing
// customer, creating whichever is missing. It is idempotent: repeated calls
// for the same user return the same customer ID. Before creating a remote
// customer it searches the provider for one already tagged with the user ID,
// so a partially failed earlier call never produces a duplicate.
func (s *Service) EnsureCustomer(ctx context.Context, userID uuid.UUID, email, fullName string) (*EnsureResult, error) {
	res := &EnsureResult{}

	p, err := s.store.GetByUserID(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrProfileNotFound):
		now := s.now()
		p = &Profile{
			ID:        uuid.New(),
			UserID:    userID,
			Email:     email,
			FullName:  fullName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Upsert(ctx, p); err != nil {
			return nil, err
		}
		res.CreatedDoc = true
	default:
		return nil, err
	}

	if p.StripeCustomerID != "" {
		res.Profile = p
		res.CustomerID = p.StripeCustomerID
		return res, nil
	}

	cust, err := s.gateway.FindCustomerByUserID(ctx, userID.String())
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrCustomerNotFound):
		cust, err = s.gateway.CreateCustomer(ctx, billing.CreateCustomerParams{
			UserID: userID.String(),
			Email:  email,
			Name:   fullName,
		})
		if err != nil {
			return nil, err
		}
		res.CreatedRemote = true
	default:
		return nil, err
	}

	if err := s.store.LinkCustomer(ctx, userID, cust.ID); err != nil {
		return nil, err
	}
	p.StripeCustomerID = cust.ID

	// The tracking table is a lookup cache; losing a row here is recoverable.
	if err := s.store.SaveCustomerLink(ctx, cust.ID, userID); err != nil {
		s.log.WarnContext(ctx, "failed to record customer link",
			"user_id", userID, "customer_id", cust.ID, "error", err)
	}

	res.Profile = p
	res.CustomerID = cust.ID
	return res, nil
}

// LinkCustomer attaches an existing billing customer to a user's profile.
// Unless force is set, a profile already linked to a different customer is
// left untouched and ErrCustomerAlreadyLinked is returned.
func (s *Service) LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string, force bool) error {
	p, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if p.StripeCustomerID != "" && p.StripeCustomerID != customerID && !force {
		return ErrCustomerAlreadyLinked
	}
	if err := s.store.LinkCustomer(ctx, userID, customerID); err != nil {
		return err
	}
	if err := s.store.SaveCustomerLink(ctx, customerID, userID); err != nil {
		s.log.WarnContext(ctx, "failed to record customer link",
			"user_id", userID, "customer_id", customerID, "error", err)
	}
	return nil
}

// GetByUserID proxies the store lookup.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.store.GetByUserID(ctx, userID)
}

// GetByCustomerID proxies the store lookup.
func (s *Service) GetByCustomerID(ctx context.Context, customerID string) (*Profile, error) {
	return s.store.GetByCustomerID(ctx, customerID)
}
