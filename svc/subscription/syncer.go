package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/billing"
)

// BillingGateway is the slice of the billing provider the syncer needs.
type BillingGateway interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error)
}

// Syncer refreshes the local mirror from the billing provider.
type Syncer struct {
	store   Store
	gateway BillingGateway
	log     *slog.Logger
	now     func() time.Time
}

func NewSyncer(store Store, gateway BillingGateway, log *slog.Logger) *Syncer {
	if store == nil {
		panic("subscription: store is required")
	}
	if gateway == nil {
		panic("subscription: billing gateway is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		store:   store,
		gateway: gateway,
		log:     log,
		now:     time.Now,
	}
}

// SyncOne refreshes a single subscription from the provider and mirrors it
// under the given user.
func (s *Syncer) SyncOne(ctx context.Context, userID uuid.UUID, subscriptionID string) error {
	remote, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, s.fromRemote(userID, remote))
}

// SyncCustomer pulls every subscription of a customer from the provider and
// mirrors them under the given user. Returns the number of rows written.
func (s *Syncer) SyncCustomer(ctx context.Context, userID uuid.UUID, customerID string) (int, error) {
	remotes, err := s.gateway.ListSubscriptions(ctx, customerID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range remotes {
		if err := s.store.Upsert(ctx, s.fromRemote(userID, &remotes[i])); err != nil {
			s.log.ErrorContext(ctx, "failed to mirror subscription",
				"subscription_id", remotes[i].ID, "user_id", userID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// PruneCustomer drops a customer's mirror rows. Called when a customer is
// demoted to a secondary billing account and its subscriptions no longer
// reflect anything live.
func (s *Syncer) PruneCustomer(ctx context.Context, customerID string) error {
	return s.store.DeleteByCustomer(ctx, customerID)
}

// Apply mirrors an already-fetched subscription, typically one carried in a
// webhook payload, without a provider round trip.
func (s *Syncer) Apply(ctx context.Context, userID uuid.UUID, remote *billing.Subscription) error {
	return s.store.Upsert(ctx, s.fromRemote(userID, remote))
}

func (s *Syncer) fromRemote(userID uuid.UUID, remote *billing.Subscription) *Subscription {
	return &Subscription{
		ID:                 remote.ID,
		UserID:             userID,
		CustomerID:         remote.CustomerID,
		PriceID:            remote.PriceID,
		Status:             Status(remote.Status),
		CancelAtPeriodEnd:  remote.CancelAtPeriodEnd,
		CurrentPeriodStart: remote.CurrentPeriodStart,
		CurrentPeriodEnd:   remote.CurrentPeriodEnd,
		CanceledAt:         remote.CanceledAt,
		UpdatedAt:          s.now().UTC(),
	}
}
