package profile_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

type fakeGateway struct {
	byUserID map[string]*billing.Customer
	created  int
}

func (f *fakeGateway) CreateCustomer(_ context.Context, params billing.CreateCustomerParams) (*billing.Customer, error) {
	f.created++
	c := &billing.Customer{
		ID:       "cus_" + params.UserID[:8],
		Email:    params.Email,
		Name:     params.Name,
		Metadata: map[string]string{"user_id": params.UserID},
	}
	if f.byUserID == nil {
		f.byUserID = map[string]*billing.Customer{}
	}
	f.byUserID[params.UserID] = c
	return c, nil
}

func (f *fakeGateway) FindCustomerByUserID(_ context.Context, userID string) (*billing.Customer, error) {
	c, ok := f.byUserID[userID]
	if !ok {
		return nil, billing.ErrCustomerNotFound
	}
	return c, nil
}

func TestEnsureCustomer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates profile and customer", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		gw := &fakeGateway{}
		svc := profile.NewService(store, gw, nil)
		userID := uuid.New()

		res, err := svc.EnsureCustomer(ctx, userID, "user@example.com", "Jane Doe")
		require.NoError(t, err)
		assert.True(t, res.CreatedDoc)
		assert.True(t, res.CreatedRemote)
		assert.NotEmpty(t, res.CustomerID)

		p, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, res.CustomerID, p.StripeCustomerID)

		linked, ok := store.LinkedUser(res.CustomerID)
		require.True(t, ok)
		assert.Equal(t, userID, linked)
	})

	t.Run("idempotent for the same user", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		gw := &fakeGateway{}
		svc := profile.NewService(store, gw, nil)
		userID := uuid.New()

		first, err := svc.EnsureCustomer(ctx, userID, "user@example.com", "")
		require.NoError(t, err)
		second, err := svc.EnsureCustomer(ctx, userID, "user@example.com", "")
		require.NoError(t, err)

		assert.Equal(t, first.CustomerID, second.CustomerID)
		assert.False(t, second.CreatedDoc)
		assert.False(t, second.CreatedRemote)
		assert.Equal(t, 1, gw.created)
	})

	t.Run("reuses remote customer after partial failure", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		gw := &fakeGateway{}
		svc := profile.NewService(store, gw, nil)
		userID := uuid.New()

		// A previous run created the remote customer but never linked it.
		remote, err := gw.CreateCustomer(ctx, billing.CreateCustomerParams{
			UserID: userID.String(), Email: "user@example.com",
		})
		require.NoError(t, err)

		res, err := svc.EnsureCustomer(ctx, userID, "user@example.com", "")
		require.NoError(t, err)
		assert.Equal(t, remote.ID, res.CustomerID)
		assert.False(t, res.CreatedRemote)
		assert.Equal(t, 1, gw.created)
	})
}

func TestLinkCustomer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newUser := func(t *testing.T, store *profile.MemoryStore) uuid.UUID {
		t.Helper()
		userID := uuid.New()
		require.NoError(t, store.Upsert(ctx, &profile.Profile{
			ID: uuid.New(), UserID: userID, Email: "user@example.com",
		}))
		return userID
	}

	t.Run("links unlinked profile", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		svc := profile.NewService(store, &fakeGateway{}, nil)
		userID := newUser(t, store)

		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_1", false))

		p, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "cus_1", p.StripeCustomerID)
	})

	t.Run("refuses to overwrite a different link", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		svc := profile.NewService(store, &fakeGateway{}, nil)
		userID := newUser(t, store)

		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_1", false))
		err := svc.LinkCustomer(ctx, userID, "cus_2", false)
		require.ErrorIs(t, err, profile.ErrCustomerAlreadyLinked)

		p, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "cus_1", p.StripeCustomerID)
	})

	t.Run("force overwrites", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		svc := profile.NewService(store, &fakeGateway{}, nil)
		userID := newUser(t, store)

		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_1", false))
		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_2", true))

		p, err := store.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "cus_2", p.StripeCustomerID)
	})

	t.Run("relinking same customer is a no-op", func(t *testing.T) {
		t.Parallel()

		store := profile.NewMemoryStore()
		svc := profile.NewService(store, &fakeGateway{}, nil)
		userID := newUser(t, store)

		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_1", false))
		require.NoError(t, svc.LinkCustomer(ctx, userID, "cus_1", false))
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		svc := profile.NewService(profile.NewMemoryStore(), &fakeGateway{}, nil)
		err := svc.LinkCustomer(ctx, uuid.New(), "cus_1", false)
		require.ErrorIs(t, err, profile.ErrProfileNotFound)
	})
}
