package guest_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/svc/guest"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

type fakeGateway struct {
	sessions  map[string]*billing.CheckoutSession
	customers map[string]*billing.Customer
}

func (f *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*billing.CheckoutSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, billing.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeGateway) GetCustomer(_ context.Context, id string) (*billing.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, billing.ErrCustomerNotFound
	}
	return c, nil
}

func newTracker(t *testing.T, gw *fakeGateway, profiles *profile.MemoryStore) (*guest.Tracker, *guest.MemoryStore) {
	t.Helper()
	if gw.sessions == nil {
		gw.sessions = map[string]*billing.CheckoutSession{}
	}
	if gw.customers == nil {
		gw.customers = map[string]*billing.Customer{}
	}
	store := guest.NewMemoryStore()
	return guest.NewTracker(store, gw, profiles, nil), store
}

func paidSession(id string) *billing.CheckoutSession {
	return &billing.CheckoutSession{
		ID:             id,
		Mode:           billing.ModeSubscription,
		PaymentStatus:  billing.PaymentStatusPaid,
		CustomerID:     "cus_guest",
		CustomerEmail:  "guest@example.com",
		SubscriptionID: "sub_1",
		AmountTotal:    1900,
		Currency:       "usd",
	}
}

func TestTrackerCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("window is exactly 24 hours", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		gs, err := tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)

		assert.True(t, gs.ExpiresAt.Equal(gs.CreatedAt.Add(guest.LinkWindow)))
		assert.Equal(t, "cus_guest", gs.CustomerID)
		assert.Equal(t, "guest@example.com", gs.Email)
		assert.False(t, gs.Consumed())
	})

	t.Run("rejects session without customer", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		sess := paidSession("cs_1")
		sess.CustomerID = ""

		_, err := tracker.Create(ctx, sess)
		require.ErrorIs(t, err, guest.ErrSessionIncomplete)
	})

	t.Run("duplicate create is a no-op", func(t *testing.T) {
		t.Parallel()

		tracker, store := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		first, err := tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)
		_, err = tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)

		stored, err := store.Get(ctx, "cs_1")
		require.NoError(t, err)
		assert.True(t, stored.CreatedAt.Equal(first.CreatedAt))
	})
}

func TestTrackerGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("store hit", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		created, err := tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)

		got, err := tracker.Get(ctx, "cs_1")
		require.NoError(t, err)
		assert.Equal(t, created.SessionID, got.SessionID)
	})

	t.Run("falls back to the provider", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{sessions: map[string]*billing.CheckoutSession{
			"cs_old": paidSession("cs_old"),
		}}
		tracker, _ := newTracker(t, gw, profile.NewMemoryStore())

		got, err := tracker.Get(ctx, "cs_old")
		require.NoError(t, err)
		assert.Equal(t, "cus_guest", got.CustomerID)
		assert.Equal(t, "guest@example.com", got.Email)
	})

	t.Run("fallback rejects incomplete session", func(t *testing.T) {
		t.Parallel()

		sess := paidSession("cs_old")
		sess.CustomerEmail = ""
		gw := &fakeGateway{sessions: map[string]*billing.CheckoutSession{"cs_old": sess}}
		tracker, _ := newTracker(t, gw, profile.NewMemoryStore())

		_, err := tracker.Get(ctx, "cs_old")
		require.ErrorIs(t, err, guest.ErrSessionIncomplete)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		_, err := tracker.Get(ctx, "cs_missing")
		require.ErrorIs(t, err, guest.ErrSessionNotFound)
	})
}

func TestTrackerMarkConsumed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stamps the consumer", func(t *testing.T) {
		t.Parallel()

		tracker, store := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		_, err := tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)

		userID := uuid.New()
		require.NoError(t, tracker.MarkConsumed(ctx, "cs_1", userID))

		stored, err := store.Get(ctx, "cs_1")
		require.NoError(t, err)
		require.NotNil(t, stored.ConsumedBy)
		assert.Equal(t, userID, *stored.ConsumedBy)
		assert.True(t, stored.Consumed())
	})

	t.Run("second consumer is rejected", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		_, err := tracker.Create(ctx, paidSession("cs_1"))
		require.NoError(t, err)

		require.NoError(t, tracker.MarkConsumed(ctx, "cs_1", uuid.New()))
		err = tracker.MarkConsumed(ctx, "cs_1", uuid.New())
		require.ErrorIs(t, err, guest.ErrSessionConsumed)
	})

	t.Run("missing row tolerated for fallback sessions", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		require.NoError(t, tracker.MarkConsumed(ctx, "cs_unknown", uuid.New()))
	})
}

func TestTrackerIsGuestCustomer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("profile link means authenticated", func(t *testing.T) {
		t.Parallel()

		profiles := profile.NewMemoryStore()
		userID := uuid.New()
		require.NoError(t, profiles.Upsert(ctx, &profile.Profile{ID: uuid.New(), UserID: userID}))
		require.NoError(t, profiles.LinkCustomer(ctx, userID, "cus_1"))

		tracker, _ := newTracker(t, &fakeGateway{}, profiles)
		isGuest, err := tracker.IsGuestCustomer(ctx, "cus_1")
		require.NoError(t, err)
		assert.False(t, isGuest)
	})

	t.Run("metadata tag means authenticated", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{customers: map[string]*billing.Customer{
			"cus_1": {ID: "cus_1", Metadata: map[string]string{"user_id": uuid.NewString()}},
		}}
		tracker, _ := newTracker(t, gw, profile.NewMemoryStore())

		isGuest, err := tracker.IsGuestCustomer(ctx, "cus_1")
		require.NoError(t, err)
		assert.False(t, isGuest)
	})

	t.Run("untagged customer is a guest", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{customers: map[string]*billing.Customer{
			"cus_1": {ID: "cus_1", Email: "guest@example.com"},
		}}
		tracker, _ := newTracker(t, gw, profile.NewMemoryStore())

		isGuest, err := tracker.IsGuestCustomer(ctx, "cus_1")
		require.NoError(t, err)
		assert.True(t, isGuest)
	})

	t.Run("deleted customer is a guest", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{customers: map[string]*billing.Customer{
			"cus_1": {ID: "cus_1", Deleted: true, Metadata: map[string]string{"user_id": "u1"}},
		}}
		tracker, _ := newTracker(t, gw, profile.NewMemoryStore())

		isGuest, err := tracker.IsGuestCustomer(ctx, "cus_1")
		require.NoError(t, err)
		assert.True(t, isGuest)
	})

	t.Run("missing customer is a guest", func(t *testing.T) {
		t.Parallel()

		tracker, _ := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())
		isGuest, err := tracker.IsGuestCustomer(ctx, "cus_missing")
		require.NoError(t, err)
		assert.True(t, isGuest)
	})
}

func TestTrackerCleanupExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tracker, store := newTracker(t, &fakeGateway{}, profile.NewMemoryStore())

	expired := &guest.GuestSession{
		SessionID:  "cs_expired",
		CustomerID: "cus_1",
		Email:      "a@example.com",
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, store.Create(ctx, expired))

	_, err := tracker.Create(ctx, paidSession("cs_live"))
	require.NoError(t, err)

	n, err := tracker.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "cs_expired")
	require.ErrorIs(t, err, guest.ErrSessionNotFound)

	pending, err := tracker.PendingSessions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cs_live", pending[0].SessionID)
}
