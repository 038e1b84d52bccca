package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billinghttp "github.com/dmitrymomot/launchkit/modules/billing"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/svc/profile"
)

type accountGateway struct {
	addresses map[string]*billing.Address
	invoices  map[string][]billing.Invoice
	intents   map[string][]billing.PaymentIntent
}

func (g *accountGateway) GetBillingAddress(_ context.Context, customerID string) (*billing.Address, error) {
	if g.addresses == nil {
		return nil, nil
	}
	return g.addresses[customerID], nil
}

func (g *accountGateway) UpdateBillingAddress(_ context.Context, customerID string, addr billing.Address) error {
	if g.addresses == nil {
		g.addresses = map[string]*billing.Address{}
	}
	g.addresses[customerID] = &addr
	return nil
}

func (g *accountGateway) ListInvoices(_ context.Context, customerID string, _ int64) ([]billing.Invoice, error) {
	return g.invoices[customerID], nil
}

func (g *accountGateway) ListPaymentIntents(_ context.Context, customerID string, _ int64) ([]billing.PaymentIntent, error) {
	return g.intents[customerID], nil
}

func newAccountFixture(t *testing.T, gw *accountGateway) (http.Handler, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	profiles := profile.NewMemoryStore()
	userID := uuid.New()
	require.NoError(t, profiles.Upsert(ctx, &profile.Profile{
		ID: uuid.New(), UserID: userID, Email: "user@example.com",
	}))
	require.NoError(t, profiles.LinkCustomer(ctx, userID, "cus_1"))

	return billinghttp.NewAccountService(gw, profiles, nil).Handle(), userID
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBillingAddressEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		gw := &accountGateway{}
		handler, userID := newAccountFixture(t, gw)

		addr := billing.Address{Line1: "1 Main St", City: "Lisbon", PostalCode: "1000-001", Country: "PT"}
		rec := doJSON(t, handler, http.MethodPut, "/address", map[string]any{
			"userId": userID.String(), "address": addr,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/address", map[string]any{
			"userId": userID.String(),
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var res struct {
			Address *billing.Address `json:"address"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.NotNil(t, res.Address)
		assert.Equal(t, "Lisbon", res.Address.City)
	})

	t.Run("update requires an address", func(t *testing.T) {
		t.Parallel()

		handler, userID := newAccountFixture(t, &accountGateway{})
		rec := doJSON(t, handler, http.MethodPut, "/address", map[string]any{
			"userId": userID.String(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		t.Parallel()

		handler, _ := newAccountFixture(t, &accountGateway{})
		rec := doJSON(t, handler, http.MethodPost, "/address", map[string]any{
			"userId": uuid.NewString(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPaymentHistoryEndpoint(t *testing.T) {
	t.Parallel()

	gw := &accountGateway{
		invoices: map[string][]billing.Invoice{
			"cus_1": {{ID: "in_1", Status: "paid", AmountPaid: 1900, Currency: "usd"}},
		},
		intents: map[string][]billing.PaymentIntent{
			"cus_1": {{ID: "pi_1", Status: "succeeded", Amount: 1900, Currency: "usd"}},
		},
	}
	handler, userID := newAccountFixture(t, gw)

	rec := doJSON(t, handler, http.MethodPost, "/payments", map[string]any{
		"userId": userID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Invoices []billing.Invoice       `json:"invoices"`
		Payments []billing.PaymentIntent `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Invoices, 1)
	require.Len(t, res.Payments, 1)
	assert.Equal(t, "in_1", res.Invoices[0].ID)
	assert.Equal(t, "pi_1", res.Payments[0].ID)
}
