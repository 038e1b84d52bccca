package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billinghttp "github.com/dmitrymomot/launchkit/modules/billing"
	"github.com/dmitrymomot/launchkit/pkg/feature"
	"github.com/dmitrymomot/launchkit/pkg/linktoken"
	"github.com/dmitrymomot/launchkit/svc/reconcile"
)

type fakeReconciler struct {
	checkResult *reconcile.CheckResult
	linkResult  *reconcile.Result
	linkErr     error

	linkedUser    uuid.UUID
	linkedEmail   string
	linkedSession string
}

func (f *fakeReconciler) Check(_ context.Context, _ string) (*reconcile.CheckResult, error) {
	if f.checkResult == nil {
		return &reconcile.CheckResult{}, nil
	}
	return f.checkResult, nil
}

func (f *fakeReconciler) Link(_ context.Context, userID uuid.UUID, userEmail, sessionID string) (*reconcile.Result, error) {
	f.linkedUser = userID
	f.linkedEmail = userEmail
	f.linkedSession = sessionID
	return f.linkResult, f.linkErr
}

func newLinkFixture(t *testing.T, rec *fakeReconciler, opts ...billinghttp.LinkOption) (http.Handler, *linktoken.Issuer) {
	t.Helper()
	issuer, err := linktoken.NewIssuer("test-secret", 15*time.Minute)
	require.NoError(t, err)
	return billinghttp.NewLinkService(rec, issuer, nil, opts...).Handle(), issuer
}

func postLink(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/link", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLinkEndpointValidation(t *testing.T) {
	t.Parallel()

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		rec := postLink(t, handler, map[string]string{"action": "merge"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		req := httptest.NewRequest(http.MethodPost, "/link", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("check requires email and provider", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		rec := postLink(t, handler, map[string]string{"action": "check", "email": "a@b.co"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("link requires token and session", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		rec := postLink(t, handler, map[string]string{"action": "link", "token": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("link requires userId", func(t *testing.T) {
		t.Parallel()

		reconciler := &fakeReconciler{}
		handler, issuer := newLinkFixture(t, reconciler)
		token, err := issuer.Issue(uuid.New(), "a@b.co", "google")
		require.NoError(t, err)

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": token, "sessionId": "cs_1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, reconciler.linkedSession)
	})
}

func TestLinkEndpointCheck(t *testing.T) {
	t.Parallel()

	handler, _ := newLinkFixture(t, &fakeReconciler{
		checkResult: &reconcile.CheckResult{Linkable: true, SessionID: "cs_1", CustomerID: "cus_1"},
	})

	rec := postLink(t, handler, map[string]string{
		"action": "check", "email": "buyer@example.com", "provider": "google",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res reconcile.CheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Linkable)
	assert.Equal(t, "cs_1", res.SessionID)
}

func TestLinkEndpointTokens(t *testing.T) {
	t.Parallel()

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": "not-a-token", "sessionId": "cs_1",
			"userId": uuid.NewString(),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token from another issuer", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{})
		other, err := linktoken.NewIssuer("other-secret", time.Minute)
		require.NoError(t, err)
		userID := uuid.New()
		token, err := other.Issue(userID, "a@b.co", "google")
		require.NoError(t, err)

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": token, "sessionId": "cs_1",
			"userId": userID.String(),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user mismatch", func(t *testing.T) {
		t.Parallel()

		handler, issuer := newLinkFixture(t, &fakeReconciler{})
		token, err := issuer.Issue(uuid.New(), "a@b.co", "google")
		require.NoError(t, err)

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": token, "sessionId": "cs_1",
			"userId": uuid.NewString(),
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestLinkEndpointOutcomes(t *testing.T) {
	t.Parallel()

	issueFor := func(t *testing.T, issuer *linktoken.Issuer, userID uuid.UUID) string {
		t.Helper()
		token, err := issuer.Issue(userID, "buyer@example.com", "google")
		require.NoError(t, err)
		return token
	}

	t.Run("successful link", func(t *testing.T) {
		t.Parallel()

		reconciler := &fakeReconciler{
			linkResult: &reconcile.Result{Outcome: reconcile.OutcomeLinkedNew, CustomerID: "cus_1"},
		}
		handler, issuer := newLinkFixture(t, reconciler)
		userID := uuid.New()

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": issueFor(t, issuer, userID),
			"sessionId": "cs_1", "userId": userID.String(),
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var res reconcile.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, reconcile.OutcomeLinkedNew, res.Outcome)
		assert.Equal(t, userID, reconciler.linkedUser)
		assert.Equal(t, "buyer@example.com", reconciler.linkedEmail)
		assert.Equal(t, "cs_1", reconciler.linkedSession)
	})

	t.Run("failed outcome maps to 400", func(t *testing.T) {
		t.Parallel()

		reconciler := &fakeReconciler{
			linkResult: &reconcile.Result{Outcome: reconcile.OutcomeFailed, Reason: "email mismatch"},
			linkErr:    reconcile.ErrEmailMismatch,
		}
		handler, issuer := newLinkFixture(t, reconciler)
		userID := uuid.New()

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": issueFor(t, issuer, userID), "sessionId": "cs_1",
			"userId": userID.String(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lock contention maps to 409", func(t *testing.T) {
		t.Parallel()

		reconciler := &fakeReconciler{
			linkResult: &reconcile.Result{Outcome: reconcile.OutcomeFailed, Reason: "contended"},
			linkErr:    reconcile.ErrLockContended,
		}
		handler, issuer := newLinkFixture(t, reconciler)
		userID := uuid.New()

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": issueFor(t, issuer, userID), "sessionId": "cs_1",
			"userId": userID.String(),
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("requires review is a terminal 200", func(t *testing.T) {
		t.Parallel()

		reconciler := &fakeReconciler{
			linkResult: &reconcile.Result{Outcome: reconcile.OutcomeRequiresReview},
		}
		handler, issuer := newLinkFixture(t, reconciler)
		userID := uuid.New()

		rec := postLink(t, handler, map[string]string{
			"action": "link", "token": issueFor(t, issuer, userID), "sessionId": "cs_1",
			"userId": userID.String(),
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var res reconcile.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, reconcile.OutcomeRequiresReview, res.Outcome)
	})
}

func TestLinkEndpointFeatureGate(t *testing.T) {
	t.Parallel()

	newProvider := func(t *testing.T, enabled bool) feature.Provider {
		t.Helper()
		p, err := feature.NewMemoryProvider(&feature.Flag{Name: "guest-checkout-linking", Enabled: enabled})
		require.NoError(t, err)
		return p
	}

	t.Run("disabled flag blocks the flow", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{},
			billinghttp.WithFeatureGate(newProvider(t, false), "guest-checkout-linking"))

		rec := postLink(t, handler, map[string]string{
			"action": "check", "email": "a@b.co", "provider": "google",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("enabled flag lets requests through", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{},
			billinghttp.WithFeatureGate(newProvider(t, true), "guest-checkout-linking"))

		rec := postLink(t, handler, map[string]string{
			"action": "check", "email": "a@b.co", "provider": "google",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown flag fails open", func(t *testing.T) {
		t.Parallel()

		handler, _ := newLinkFixture(t, &fakeReconciler{},
			billinghttp.WithFeatureGate(newProvider(t, true), "no-such-flag"))

		rec := postLink(t, handler, map[string]string{
			"action": "check", "email": "a@b.co", "provider": "google",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
