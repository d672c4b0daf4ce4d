package reconciler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/reconciler"
)

const testEndpointSecret = "whsec_test_secret"

// signedRequest builds a webhook POST carrying a valid Stripe signature
// header for the payload.
func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testEndpointSecret)
	header := fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("stripe-signature", header)
	return req
}

func eventPayload(eventType, objectRaw string) string {
	return fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"type": %q,
		"data": {"object": %s}
	}`, eventType, objectRaw)
}

func newHandler(t *testing.T) (http.HandlerFunc, *fixture) {
	t.Helper()

	rec, f := newFixture(t)
	return reconciler.Handler(testEndpointSecret, rec, nil), f
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHandler(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing signature", func(t *testing.T) {
		t.Parallel()

		h, _ := newHandler(t)
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe",
			strings.NewReader(eventPayload("product.created", productRaw)))
		rr := httptest.NewRecorder()
		h(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid signature", decodeBody(t, rr)["error"])
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		t.Parallel()

		h, _ := newHandler(t)

		// Signature computed over a different body.
		header := signedRequest(t, "{}").Header.Get("stripe-signature")
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe",
			strings.NewReader(eventPayload("product.created", productRaw)))
		req.Header.Set("stripe-signature", header)

		rr := httptest.NewRecorder()
		h(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("acknowledges irrelevant event types", func(t *testing.T) {
		t.Parallel()

		h, f := newHandler(t)
		req := signedRequest(t, eventPayload("payment_intent.succeeded", `{"id": "pi_1"}`))
		rr := httptest.NewRecorder()
		h(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, decodeBody(t, rr)["ignored"])

		// State is untouched.
		_, ok := f.store.Product("prod_1")
		assert.False(t, ok)
	})

	t.Run("processes relevant event", func(t *testing.T) {
		t.Parallel()

		h, f := newHandler(t)
		req := signedRequest(t, eventPayload("product.created", productRaw))
		rr := httptest.NewRecorder()
		h(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, decodeBody(t, rr)["received"])

		p, ok := f.store.Product("prod_1")
		require.True(t, ok)
		assert.Equal(t, "Consultant Plan", p.Name)
	})

	t.Run("processing failure answers 400 for redelivery", func(t *testing.T) {
		t.Parallel()

		h, _ := newHandler(t)
		// Subscription for a customer the store has never seen.
		raw := `{"id": "sub_9", "customer": "cus_stranger", "items": {"data": [{"price": {"id": "price_1", "product": "prod_1"}}]}}`
		req := signedRequest(t, eventPayload("customer.subscription.created", raw))
		rr := httptest.NewRecorder()
		h(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeBody(t, rr)["error"], "no user for stripe customer")
	})
}

func TestHandler_EndToEnd(t *testing.T) {
	t.Parallel()

	rec, f := newFixture(t)
	h := reconciler.Handler(testEndpointSecret, rec, nil)

	deliver := func(t *testing.T, eventType, objectRaw string) {
		t.Helper()
		rr := httptest.NewRecorder()
		h(rr, signedRequest(t, eventPayload(eventType, objectRaw)))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	deliver(t, "product.created", productRaw)
	deliver(t, "customer.subscription.created", subscriptionRaw)
	deliver(t, "invoice.paid", invoiceRaw("paid"))

	localID, err := f.store.SubscriptionIDByStripeID(t.Context(), "sub_1")
	require.NoError(t, err)
	_, ok := f.store.Subscription(localID)
	assert.True(t, ok)
	assert.True(t, f.store.HasProductAccess(f.userID, "prod_1"))

	// A fresh period: every create/update axis reads zero.
	q, err := f.ledger.CheckLimit(t.Context(), f.userID, "GTMTags", ledger.OpCreate)
	require.NoError(t, err)
	assert.Zero(t, q.Usage)
	assert.Equal(t, int64(50), q.Limit)
}
