package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
)

// stripeStub answers the few Stripe endpoints the gateway calls and records the form values it received.
type stripeStub struct {
	mu    sync.Mutex
	forms map[string]map[string]string
}

func (s *stripeStub) record(key string, r *http.Request) {
	_ = r.ParseForm()
	vals := map[string]string{}
	for k, v := range r.Form {
		vals[k] = v[0]
	}
	s.mu.Lock()
	s.forms[key] = vals
	s.mu.Unlock()
}

func (s *stripeStub) form(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[key]
}

func (s *stripeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/customers"):
		s.record("customer", r)
		_, _ = w.Write([]byte(`{"id":"cus_123","object":"customer"}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/subscriptions"):
		s.record("subscription", r)
		if r.Form.Get("items[0][price]") == "price_gone" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price: 'price_gone'"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription","status":"incomplete",
			"latest_invoice":{"id":"in_1","object":"invoice","payment_intent":{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret"}}}`))
	case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/subscriptions/sub_123"):
		s.record("cancel", r)
		_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription","status":"canceled"}`))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/prices"):
		s.record("prices", r)
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/prices","has_more":false,"data":[
			{"id":"price_pro","object":"price","unit_amount":1900,"currency":"usd","recurring":{"interval":"month"},
			 "product":{"id":"prod_1","object":"product","name":"Pro"}},
			{"id":"price_year","object":"price","unit_amount":19000,"currency":"usd","recurring":{"interval":"year"},
			 "product":"prod_1"}]}`))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"unexpected route"}}`))
	}
}

func newStubGateway(t *testing.T) (*StripeGateway, *stripeStub) {
	t.Helper()
	stub := &stripeStub{forms: map[string]map[string]string{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return NewStripeGateway("sk_test_123", srv.URL), stub
}

func TestStripeGateway_CustomerAndSubscription(t *testing.T) {
	g, stub := newStubGateway(t)
	ctx := context.Background()
	restaurantID, userID := uuid.New(), uuid.New()

	customer, err := g.CreateCustomer(ctx, "owner@bistro.test", restaurantID, userID)
	require.NoError(t, err)
	assert.Equal(t, "cus_123", customer)
	assert.Equal(t, "owner@bistro.test", stub.form("customer")["email"])
	assert.Equal(t, restaurantID.String(), stub.form("customer")["metadata[restaurant_id]"])

	checkout, err := g.CreateSubscription(ctx, customer, "price_pro", restaurantID)
	require.NoError(t, err)
	assert.Equal(t, &Checkout{SubscriptionID: "sub_123", Status: models.SubscriptionIncomplete, ClientSecret: "pi_1_secret"}, checkout)
	form := stub.form("subscription")
	assert.Equal(t, "cus_123", form["customer"])
	assert.Equal(t, "price_pro", form["items[0][price]"])
	assert.Equal(t, "default_incomplete", form["payment_behavior"])
	assert.Equal(t, restaurantID.String(), form["metadata[restaurant_id]"])
	assert.Equal(t, "latest_invoice.payment_intent", form["expand[0]"])

	require.NoError(t, g.CancelSubscription(ctx, "sub_123"))
	assert.NotNil(t, stub.form("cancel"))
}

func TestStripeGateway_ListPlans(t *testing.T) {
	g, stub := newStubGateway(t)

	plans, err := g.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Pro", plans[0].Product)
	assert.Equal(t, "19", plans[0].Amount.String())
	assert.Equal(t, "usd", plans[0].Currency)
	assert.Equal(t, "month", plans[0].Interval)
	assert.Equal(t, "year", plans[1].Interval)
	assert.Equal(t, "190", plans[1].Amount.String())
	assert.Equal(t, "recurring", stub.form("prices")["type"])
	assert.Equal(t, "true", stub.form("prices")["active"])
}

func TestStripeGateway_ErrorKinds(t *testing.T) {
	g, _ := newStubGateway(t)
	ctx := context.Background()

	_, err := g.CreateSubscription(ctx, "cus_123", "price_gone", uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrValidation), err)

	err = g.CancelSubscription(ctx, "sub_missing_route")
	assert.True(t, errors.Is(err, apperr.ErrUpstream), err)
}
