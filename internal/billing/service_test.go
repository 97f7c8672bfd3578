package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/internal/models"
)

type noHierarchy struct{}

func (noHierarchy) GetOwnedMenu(context.Context, uuid.UUID) (*models.OwnedMenu, error) {
	return nil, apperr.NotFound("menu")
}

func (noHierarchy) GetOwnedCategory(context.Context, uuid.UUID) (*models.OwnedCategory, error) {
	return nil, apperr.NotFound("category")
}

func (noHierarchy) GetOwnedItem(context.Context, uuid.UUID) (*models.OwnedItem, error) {
	return nil, apperr.NotFound("item")
}

func (noHierarchy) GetOwnedItems(context.Context, []uuid.UUID) ([]models.OwnedItem, error) {
	return nil, nil
}

type memUsers map[uuid.UUID]*models.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

type fakeGateway struct {
	customers []string
	created   []string
	cancelled []string
	meta      uuid.UUID
	failPrice bool
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email string, _, _ uuid.UUID) (string, error) {
	g.customers = append(g.customers, email)
	return "cus_new", nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, customerID, priceID string, restaurantID uuid.UUID) (*Checkout, error) {
	if g.failPrice {
		return nil, apperr.Validation("create subscription: no such price: %s", priceID)
	}
	g.created = append(g.created, customerID+"/"+priceID)
	g.meta = restaurantID
	return &Checkout{SubscriptionID: "sub_new", Status: models.SubscriptionIncomplete, ClientSecret: "pi_secret"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, subscriptionID string) error {
	g.cancelled = append(g.cancelled, subscriptionID)
	return nil
}

func (g *fakeGateway) ListPlans(context.Context) ([]Plan, error) {
	return []Plan{{PriceID: "price_pro", Product: "Pro", Amount: decimal.New(1900, -2), Currency: "usd", Interval: "month"}}, nil
}

type billingFixture struct {
	router  *gin.Engine
	gateway *fakeGateway
	rest    *models.Restaurant
	owner   *models.User
}

func newBillingFixture(gateway Gateway) billingFixture {
	gin.SetMode(gin.TestMode)
	owner := &models.User{ID: uuid.New(), Email: "owner@bistro.test", Role: models.RoleUser}
	rest := &models.Restaurant{ID: uuid.New(), Name: "Bistro", UserID: owner.ID, SubscriptionStatus: models.SubscriptionFree}
	store := &memStore{restaurants: map[uuid.UUID]*models.Restaurant{rest.ID: rest}}
	svc := NewService(gateway, store, access.NewResolver(store, noHierarchy{}), memUsers{owner.ID: owner}, nil)
	h := NewSubscriptionHandler(svc, nil)

	r := gin.New()
	h.RegisterPublicRoutes(r.Group(""))
	h.RegisterRoutes(r.Group("", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			middleware.SetActor(c, models.Actor{ID: id, Role: models.RoleUser})
		}
	}))
	fg, _ := gateway.(*fakeGateway)
	return billingFixture{router: r, gateway: fg, rest: rest, owner: owner}
}

func (f billingFixture) do(method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user.String())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateSubscription_CreatesCustomerOnce(t *testing.T) {
	f := newBillingFixture(&fakeGateway{})
	path := "/restaurants/" + f.rest.ID.String() + "/subscription"

	w := f.do(http.MethodPost, path, f.owner.ID, CreateSubscriptionRequest{PriceID: "price_pro"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env struct {
		Data Checkout `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "pi_secret", env.Data.ClientSecret)
	assert.Equal(t, []string{"owner@bistro.test"}, f.gateway.customers)
	assert.Equal(t, []string{"cus_new/price_pro"}, f.gateway.created)
	assert.Equal(t, f.rest.ID, f.gateway.meta)
	assert.Equal(t, "cus_new", f.rest.StripeCustomerID)
	assert.Equal(t, "sub_new", f.rest.SubscriptionID)
	assert.Equal(t, models.SubscriptionIncomplete, f.rest.SubscriptionStatus)

	// An abandoned checkout can be retried and reuses the customer.
	w = f.do(http.MethodPost, path, f.owner.ID, CreateSubscriptionRequest{PriceID: "price_pro"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, f.gateway.customers, 1)
	assert.Equal(t, "cus_new/price_pro", f.gateway.created[1])
}

func TestCreateSubscription_Rejections(t *testing.T) {
	f := newBillingFixture(&fakeGateway{})
	path := "/restaurants/" + f.rest.ID.String() + "/subscription"

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path, uuid.New(), CreateSubscriptionRequest{PriceID: "price_pro"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, path, f.owner.ID, map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(http.MethodPost, "/restaurants/"+uuid.NewString()+"/subscription", f.owner.ID, CreateSubscriptionRequest{PriceID: "p"}).Code)

	f.rest.SubscriptionID = "sub_live"
	f.rest.SubscriptionStatus = models.SubscriptionActive
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, path, f.owner.ID, CreateSubscriptionRequest{PriceID: "price_pro"}).Code)
	assert.Empty(t, f.gateway.created)
}

func TestCreateSubscription_UnknownPrice(t *testing.T) {
	f := newBillingFixture(&fakeGateway{failPrice: true})
	w := f.do(http.MethodPost, "/restaurants/"+f.rest.ID.String()+"/subscription", f.owner.ID, CreateSubscriptionRequest{PriceID: "price_gone"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.SubscriptionFree, f.rest.SubscriptionStatus)
}

func TestCancelSubscription_ResetsToFree(t *testing.T) {
	f := newBillingFixture(&fakeGateway{})
	path := "/restaurants/" + f.rest.ID.String() + "/subscription"

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, path, f.owner.ID, nil).Code)

	f.rest.StripeCustomerID = "cus_1"
	f.rest.SubscriptionID = "sub_1"
	f.rest.SubscriptionStatus = models.SubscriptionActive
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, path, uuid.New(), nil).Code)

	w := f.do(http.MethodDelete, path, f.owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"sub_1"}, f.gateway.cancelled)
	assert.Equal(t, models.SubscriptionFree, f.rest.SubscriptionStatus)
	assert.Empty(t, f.rest.SubscriptionID)
	assert.Equal(t, "cus_1", f.rest.StripeCustomerID)
}

func TestPlans(t *testing.T) {
	f := newBillingFixture(&fakeGateway{})
	req := httptest.NewRequest(http.MethodGet, "/billing/plans", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data []Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Pro", env.Data[0].Product)
	assert.True(t, decimal.RequireFromString("19").Equal(env.Data[0].Amount))
}

func TestSubscription_NotConfigured(t *testing.T) {
	f := newBillingFixture(nil)
	w := f.do(http.MethodPost, "/restaurants/"+f.rest.ID.String()+"/subscription", f.owner.ID, CreateSubscriptionRequest{PriceID: "price_pro"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/billing/plans", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
