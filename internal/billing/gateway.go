package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/menuqr/backend/internal/apperr"
)

// Plan is a recurring price offered to restaurants.
type Plan struct {
	PriceID  string          `json:"price_id"`
	Product  string          `json:"product,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Interval string          `json:"interval"`
}

// Checkout is what the dashboard needs to confirm the first payment of a new subscription.
type Checkout struct {
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	ClientSecret   string `json:"client_secret,omitempty"`
}

// Gateway is the subset of the billing processor the service calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, email string, restaurantID, userID uuid.UUID) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID string, restaurantID uuid.UUID) (*Checkout, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ListPlans(ctx context.Context) ([]Plan, error)
}

// StripeGateway implements Gateway with the Stripe API client.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway creates a client for key. apiURL overrides the API host (stripe-mock, tests).
func NewStripeGateway(key, apiURL string) *StripeGateway {
	var backends *stripe.Backends
	if apiURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(apiURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
	return &StripeGateway{api: client.New(key, backends)}
}

// CreateCustomer registers the restaurant owner as a billing customer.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email string, restaurantID, userID uuid.UUID) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata(MetadataRestaurantID, restaurantID.String())
	params.AddMetadata("user_id", userID.String())
	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrapStripe("create customer", err)
	}
	return c.ID, nil
}

// CreateSubscription starts an incomplete subscription tagged with the restaurant id,
// so webhook events find their restaurant without a customer lookup.
func (g *StripeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, restaurantID uuid.UUID) (*Checkout, error) {
	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(customerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(priceID)}},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataRestaurantID, restaurantID.String())
	params.AddExpand("latest_invoice.payment_intent")
	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, wrapStripe("create subscription", err)
	}
	out := &Checkout{SubscriptionID: sub.ID, Status: MapStatus(sub.Status)}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

// CancelSubscription cancels immediately.
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return wrapStripe("cancel subscription", err)
	}
	return nil
}

// ListPlans returns the active recurring prices with their product names.
func (g *StripeGateway) ListPlans(ctx context.Context) ([]Plan, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
		Type:   stripe.String(string(stripe.PriceTypeRecurring)),
	}
	params.Context = ctx
	params.AddExpand("data.product")
	var plans []Plan
	it := g.api.Prices.List(params)
	for it.Next() {
		p := it.Price()
		plan := Plan{
			PriceID:  p.ID,
			Amount:   decimal.New(p.UnitAmount, -2),
			Currency: string(p.Currency),
			Interval: "month",
		}
		if p.Product != nil {
			plan.Product = p.Product.Name
		}
		if p.Recurring != nil && p.Recurring.Interval != "" {
			plan.Interval = string(p.Recurring.Interval)
		}
		plans = append(plans, plan)
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripe("list prices", err)
	}
	return plans, nil
}

// wrapStripe turns request errors the caller caused (bad price id) into validation errors.
func wrapStripe(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeInvalidRequest && se.HTTPStatusCode < 500 {
		return apperr.Validation("%s: %s", op, se.Msg)
	}
	return apperr.Upstream(op, err)
}
