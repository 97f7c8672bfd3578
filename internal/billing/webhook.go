// Package billing manages restaurant subscriptions with Stripe and mirrors the state Stripe pushes back.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/pkg/response"
)

const maxBodyBytes = 64 << 10

// MetadataRestaurantID is the subscription metadata key that links a subscription to a restaurant.
const MetadataRestaurantID = "restaurant_id"

// Store updates the subscription fields of restaurants.
type Store interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Restaurant, error)
	UpdateSubscription(ctx context.Context, sub models.Subscription) error
	ResetSubscription(ctx context.Context, id uuid.UUID) error
}

// Handler receives Stripe webhook events.
type Handler struct {
	store  Store
	secret string
	logger *zap.Logger
}

// NewHandler creates a webhook handler verifying signatures with secret.
func NewHandler(store Store, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, secret: secret, logger: logger}
}

// MapStatus converts a Stripe subscription status to the stored value.
func MapStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionPastDue
	case stripe.SubscriptionStatusIncomplete:
		return models.SubscriptionIncomplete
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCanceled
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return models.SubscriptionUnpaid
	default:
		return models.SubscriptionIncomplete
	}
}

// Stripe handles POST /webhooks/stripe. Events that cannot be matched to a restaurant
// are acknowledged and logged so Stripe stops retrying them.
func (h *Handler) Stripe(c *gin.Context) {
	if h.secret == "" {
		response.ServiceUnavailable(c, "billing webhook is not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe signature rejected", zap.Error(err))
		response.BadRequest(c, "invalid signature")
		return
	}

	err = h.Apply(c.Request.Context(), event)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
		h.logger.Warn("stripe event skipped", zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)), zap.Error(err))
	default:
		h.logger.Error("stripe event failed", zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)), zap.Error(err))
		response.Internal(c, "failed to process event")
		return
	}
	response.OK(c, gin.H{"received": true})
}

// Apply updates the restaurant an event refers to. Unhandled event types are ignored.
func (h *Handler) Apply(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return apperr.Validation("event has no data")
	}
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return apperr.Validation("decode subscription: %v", err)
		}
		if event.Type == "customer.subscription.deleted" {
			return h.reset(ctx, sub.Metadata, customerID(sub.Customer), sub.ID)
		}
		return h.update(ctx, sub.Metadata, customerID(sub.Customer), sub.ID, MapStatus(sub.Status))

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return apperr.Validation("decode invoice: %v", err)
		}
		if inv.Subscription == nil {
			return nil
		}
		status := models.SubscriptionActive
		if event.Type == "invoice.payment_failed" {
			status = models.SubscriptionPastDue
		}
		return h.update(ctx, inv.Subscription.Metadata, customerID(inv.Customer), inv.Subscription.ID, status)

	default:
		h.logger.Debug("stripe event ignored", zap.String("type", string(event.Type)))
		return nil
	}
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// find resolves the restaurant by subscription metadata first, then by customer id.
func (h *Handler) find(ctx context.Context, metadata map[string]string, customer string) (*models.Restaurant, error) {
	if raw := metadata[MetadataRestaurantID]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.Validation("invalid %s metadata %q", MetadataRestaurantID, raw)
		}
		return h.store.GetRestaurant(ctx, id)
	}
	if customer != "" {
		return h.store.GetByStripeCustomerID(ctx, customer)
	}
	return nil, apperr.Validation("event names neither a restaurant nor a customer")
}

func (h *Handler) update(ctx context.Context, metadata map[string]string, customer, subscriptionID, status string) error {
	rest, err := h.find(ctx, metadata, customer)
	if err != nil {
		return err
	}
	h.logger.Info("subscription updated",
		zap.String("restaurant_id", rest.ID.String()),
		zap.String("status", status),
		zap.String("subscription_id", subscriptionID))
	return h.store.UpdateSubscription(ctx, models.Subscription{
		RestaurantID:     rest.ID,
		Status:           status,
		SubscriptionID:   subscriptionID,
		StripeCustomerID: customer,
	})
}

// reset returns the restaurant to the free plan. A deletion of a subscription the
// restaurant has already replaced is ignored.
func (h *Handler) reset(ctx context.Context, metadata map[string]string, customer, subscriptionID string) error {
	rest, err := h.find(ctx, metadata, customer)
	if err != nil {
		return err
	}
	if rest.SubscriptionID != "" && rest.SubscriptionID != subscriptionID {
		h.logger.Info("stale subscription deletion ignored",
			zap.String("restaurant_id", rest.ID.String()),
			zap.String("subscription_id", subscriptionID))
		return nil
	}
	h.logger.Info("subscription ended",
		zap.String("restaurant_id", rest.ID.String()),
		zap.String("subscription_id", subscriptionID))
	return h.store.ResetSubscription(ctx, rest.ID)
}
