package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
)

// ErrNotConfigured is returned when no billing processor key is set.
var ErrNotConfigured = errors.New("billing is not configured")

// Users loads the account that becomes the billing customer.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service starts and cancels restaurant subscriptions.
type Service struct {
	gateway  Gateway
	store    Store
	resolver *access.Resolver
	users    Users
	logger   *zap.Logger
}

// NewService creates a billing service. A nil gateway makes every call return ErrNotConfigured.
func NewService(gateway Gateway, store Store, resolver *access.Resolver, users Users, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gateway: gateway, store: store, resolver: resolver, users: users, logger: logger}
}

func blocksNewSubscription(status string) bool {
	switch status {
	case models.SubscriptionActive, models.SubscriptionTrialing, models.SubscriptionPastDue, models.SubscriptionUnpaid:
		return true
	}
	return false
}

// CreateSubscription subscribes a restaurant to priceID. The owner's billing customer is
// created on first use and kept on the restaurant. The returned client secret confirms the
// first payment; the status settles through webhook events.
func (s *Service) CreateSubscription(ctx context.Context, restaurantID uuid.UUID, priceID string, actor models.Actor) (*Checkout, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, apperr.Validation("price_id is required")
	}
	rest, err := s.resolver.Restaurant(ctx, restaurantID, actor)
	if err != nil {
		return nil, err
	}
	if rest.SubscriptionID != "" && blocksNewSubscription(rest.SubscriptionStatus) {
		return nil, apperr.Conflict("restaurant already has a subscription")
	}

	customer := rest.StripeCustomerID
	if customer == "" {
		owner, err := s.users.GetByID(ctx, rest.UserID)
		if err != nil {
			return nil, err
		}
		customer, err = s.gateway.CreateCustomer(ctx, owner.Email, rest.ID, owner.ID)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpdateSubscription(ctx, models.Subscription{
			RestaurantID:     rest.ID,
			Status:           rest.SubscriptionStatus,
			StripeCustomerID: customer,
		}); err != nil {
			return nil, err
		}
	}

	checkout, err := s.gateway.CreateSubscription(ctx, customer, priceID, rest.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSubscription(ctx, models.Subscription{
		RestaurantID:     rest.ID,
		Status:           checkout.Status,
		SubscriptionID:   checkout.SubscriptionID,
		StripeCustomerID: customer,
	}); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created",
		zap.String("restaurant_id", rest.ID.String()),
		zap.String("subscription_id", checkout.SubscriptionID),
		zap.String("status", checkout.Status))
	return checkout, nil
}

// CancelSubscription cancels the restaurant's subscription and puts it back on the free plan.
func (s *Service) CancelSubscription(ctx context.Context, restaurantID uuid.UUID, actor models.Actor) (*models.Subscription, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	rest, err := s.resolver.Restaurant(ctx, restaurantID, actor)
	if err != nil {
		return nil, err
	}
	if rest.SubscriptionID == "" {
		return nil, apperr.NotFound("subscription")
	}
	if err := s.gateway.CancelSubscription(ctx, rest.SubscriptionID); err != nil {
		return nil, err
	}
	if err := s.store.ResetSubscription(ctx, rest.ID); err != nil {
		return nil, err
	}
	s.logger.Info("subscription cancelled",
		zap.String("restaurant_id", rest.ID.String()),
		zap.String("subscription_id", rest.SubscriptionID))
	return &models.Subscription{
		RestaurantID:     rest.ID,
		Status:           models.SubscriptionFree,
		StripeCustomerID: rest.StripeCustomerID,
	}, nil
}

// Plans lists the recurring prices restaurants can subscribe to.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	return s.gateway.ListPlans(ctx)
}
