package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses mirrored from the billing processor. Restaurants start on free.
const (
	SubscriptionFree       = "free"
	SubscriptionActive     = "active"
	SubscriptionPastDue    = "past_due"
	SubscriptionCanceled   = "canceled"
	SubscriptionIncomplete = "incomplete"
	SubscriptionTrialing   = "trialing"
	SubscriptionUnpaid     = "unpaid"
)

// Restaurant is the tenant root of the menu hierarchy. Owned by exactly one user.
type Restaurant struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	LogoURL            string    `json:"logo_url,omitempty"`
	UserID             uuid.UUID `json:"user_id"`
	SubscriptionStatus string    `json:"subscription_status"`
	SubscriptionID     string    `json:"subscription_id,omitempty"`
	StripeCustomerID   string    `json:"stripe_customer_id,omitempty"`
	Menus              []Menu    `json:"menus,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Subscription is the billing view of a restaurant.
type Subscription struct {
	RestaurantID     uuid.UUID `json:"restaurant_id"`
	Status           string    `json:"status"`
	SubscriptionID   string    `json:"subscription_id,omitempty"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
}
