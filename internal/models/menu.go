package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Menu belongs to one restaurant and owns an ordered list of categories.
// IsActive only controls public visibility.
type Menu struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	RestaurantID uuid.UUID  `json:"restaurant_id"`
	IsActive     bool       `json:"is_active"`
	Categories   []Category `json:"categories,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Category belongs to one menu. Order is a sort key among sibling categories, gaps allowed.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MenuID      uuid.UUID `json:"menu_id"`
	Order       int       `json:"order"`
	Items       []Item    `json:"items,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item belongs to one category. Price is fixed-point with two decimals.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Order       int             `json:"order"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OwnedMenu is a menu loaded together with the owner of its restaurant.
type OwnedMenu struct {
	Menu
	OwnerID uuid.UUID `json:"-"`
}

// OwnedCategory is a category loaded with its ancestor ids up to the owning user.
type OwnedCategory struct {
	Category
	RestaurantID uuid.UUID `json:"-"`
	OwnerID      uuid.UUID `json:"-"`
}

// OwnedItem is an item loaded with its ancestor ids up to the owning user.
type OwnedItem struct {
	Item
	MenuID       uuid.UUID `json:"-"`
	RestaurantID uuid.UUID `json:"-"`
	OwnerID      uuid.UUID `json:"-"`
}
