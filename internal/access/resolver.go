// Package access resolves the ownership chain item → category → menu → restaurant → user
// before any mutation of the menu hierarchy.
package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
)

// RestaurantStore loads restaurants by id. Missing rows are reported as apperr.ErrNotFound.
type RestaurantStore interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}

// HierarchyStore loads menu entities joined with their ancestor ids in a single query.
// Missing rows are reported as apperr.ErrNotFound.
type HierarchyStore interface {
	GetOwnedMenu(ctx context.Context, id uuid.UUID) (*models.OwnedMenu, error)
	GetOwnedCategory(ctx context.Context, id uuid.UUID) (*models.OwnedCategory, error)
	GetOwnedItem(ctx context.Context, id uuid.UUID) (*models.OwnedItem, error)
	// GetOwnedItems returns the rows that exist among ids; missing ids are simply absent.
	GetOwnedItems(ctx context.Context, ids []uuid.UUID) ([]models.OwnedItem, error)
}

// Resolver grants or denies an actor access to an entity. It never writes.
type Resolver struct {
	restaurants RestaurantStore
	hierarchy   HierarchyStore
}

// NewResolver creates an ownership resolver.
func NewResolver(restaurants RestaurantStore, hierarchy HierarchyStore) *Resolver {
	return &Resolver{restaurants: restaurants, hierarchy: hierarchy}
}

// Restaurant returns the restaurant if the actor owns it or is an admin.
func (r *Resolver) Restaurant(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Restaurant, error) {
	rest, err := r.restaurants.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(rest.UserID) {
		return nil, apperr.Unauthorized("restaurant")
	}
	return rest, nil
}

// Menu returns the menu with its owner attached.
func (r *Resolver) Menu(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.OwnedMenu, error) {
	m, err := r.hierarchy.GetOwnedMenu(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(m.OwnerID) {
		return nil, apperr.Unauthorized("menu")
	}
	return m, nil
}

// Category returns the category with its ancestor ids attached.
func (r *Resolver) Category(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.OwnedCategory, error) {
	cat, err := r.hierarchy.GetOwnedCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(cat.OwnerID) {
		return nil, apperr.Unauthorized("category")
	}
	return cat, nil
}

// Item returns the item with its ancestor ids attached.
func (r *Resolver) Item(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.OwnedItem, error) {
	it, err := r.hierarchy.GetOwnedItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(it.OwnerID) {
		return nil, apperr.Unauthorized("item")
	}
	return it, nil
}

// Items authorizes a batch of items with one lookup. Every id must exist and be accessible.
func (r *Resolver) Items(ctx context.Context, ids []uuid.UUID, actor models.Actor) (map[uuid.UUID]models.OwnedItem, error) {
	out := make(map[uuid.UUID]models.OwnedItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.hierarchy.GetOwnedItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range rows {
		out[it.ID] = it
	}
	for _, id := range ids {
		it, ok := out[id]
		if !ok {
			return nil, apperr.NotFound("item")
		}
		if !actor.CanAccess(it.OwnerID) {
			return nil, apperr.Unauthorized("item")
		}
	}
	return out, nil
}
