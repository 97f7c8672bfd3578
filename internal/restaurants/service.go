package restaurants

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/assets"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/pkg/storage"
)

// Store persists restaurants.
type Store interface {
	Create(ctx context.Context, r *models.Restaurant) error
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	List(ctx context.Context, ownerID *uuid.UUID) ([]models.Restaurant, error)
	Update(ctx context.Context, r *models.Restaurant) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MenuSource lists what lives under a restaurant.
type MenuSource interface {
	ListMenus(ctx context.Context, restaurantID uuid.UUID) ([]models.Menu, error)
	ImageURLsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]string, error)
}

// ChangeNotifier is told about menus whose public view changed.
type ChangeNotifier interface {
	MenuChanged(ctx context.Context, menuID uuid.UUID)
}

// Attrs are the attributes of a new restaurant.
type Attrs struct {
	Name        string
	Description string
}

// Patch holds optional restaurant changes. RemoveLogo clears the logo when no new file is given.
type Patch struct {
	Name        *string
	Description *string
	RemoveLogo  bool
}

// Service implements restaurant operations.
type Service struct {
	store    Store
	menus    MenuSource
	resolver *access.Resolver
	assets   *assets.Manager
	notifier ChangeNotifier
	logger   *zap.Logger
}

// NewService creates a restaurant service. notifier may be nil.
func NewService(store Store, menus MenuSource, resolver *access.Resolver, media *assets.Manager, notifier ChangeNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		menus:    menus,
		resolver: resolver,
		assets:   media,
		notifier: notifier,
		logger:   logger,
	}
}

func validate(name, desc string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperr.Validation("name is required")
	}
	if len(name) > 255 {
		return "", "", apperr.Validation("name must be at most 255 characters")
	}
	desc = strings.TrimSpace(desc)
	if len(desc) > 2000 {
		return "", "", apperr.Validation("description must be at most 2000 characters")
	}
	return name, desc, nil
}

// Create registers a restaurant owned by the actor. The logo, when given, is uploaded first.
func (s *Service) Create(ctx context.Context, attrs Attrs, logo *storage.File, actor models.Actor) (*models.Restaurant, error) {
	if actor.ID == uuid.Nil {
		return nil, apperr.Unauthorized("restaurant")
	}
	name, desc, err := validate(attrs.Name, attrs.Description)
	if err != nil {
		return nil, err
	}
	if err := assets.ValidateImage(logo); err != nil {
		return nil, err
	}
	r := &models.Restaurant{
		Name:               name,
		Description:        desc,
		UserID:             actor.ID,
		SubscriptionStatus: models.SubscriptionFree,
	}
	if logo != nil {
		if r.LogoURL, err = s.assets.Upload(ctx, storage.FolderLogos, logo); err != nil {
			return nil, err
		}
	}
	if err := s.store.Create(ctx, r); err != nil {
		s.assets.Remove(ctx, r.LogoURL)
		return nil, err
	}
	return r, nil
}

// List returns the actor's restaurants, or every restaurant for an admin.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.Restaurant, error) {
	if actor.IsAdmin() {
		return s.store.List(ctx, nil)
	}
	if actor.ID == uuid.Nil {
		return nil, apperr.Unauthorized("restaurant")
	}
	return s.store.List(ctx, &actor.ID)
}

// Get returns a restaurant with its menus (without their children).
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Restaurant, error) {
	r, err := s.resolver.Restaurant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if r.Menus, err = s.menus.ListMenus(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// Update applies a partial update. A new logo replaces the old one, which is deleted best-effort.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch, logo *storage.File, actor models.Actor) (*models.Restaurant, error) {
	if err := assets.ValidateImage(logo); err != nil {
		return nil, err
	}
	r, err := s.resolver.Restaurant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	name, desc := r.Name, r.Description
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Description != nil {
		desc = *patch.Description
	}
	if r.Name, r.Description, err = validate(name, desc); err != nil {
		return nil, err
	}

	oldLogo := r.LogoURL
	switch {
	case logo != nil:
		if r.LogoURL, err = s.assets.Upload(ctx, storage.FolderLogos, logo); err != nil {
			return nil, err
		}
	case patch.RemoveLogo:
		r.LogoURL = ""
	}
	if err := s.store.Update(ctx, r); err != nil {
		if logo != nil {
			s.assets.Remove(ctx, r.LogoURL)
		}
		return nil, err
	}
	if oldLogo != r.LogoURL {
		s.assets.Remove(ctx, oldLogo)
	}
	s.menusChanged(ctx, id)
	return r, nil
}

// Delete removes a restaurant and everything under it. The logo is deleted best-effort
// and item images are queued for cleanup.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	r, err := s.resolver.Restaurant(ctx, id, actor)
	if err != nil {
		return err
	}
	urls, err := s.menus.ImageURLsByRestaurant(ctx, id)
	if err != nil {
		return err
	}
	menus, err := s.menus.ListMenus(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.assets.Remove(ctx, r.LogoURL)
	s.assets.Release(ctx, urls, "restaurant_deleted")
	if s.notifier != nil {
		for _, m := range menus {
			s.notifier.MenuChanged(ctx, m.ID)
		}
	}
	return nil
}

// Subscription returns the billing view of a restaurant.
func (s *Service) Subscription(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Subscription, error) {
	r, err := s.resolver.Restaurant(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &models.Subscription{
		RestaurantID:     r.ID,
		Status:           r.SubscriptionStatus,
		SubscriptionID:   r.SubscriptionID,
		StripeCustomerID: r.StripeCustomerID,
	}, nil
}

// menusChanged invalidates every public menu of a restaurant, whose header shows name and logo.
func (s *Service) menusChanged(ctx context.Context, id uuid.UUID) {
	if s.notifier == nil {
		return
	}
	menus, err := s.menus.ListMenus(ctx, id)
	if err != nil {
		s.logger.Warn("list menus for invalidation", zap.String("restaurant_id", id.String()), zap.Error(err))
		return
	}
	for _, m := range menus {
		s.notifier.MenuChanged(ctx, m.ID)
	}
}
