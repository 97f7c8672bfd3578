package menus

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/assets"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/internal/ordering"
	"github.com/menuqr/backend/pkg/storage"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 2000
)

var maxPrice = decimal.New(1, 8) // NUMERIC(10,2)

// Store persists the menu hierarchy.
type Store interface {
	CreateMenu(ctx context.Context, m *models.Menu) error
	UpdateMenu(ctx context.Context, m *models.Menu) error
	DeleteMenu(ctx context.Context, id uuid.UUID) error
	ListMenus(ctx context.Context, restaurantID uuid.UUID) ([]models.Menu, error)
	GetMenuTree(ctx context.Context, id uuid.UUID) (*models.Menu, error)

	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateItem(ctx context.Context, it *models.Item) error
	UpdateItem(ctx context.Context, it *models.Item) error
	DeleteItem(ctx context.Context, id uuid.UUID) error

	ImageURLsByMenu(ctx context.Context, menuID uuid.UUID) ([]string, error)
	ImageURLsByCategory(ctx context.Context, categoryID uuid.UUID) ([]string, error)
}

// ChangeNotifier is told about every committed change under a menu.
type ChangeNotifier interface {
	MenuChanged(ctx context.Context, menuID uuid.UUID)
}

// Service implements menu, category and item operations. Every operation resolves
// and authorizes its target before writing.
type Service struct {
	store    Store
	resolver *access.Resolver
	engine   *ordering.Engine
	assets   *assets.Manager
	notifier ChangeNotifier
	logger   *zap.Logger
}

// NewService creates a menu service. notifier may be nil.
func NewService(store Store, resolver *access.Resolver, engine *ordering.Engine, media *assets.Manager, notifier ChangeNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		engine:   engine,
		assets:   media,
		notifier: notifier,
		logger:   logger,
	}
}

// MenuAttrs are the attributes of a new menu.
type MenuAttrs struct {
	Name        string
	Description string
	IsActive    *bool
}

// MenuPatch holds optional menu changes.
type MenuPatch struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// CategoryAttrs are the attributes of a new category. Order is appended when nil.
type CategoryAttrs struct {
	Name        string
	Description string
	Order       *int
}

// CategoryPatch holds optional category changes.
type CategoryPatch struct {
	Name        *string
	Description *string
}

// ItemAttrs are the attributes of a new item. Order is appended when nil.
type ItemAttrs struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Order       *int
	IsAvailable *bool
}

// ItemPatch holds optional item changes. RemoveImage clears the current image when no new file is given.
type ItemPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	IsAvailable *bool
	RemoveImage bool
}

// OrderEntry is one element of a bulk reorder request.
type OrderEntry struct {
	ID    uuid.UUID
	Order int
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if len(name) > maxNameLen {
		return "", apperr.Validation("name must be at most %d characters", maxNameLen)
	}
	return name, nil
}

func validateDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if len(desc) > maxDescriptionLen {
		return "", apperr.Validation("description must be at most %d characters", maxDescriptionLen)
	}
	return desc, nil
}

func validatePrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if !p.Equal(p.Truncate(2)) {
		return apperr.Validation("price must have at most two decimals")
	}
	if p.GreaterThanOrEqual(maxPrice) {
		return apperr.Validation("price is too large")
	}
	return nil
}

func (s *Service) changed(ctx context.Context, menuIDs ...uuid.UUID) {
	if s.notifier == nil {
		return
	}
	for _, id := range menuIDs {
		s.notifier.MenuChanged(ctx, id)
	}
}

// CreateMenu adds a menu to a restaurant the actor owns.
func (s *Service) CreateMenu(ctx context.Context, restaurantID uuid.UUID, attrs MenuAttrs, actor models.Actor) (*models.Menu, error) {
	name, err := validateName(attrs.Name)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(attrs.Description)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Restaurant(ctx, restaurantID, actor); err != nil {
		return nil, err
	}
	m := &models.Menu{
		Name:         name,
		Description:  desc,
		RestaurantID: restaurantID,
		IsActive:     true,
	}
	if attrs.IsActive != nil {
		m.IsActive = *attrs.IsActive
	}
	if err := s.store.CreateMenu(ctx, m); err != nil {
		return nil, err
	}
	m.Categories = []models.Category{}
	return m, nil
}

// ListMenus returns the menus of a restaurant.
func (s *Service) ListMenus(ctx context.Context, restaurantID uuid.UUID, actor models.Actor) ([]models.Menu, error) {
	if _, err := s.resolver.Restaurant(ctx, restaurantID, actor); err != nil {
		return nil, err
	}
	return s.store.ListMenus(ctx, restaurantID)
}

// FindMenu returns a menu with its categories and items sorted by order.
func (s *Service) FindMenu(ctx context.Context, menuID uuid.UUID, actor models.Actor) (*models.Menu, error) {
	if _, err := s.resolver.Menu(ctx, menuID, actor); err != nil {
		return nil, err
	}
	return s.store.GetMenuTree(ctx, menuID)
}

// UpdateMenu applies a partial update to a menu.
func (s *Service) UpdateMenu(ctx context.Context, menuID uuid.UUID, patch MenuPatch, actor models.Actor) (*models.Menu, error) {
	owned, err := s.resolver.Menu(ctx, menuID, actor)
	if err != nil {
		return nil, err
	}
	m := owned.Menu
	if patch.Name != nil {
		if m.Name, err = validateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		if m.Description, err = validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}
	if patch.IsActive != nil {
		m.IsActive = *patch.IsActive
	}
	if err := s.store.UpdateMenu(ctx, &m); err != nil {
		return nil, err
	}
	s.changed(ctx, m.ID)
	return &m, nil
}

// DeleteMenu removes a menu with everything under it. Item images are queued for cleanup
// once the rows are gone.
func (s *Service) DeleteMenu(ctx context.Context, menuID uuid.UUID, actor models.Actor) error {
	if _, err := s.resolver.Menu(ctx, menuID, actor); err != nil {
		return err
	}
	urls, err := s.store.ImageURLsByMenu(ctx, menuID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMenu(ctx, menuID); err != nil {
		return err
	}
	s.assets.Release(ctx, urls, "menu_deleted")
	s.changed(ctx, menuID)
	return nil
}

// CreateCategory adds a category to a menu, appending it when no order is given.
func (s *Service) CreateCategory(ctx context.Context, menuID uuid.UUID, attrs CategoryAttrs, actor models.Actor) (*models.Category, error) {
	name, err := validateName(attrs.Name)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(attrs.Description)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Menu(ctx, menuID, actor); err != nil {
		return nil, err
	}
	order, err := s.engine.Resolve(ctx, ordering.Categories(menuID), attrs.Order)
	if err != nil {
		return nil, err
	}
	c := &models.Category{
		Name:        name,
		Description: desc,
		MenuID:      menuID,
		Order:       order,
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	c.Items = []models.Item{}
	s.changed(ctx, menuID)
	return c, nil
}

// UpdateCategory applies a partial update to a category.
func (s *Service) UpdateCategory(ctx context.Context, categoryID uuid.UUID, patch CategoryPatch, actor models.Actor) (*models.Category, error) {
	owned, err := s.resolver.Category(ctx, categoryID, actor)
	if err != nil {
		return nil, err
	}
	c := owned.Category
	if patch.Name != nil {
		if c.Name, err = validateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		if c.Description, err = validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateCategory(ctx, &c); err != nil {
		return nil, err
	}
	s.changed(ctx, c.MenuID)
	return &c, nil
}

// DeleteCategory removes a category and its items. Item images are queued for cleanup.
func (s *Service) DeleteCategory(ctx context.Context, categoryID uuid.UUID, actor models.Actor) error {
	owned, err := s.resolver.Category(ctx, categoryID, actor)
	if err != nil {
		return err
	}
	urls, err := s.store.ImageURLsByCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		return err
	}
	s.assets.Release(ctx, urls, "category_deleted")
	s.changed(ctx, owned.MenuID)
	return nil
}

// CreateItem adds an item to a category. The image, when given, is uploaded before the
// row is written; an upload failure leaves nothing behind.
func (s *Service) CreateItem(ctx context.Context, categoryID uuid.UUID, attrs ItemAttrs, image *storage.File, actor models.Actor) (*models.Item, error) {
	name, err := validateName(attrs.Name)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(attrs.Description)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(attrs.Price); err != nil {
		return nil, err
	}
	if err := assets.ValidateImage(image); err != nil {
		return nil, err
	}
	cat, err := s.resolver.Category(ctx, categoryID, actor)
	if err != nil {
		return nil, err
	}
	order, err := s.engine.Resolve(ctx, ordering.Items(categoryID), attrs.Order)
	if err != nil {
		return nil, err
	}

	it := &models.Item{
		Name:        name,
		Description: desc,
		Price:       attrs.Price,
		CategoryID:  categoryID,
		Order:       order,
		IsAvailable: true,
	}
	if attrs.IsAvailable != nil {
		it.IsAvailable = *attrs.IsAvailable
	}
	if image != nil {
		if it.ImageURL, err = s.assets.Upload(ctx, storage.FolderMenuItems, image); err != nil {
			return nil, err
		}
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		s.assets.Remove(ctx, it.ImageURL)
		return nil, err
	}
	s.changed(ctx, cat.MenuID)
	return it, nil
}

// UpdateItem applies a partial update to an item. A new image replaces the old one,
// which is deleted best-effort after the row is saved.
func (s *Service) UpdateItem(ctx context.Context, itemID uuid.UUID, patch ItemPatch, image *storage.File, actor models.Actor) (*models.Item, error) {
	if err := assets.ValidateImage(image); err != nil {
		return nil, err
	}
	owned, err := s.resolver.Item(ctx, itemID, actor)
	if err != nil {
		return nil, err
	}
	it := owned.Item
	if patch.Name != nil {
		if it.Name, err = validateName(*patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		if it.Description, err = validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return nil, err
		}
		it.Price = *patch.Price
	}
	if patch.IsAvailable != nil {
		it.IsAvailable = *patch.IsAvailable
	}

	oldURL := owned.ImageURL
	switch {
	case image != nil:
		if it.ImageURL, err = s.assets.Upload(ctx, storage.FolderMenuItems, image); err != nil {
			return nil, err
		}
	case patch.RemoveImage:
		it.ImageURL = ""
	}
	if err := s.store.UpdateItem(ctx, &it); err != nil {
		if image != nil {
			s.assets.Remove(ctx, it.ImageURL)
		}
		return nil, err
	}
	if oldURL != it.ImageURL {
		s.assets.Remove(ctx, oldURL)
	}
	s.changed(ctx, owned.MenuID)
	return &it, nil
}

// DeleteItem removes an item. Its image is deleted first and a failure there does not block the row delete.
func (s *Service) DeleteItem(ctx context.Context, itemID uuid.UUID, actor models.Actor) error {
	owned, err := s.resolver.Item(ctx, itemID, actor)
	if err != nil {
		return err
	}
	s.assets.Remove(ctx, owned.ImageURL)
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.changed(ctx, owned.MenuID)
	return nil
}

// MoveItem reparents an item into another category the actor can access.
func (s *Service) MoveItem(ctx context.Context, itemID, categoryID uuid.UUID, order *int, actor models.Actor) (*models.Item, error) {
	owned, err := s.resolver.Item(ctx, itemID, actor)
	if err != nil {
		return nil, err
	}
	dest, err := s.resolver.Category(ctx, categoryID, actor)
	if err != nil {
		return nil, err
	}
	newOrder, err := s.engine.Move(ctx, itemID, categoryID, order)
	if err != nil {
		return nil, err
	}
	it := owned.Item
	it.CategoryID = categoryID
	it.Order = newOrder
	if owned.MenuID == dest.MenuID {
		s.changed(ctx, dest.MenuID)
	} else {
		s.changed(ctx, owned.MenuID, dest.MenuID)
	}
	return &it, nil
}

// ReorderCategories assigns new orders to categories of a menu in one batch and returns the refreshed menu.
func (s *Service) ReorderCategories(ctx context.Context, menuID uuid.UUID, entries []OrderEntry, actor models.Actor) (*models.Menu, error) {
	if _, err := s.resolver.Menu(ctx, menuID, actor); err != nil {
		return nil, err
	}
	batch := make([]ordering.Entry, 0, len(entries))
	for _, en := range entries {
		batch = append(batch, ordering.Entry{Kind: ordering.KindCategory, ID: en.ID, Order: en.Order})
	}
	if err := s.engine.Apply(ctx, ordering.Categories(menuID), batch); err != nil {
		return nil, err
	}
	s.changed(ctx, menuID)
	return s.store.GetMenuTree(ctx, menuID)
}

// ReorderItems assigns new orders to items and pulls any listed item from another
// category of the same menu into this one. Items coming from elsewhere are authorized
// individually. Returns the refreshed menu.
func (s *Service) ReorderItems(ctx context.Context, categoryID uuid.UUID, entries []OrderEntry, actor models.Actor) (*models.Menu, error) {
	cat, err := s.resolver.Category(ctx, categoryID, actor)
	if err != nil {
		return nil, err
	}
	batch := make([]ordering.Entry, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, en := range entries {
		batch = append(batch, ordering.Entry{Kind: ordering.KindItem, ID: en.ID, Order: en.Order})
		ids = append(ids, en.ID)
	}
	set := ordering.Items(categoryID)
	if err := ordering.Validate(set, batch); err != nil {
		return nil, err
	}
	items, err := s.resolver.Items(ctx, ids, actor)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.CategoryID != categoryID && it.MenuID != cat.MenuID {
			return nil, apperr.Validation("item %s belongs to another menu, use move instead", it.ID)
		}
	}
	if err := s.engine.Apply(ctx, set, batch); err != nil {
		return nil, err
	}
	s.changed(ctx, cat.MenuID)
	return s.store.GetMenuTree(ctx, cat.MenuID)
}
