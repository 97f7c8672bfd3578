package menus

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/assets"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/internal/ordering"
	"github.com/menuqr/backend/pkg/storage"
)

// memStore is an in-memory stand-in for Repository and the restaurants table.
type memStore struct {
	mu          sync.Mutex
	clock       time.Time
	restaurants map[uuid.UUID]models.Restaurant
	menus       map[uuid.UUID]models.Menu
	categories  map[uuid.UUID]models.Category
	items       map[uuid.UUID]models.Item

	createItemErr error
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		restaurants: map[uuid.UUID]models.Restaurant{},
		menus:       map[uuid.UUID]models.Menu{},
		categories:  map[uuid.UUID]models.Category{},
		items:       map[uuid.UUID]models.Item{},
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) addRestaurant(owner uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.restaurants[id] = models.Restaurant{ID: id, Name: "Bistro", UserID: owner, SubscriptionStatus: models.SubscriptionFree}
	return id
}

func (m *memStore) GetRestaurant(_ context.Context, id uuid.UUID) (*models.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return nil, apperr.NotFound("restaurant")
	}
	return &r, nil
}

func (m *memStore) CreateMenu(_ context.Context, menu *models.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu.ID = uuid.New()
	menu.CreatedAt = m.tick()
	menu.UpdatedAt = menu.CreatedAt
	m.menus[menu.ID] = *menu
	return nil
}

func (m *memStore) UpdateMenu(_ context.Context, menu *models.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[menu.ID]; !ok {
		return apperr.NotFound("menu")
	}
	menu.UpdatedAt = m.tick()
	cp := *menu
	cp.Categories = nil
	m.menus[menu.ID] = cp
	return nil
}

func (m *memStore) DeleteMenu(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[id]; !ok {
		return apperr.NotFound("menu")
	}
	delete(m.menus, id)
	for cid, c := range m.categories {
		if c.MenuID == id {
			m.deleteCategoryLocked(cid)
		}
	}
	return nil
}

func (m *memStore) ListMenus(_ context.Context, restaurantID uuid.UUID) ([]models.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []models.Menu{}
	for _, menu := range m.menus {
		if menu.RestaurantID == restaurantID {
			list = append(list, menu)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *memStore) GetMenuTree(_ context.Context, id uuid.UUID) (*models.Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[id]
	if !ok {
		return nil, apperr.NotFound("menu")
	}
	menu.Categories = []models.Category{}
	for _, c := range m.categories {
		if c.MenuID != id {
			continue
		}
		c.Items = []models.Item{}
		for _, it := range m.items {
			if it.CategoryID == c.ID {
				c.Items = append(c.Items, it)
			}
		}
		sort.Slice(c.Items, func(i, j int) bool {
			if c.Items[i].Order != c.Items[j].Order {
				return c.Items[i].Order < c.Items[j].Order
			}
			return c.Items[i].CreatedAt.Before(c.Items[j].CreatedAt)
		})
		menu.Categories = append(menu.Categories, c)
	}
	sort.Slice(menu.Categories, func(i, j int) bool {
		a, b := menu.Categories[i], menu.Categories[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return &menu, nil
}

func (m *memStore) CreateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menus[c.MenuID]; !ok {
		return errors.New("foreign key violation")
	}
	c.ID = uuid.New()
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.categories[c.ID] = *c
	return nil
}

func (m *memStore) UpdateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return apperr.NotFound("category")
	}
	c.UpdatedAt = m.tick()
	cp := *c
	cp.Items = nil
	m.categories[c.ID] = cp
	return nil
}

func (m *memStore) deleteCategoryLocked(id uuid.UUID) {
	delete(m.categories, id)
	for iid, it := range m.items {
		if it.CategoryID == id {
			delete(m.items, iid)
		}
	}
}

func (m *memStore) DeleteCategory(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return apperr.NotFound("category")
	}
	m.deleteCategoryLocked(id)
	return nil
}

func (m *memStore) CreateItem(_ context.Context, it *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createItemErr != nil {
		return m.createItemErr
	}
	if _, ok := m.categories[it.CategoryID]; !ok {
		return errors.New("foreign key violation")
	}
	it.ID = uuid.New()
	it.CreatedAt = m.tick()
	it.UpdatedAt = it.CreatedAt
	m.items[it.ID] = *it
	return nil
}

func (m *memStore) UpdateItem(_ context.Context, it *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[it.ID]
	if !ok {
		return apperr.NotFound("item")
	}
	it.UpdatedAt = m.tick()
	cp := *it
	cp.CategoryID, cp.Order = cur.CategoryID, cur.Order
	m.items[it.ID] = cp
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("item")
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) ImageURLsByMenu(_ context.Context, menuID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var urls []string
	for _, it := range m.items {
		if c, ok := m.categories[it.CategoryID]; ok && c.MenuID == menuID && it.ImageURL != "" {
			urls = append(urls, it.ImageURL)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (m *memStore) ImageURLsByCategory(_ context.Context, categoryID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var urls []string
	for _, it := range m.items {
		if it.CategoryID == categoryID && it.ImageURL != "" {
			urls = append(urls, it.ImageURL)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (m *memStore) GetOwnedMenu(_ context.Context, id uuid.UUID) (*models.OwnedMenu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu, ok := m.menus[id]
	if !ok {
		return nil, apperr.NotFound("menu")
	}
	return &models.OwnedMenu{Menu: menu, OwnerID: m.restaurants[menu.RestaurantID].UserID}, nil
}

func (m *memStore) GetOwnedCategory(_ context.Context, id uuid.UUID) (*models.OwnedCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperr.NotFound("category")
	}
	menu := m.menus[c.MenuID]
	return &models.OwnedCategory{
		Category:     c,
		RestaurantID: menu.RestaurantID,
		OwnerID:      m.restaurants[menu.RestaurantID].UserID,
	}, nil
}

func (m *memStore) ownedItemLocked(id uuid.UUID) (models.OwnedItem, bool) {
	it, ok := m.items[id]
	if !ok {
		return models.OwnedItem{}, false
	}
	c := m.categories[it.CategoryID]
	menu := m.menus[c.MenuID]
	return models.OwnedItem{
		Item:         it,
		MenuID:       c.MenuID,
		RestaurantID: menu.RestaurantID,
		OwnerID:      m.restaurants[menu.RestaurantID].UserID,
	}, true
}

func (m *memStore) GetOwnedItem(_ context.Context, id uuid.UUID) (*models.OwnedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.ownedItemLocked(id)
	if !ok {
		return nil, apperr.NotFound("item")
	}
	return &it, nil
}

func (m *memStore) GetOwnedItems(_ context.Context, ids []uuid.UUID) ([]models.OwnedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OwnedItem
	for _, id := range ids {
		if it, ok := m.ownedItemLocked(id); ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) MaxOrder(_ context.Context, set ordering.SiblingSet) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top, ok := 0, false
	consider := func(order int) {
		if !ok || order > top {
			top, ok = order, true
		}
	}
	switch set.Kind {
	case ordering.KindCategory:
		for _, c := range m.categories {
			if c.MenuID == set.ParentID {
				consider(c.Order)
			}
		}
	case ordering.KindItem:
		for _, it := range m.items {
			if it.CategoryID == set.ParentID {
				consider(it.Order)
			}
		}
	}
	return top, ok, nil
}

// ApplyOrder stages every write and commits only when all entries resolve.
func (m *memStore) ApplyOrder(_ context.Context, set ordering.SiblingSet, entries []ordering.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch set.Kind {
	case ordering.KindCategory:
		staged := map[uuid.UUID]models.Category{}
		for _, en := range entries {
			c, ok := m.categories[en.ID]
			if !ok || c.MenuID != set.ParentID {
				return apperr.NotFound("category")
			}
			c.Order = en.Order
			staged[c.ID] = c
		}
		for id, c := range staged {
			m.categories[id] = c
		}
	case ordering.KindItem:
		staged := map[uuid.UUID]models.Item{}
		for _, en := range entries {
			it, ok := m.items[en.ID]
			if !ok {
				return apperr.NotFound("item")
			}
			it.Order = en.Order
			it.CategoryID = set.ParentID
			staged[it.ID] = it
		}
		for id, it := range staged {
			m.items[id] = it
		}
	}
	return nil
}

func (m *memStore) MoveItem(_ context.Context, itemID, categoryID uuid.UUID, order int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return apperr.NotFound("item")
	}
	it.CategoryID = categoryID
	it.Order = order
	m.items[itemID] = it
	return nil
}

// fakeImages records uploads and deletes.
type fakeImages struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
	deleteErr error
}

func (f *fakeImages) Upload(_ context.Context, prefix string, file storage.File) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if file.Body != nil {
		_, _ = io.Copy(io.Discard, file.Body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://cdn.test/" + prefix + "/" + uuid.NewString() + "-" + file.Name
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeImages) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return f.deleteErr
}

// fakeCleanup records queued blob deletes.
type fakeCleanup struct {
	mu     sync.Mutex
	queued []string
	reason string
	err    error
}

func (f *fakeCleanup) EnqueueBlobDeletes(_ context.Context, urls []string, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, urls...)
	f.reason = reason
	return nil
}

// fakeNotifier records menus reported as changed.
type fakeNotifier struct {
	mu      sync.Mutex
	changed []uuid.UUID
}

func (f *fakeNotifier) MenuChanged(_ context.Context, menuID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, menuID)
}

type fixture struct {
	store    *memStore
	images   *fakeImages
	cleanup  *fakeCleanup
	notifier *fakeNotifier
	svc      *Service

	owner models.Actor
	other models.Actor
	admin models.Actor
	restID uuid.UUID
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:    store,
		images:   &fakeImages{},
		cleanup:  &fakeCleanup{},
		notifier: &fakeNotifier{},
		owner:    models.Actor{ID: uuid.New(), Role: models.RoleUser},
		other:    models.Actor{ID: uuid.New(), Role: models.RoleUser},
		admin:    models.Actor{ID: uuid.New(), Role: models.RoleAdmin},
	}
	f.restID = store.addRestaurant(f.owner.ID)
	f.svc = NewService(store, access.NewResolver(store, store), ordering.NewEngine(store),
		assets.NewManager(f.images, f.cleanup, nil), f.notifier, nil)
	return f
}
