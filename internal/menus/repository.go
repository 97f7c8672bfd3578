package menus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/internal/ordering"
)

// Repository handles menu, category and item persistence. It also serves the
// ownership lookups of access.Resolver and the sibling writes of ordering.Engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a menu hierarchy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `i.id, i.name, COALESCE(i.description, ''), i.price::text, COALESCE(i.image_url, ''),
	i.category_id, i."order", i.is_available, i.created_at, i.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner, it *models.Item, extra ...any) error {
	var price string
	dest := append([]any{&it.ID, &it.Name, &it.Description, &price, &it.ImageURL,
		&it.CategoryID, &it.Order, &it.IsAvailable, &it.CreatedAt, &it.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", price, err)
	}
	it.Price = p
	return nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}

// CreateMenu inserts a menu.
func (r *Repository) CreateMenu(ctx context.Context, m *models.Menu) error {
	const q = `INSERT INTO menus (id, name, description, restaurant_id, is_active)
		VALUES (gen_random_uuid(), $1, NULLIF($2, ''), $3, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, m.Name, m.Description, m.RestaurantID, m.IsActive).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// UpdateMenu writes name, description and is_active.
func (r *Repository) UpdateMenu(ctx context.Context, m *models.Menu) error {
	const q = `UPDATE menus SET name = $1, description = NULLIF($2, ''), is_active = $3, updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, m.Name, m.Description, m.IsActive, m.ID).Scan(&m.UpdatedAt)
	return notFound(err, "menu")
}

// DeleteMenu removes a menu; categories and items cascade.
func (r *Repository) DeleteMenu(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM menus WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("menu")
	}
	return nil
}

// ListMenus returns the menus of a restaurant without their children.
func (r *Repository) ListMenus(ctx context.Context, restaurantID uuid.UUID) ([]models.Menu, error) {
	const q = `SELECT id, name, COALESCE(description, ''), restaurant_id, is_active, created_at, updated_at
		FROM menus WHERE restaurant_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, q, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Menu{}
	for rows.Next() {
		var m models.Menu
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.RestaurantID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// MenuIDsByRestaurant returns the ids of every menu of a restaurant.
func (r *Repository) MenuIDsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM menus WHERE restaurant_id = $1`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMenuTree loads a menu with its categories and items, each level sorted by order.
// Equal orders fall back to creation time.
func (r *Repository) GetMenuTree(ctx context.Context, id uuid.UUID) (*models.Menu, error) {
	const mq = `SELECT id, name, COALESCE(description, ''), restaurant_id, is_active, created_at, updated_at
		FROM menus WHERE id = $1`
	var m models.Menu
	err := r.pool.QueryRow(ctx, mq, id).Scan(&m.ID, &m.Name, &m.Description, &m.RestaurantID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "menu")
	}

	const cq = `SELECT id, name, COALESCE(description, ''), menu_id, "order", created_at, updated_at
		FROM categories WHERE menu_id = $1 ORDER BY "order", created_at, id`
	rows, err := r.pool.Query(ctx, cq, id)
	if err != nil {
		return nil, err
	}
	m.Categories = []models.Category{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.MenuID, &c.Order, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		c.Items = []models.Item{}
		index[c.ID] = len(m.Categories)
		m.Categories = append(m.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m.Categories) == 0 {
		return &m, nil
	}

	iq := `SELECT ` + itemColumns + `
		FROM items i JOIN categories c ON c.id = i.category_id
		WHERE c.menu_id = $1 ORDER BY i."order", i.created_at, i.id`
	rows, err = r.pool.Query(ctx, iq, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.Item
		if err := scanItem(rows, &it); err != nil {
			return nil, err
		}
		if pos, ok := index[it.CategoryID]; ok {
			m.Categories[pos].Items = append(m.Categories[pos].Items, it)
		}
	}
	return &m, rows.Err()
}

// CreateCategory inserts a category with an already resolved order.
func (r *Repository) CreateCategory(ctx context.Context, c *models.Category) error {
	const q = `INSERT INTO categories (id, name, description, menu_id, "order")
		VALUES (gen_random_uuid(), $1, NULLIF($2, ''), $3, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.Name, c.Description, c.MenuID, c.Order).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// UpdateCategory writes name and description. Order changes go through ordering.
func (r *Repository) UpdateCategory(ctx context.Context, c *models.Category) error {
	const q = `UPDATE categories SET name = $1, description = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, c.Name, c.Description, c.ID).Scan(&c.UpdatedAt)
	return notFound(err, "category")
}

// DeleteCategory removes a category; items cascade.
func (r *Repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("category")
	}
	return nil
}

// CreateItem inserts an item with an already resolved order and uploaded image.
func (r *Repository) CreateItem(ctx context.Context, it *models.Item) error {
	const q = `INSERT INTO items (id, name, description, price, image_url, category_id, "order", is_available)
		VALUES (gen_random_uuid(), $1, NULLIF($2, ''), $3::numeric, NULLIF($4, ''), $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, it.Name, it.Description, it.Price.StringFixed(2), it.ImageURL, it.CategoryID, it.Order, it.IsAvailable).
		Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
}

// UpdateItem writes the mutable attributes of an item. Parent and order are left alone.
func (r *Repository) UpdateItem(ctx context.Context, it *models.Item) error {
	const q = `UPDATE items SET name = $1, description = NULLIF($2, ''), price = $3::numeric,
		image_url = NULLIF($4, ''), is_available = $5, updated_at = NOW()
		WHERE id = $6 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, it.Name, it.Description, it.Price.StringFixed(2), it.ImageURL, it.IsAvailable, it.ID).
		Scan(&it.UpdatedAt)
	return notFound(err, "item")
}

// DeleteItem removes one item row.
func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item")
	}
	return nil
}

func (r *Repository) collectURLs(ctx context.Context, q string, arg uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// ImageURLsByMenu returns the image URLs of every item under a menu.
func (r *Repository) ImageURLsByMenu(ctx context.Context, menuID uuid.UUID) ([]string, error) {
	return r.collectURLs(ctx, `SELECT i.image_url FROM items i JOIN categories c ON c.id = i.category_id
		WHERE c.menu_id = $1 AND i.image_url IS NOT NULL AND i.image_url <> ''`, menuID)
}

// ImageURLsByCategory returns the image URLs of every item in a category.
func (r *Repository) ImageURLsByCategory(ctx context.Context, categoryID uuid.UUID) ([]string, error) {
	return r.collectURLs(ctx, `SELECT image_url FROM items
		WHERE category_id = $1 AND image_url IS NOT NULL AND image_url <> ''`, categoryID)
}

// ImageURLsByRestaurant returns the image URLs of every item under a restaurant.
func (r *Repository) ImageURLsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]string, error) {
	return r.collectURLs(ctx, `SELECT i.image_url FROM items i
		JOIN categories c ON c.id = i.category_id
		JOIN menus m ON m.id = c.menu_id
		WHERE m.restaurant_id = $1 AND i.image_url IS NOT NULL AND i.image_url <> ''`, restaurantID)
}

// GetOwnedMenu loads a menu with the owner of its restaurant.
func (r *Repository) GetOwnedMenu(ctx context.Context, id uuid.UUID) (*models.OwnedMenu, error) {
	const q = `SELECT m.id, m.name, COALESCE(m.description, ''), m.restaurant_id, m.is_active, m.created_at, m.updated_at, r.user_id
		FROM menus m JOIN restaurants r ON r.id = m.restaurant_id WHERE m.id = $1`
	var m models.OwnedMenu
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.Name, &m.Description, &m.RestaurantID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt, &m.OwnerID)
	if err != nil {
		return nil, notFound(err, "menu")
	}
	return &m, nil
}

// GetOwnedCategory loads a category with its restaurant and owner ids.
func (r *Repository) GetOwnedCategory(ctx context.Context, id uuid.UUID) (*models.OwnedCategory, error) {
	const q = `SELECT c.id, c.name, COALESCE(c.description, ''), c.menu_id, c."order", c.created_at, c.updated_at, m.restaurant_id, r.user_id
		FROM categories c
		JOIN menus m ON m.id = c.menu_id
		JOIN restaurants r ON r.id = m.restaurant_id
		WHERE c.id = $1`
	var c models.OwnedCategory
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.Description, &c.MenuID, &c.Order, &c.CreatedAt, &c.UpdatedAt, &c.RestaurantID, &c.OwnerID)
	if err != nil {
		return nil, notFound(err, "category")
	}
	return &c, nil
}

const ownedItemQuery = `SELECT ` + itemColumns + `, c.menu_id, m.restaurant_id, r.user_id
	FROM items i
	JOIN categories c ON c.id = i.category_id
	JOIN menus m ON m.id = c.menu_id
	JOIN restaurants r ON r.id = m.restaurant_id`

// GetOwnedItem loads an item with its menu, restaurant and owner ids.
func (r *Repository) GetOwnedItem(ctx context.Context, id uuid.UUID) (*models.OwnedItem, error) {
	var it models.OwnedItem
	err := scanItem(r.pool.QueryRow(ctx, ownedItemQuery+` WHERE i.id = $1`, id), &it.Item, &it.MenuID, &it.RestaurantID, &it.OwnerID)
	if err != nil {
		return nil, notFound(err, "item")
	}
	return &it, nil
}

// GetOwnedItems loads every existing item among ids with its ancestor ids.
func (r *Repository) GetOwnedItems(ctx context.Context, ids []uuid.UUID) ([]models.OwnedItem, error) {
	rows, err := r.pool.Query(ctx, ownedItemQuery+` WHERE i.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.OwnedItem
	for rows.Next() {
		var it models.OwnedItem
		if err := scanItem(rows, &it.Item, &it.MenuID, &it.RestaurantID, &it.OwnerID); err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// MaxOrder returns the greatest order in a sibling set.
func (r *Repository) MaxOrder(ctx context.Context, set ordering.SiblingSet) (int, bool, error) {
	var q string
	switch set.Kind {
	case ordering.KindCategory:
		q = `SELECT MAX("order") FROM categories WHERE menu_id = $1`
	case ordering.KindItem:
		q = `SELECT MAX("order") FROM items WHERE category_id = $1`
	default:
		return 0, false, apperr.Validation("unknown sibling kind %q", set.Kind)
	}
	var top *int
	if err := r.pool.QueryRow(ctx, q, set.ParentID).Scan(&top); err != nil {
		return 0, false, err
	}
	if top == nil {
		return 0, false, nil
	}
	return *top, true, nil
}

// ApplyOrder updates every entry inside one transaction. Categories must already belong
// to the menu; items are pulled into the category. A missing row rolls back the batch.
func (r *Repository) ApplyOrder(ctx context.Context, set ordering.SiblingSet, entries []ordering.Entry) error {
	var q, entity string
	switch set.Kind {
	case ordering.KindCategory:
		q = `UPDATE categories SET "order" = $1, updated_at = NOW() WHERE id = $2 AND menu_id = $3`
		entity = "category"
	case ordering.KindItem:
		q = `UPDATE items SET "order" = $1, category_id = $3, updated_at = NOW() WHERE id = $2`
		entity = "item"
	default:
		return apperr.Validation("unknown sibling kind %q", set.Kind)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, en := range entries {
			tag, err := tx.Exec(ctx, q, en.Order, en.ID, set.ParentID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return apperr.NotFound(entity)
			}
		}
		return nil
	})
}

// MoveItem reparents an item and sets its order in one statement.
func (r *Repository) MoveItem(ctx context.Context, itemID, categoryID uuid.UUID, order int) error {
	const q = `UPDATE items SET category_id = $1, "order" = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.pool.Exec(ctx, q, categoryID, order, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item")
	}
	return nil
}
