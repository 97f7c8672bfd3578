package restaurants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
)

// Repository handles restaurant persistence, including the mirrored subscription fields.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a restaurant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, name, COALESCE(description, ''), COALESCE(logo_url, ''), user_id,
	subscription_status, COALESCE(subscription_id, ''), COALESCE(stripe_customer_id, ''), created_at, updated_at`

func scan(row pgx.Row, r *models.Restaurant) error {
	return row.Scan(&r.ID, &r.Name, &r.Description, &r.LogoURL, &r.UserID,
		&r.SubscriptionStatus, &r.SubscriptionID, &r.StripeCustomerID, &r.CreatedAt, &r.UpdatedAt)
}

func scanOne(row pgx.Row) (*models.Restaurant, error) {
	var r models.Restaurant
	if err := scan(row, &r); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("restaurant")
		}
		return nil, err
	}
	return &r, nil
}

// Create inserts a restaurant on the free plan.
func (r *Repository) Create(ctx context.Context, rest *models.Restaurant) error {
	const q = `INSERT INTO restaurants (id, name, description, logo_url, user_id, subscription_status)
		VALUES (gen_random_uuid(), $1, NULLIF($2, ''), NULLIF($3, ''), $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rest.Name, rest.Description, rest.LogoURL, rest.UserID, rest.SubscriptionStatus).
		Scan(&rest.ID, &rest.CreatedAt, &rest.UpdatedAt)
}

// GetRestaurant returns a restaurant by ID.
func (r *Repository) GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM restaurants WHERE id = $1`, id))
}

// GetByStripeCustomerID returns the restaurant billed to a processor customer.
func (r *Repository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Restaurant, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM restaurants WHERE stripe_customer_id = $1`, customerID))
}

// List returns restaurants newest first, only those of ownerID when it is set.
func (r *Repository) List(ctx context.Context, ownerID *uuid.UUID) ([]models.Restaurant, error) {
	q := `SELECT ` + columns + ` FROM restaurants`
	var args []interface{}
	if ownerID != nil {
		q += ` WHERE user_id = $1`
		args = append(args, *ownerID)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Restaurant{}
	for rows.Next() {
		var rest models.Restaurant
		if err := scan(rows, &rest); err != nil {
			return nil, err
		}
		list = append(list, rest)
	}
	return list, rows.Err()
}

// Update writes name, description and logo.
func (r *Repository) Update(ctx context.Context, rest *models.Restaurant) error {
	const q = `UPDATE restaurants SET name = $1, description = NULLIF($2, ''), logo_url = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, rest.Name, rest.Description, rest.LogoURL, rest.ID).Scan(&rest.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("restaurant")
	}
	return err
}

// Delete removes a restaurant; menus, categories and items cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM restaurants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("restaurant")
	}
	return nil
}

// UpdateSubscription stores the processor's view of a restaurant's subscription.
// Empty ids leave the stored ones untouched.
func (r *Repository) UpdateSubscription(ctx context.Context, sub models.Subscription) error {
	const q = `UPDATE restaurants SET subscription_status = $1,
		subscription_id = COALESCE(NULLIF($2, ''), subscription_id),
		stripe_customer_id = COALESCE(NULLIF($3, ''), stripe_customer_id),
		updated_at = NOW()
		WHERE id = $4`
	tag, err := r.pool.Exec(ctx, q, sub.Status, sub.SubscriptionID, sub.StripeCustomerID, sub.RestaurantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("restaurant")
	}
	return nil
}

// ResetSubscription puts a restaurant back on the free plan and forgets its subscription id.
// The processor customer id is kept so a later subscription reuses it.
func (r *Repository) ResetSubscription(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE restaurants SET subscription_status = $1, subscription_id = NULL, updated_at = NOW()
		WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, models.SubscriptionFree, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("restaurant")
	}
	return nil
}
