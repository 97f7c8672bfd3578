// Package analytics records public menu events and summarizes them for restaurant owners.
package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menuqr/backend/internal/models"
)

// Repository handles analytics persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts an event.
func (r *Repository) Record(ctx context.Context, e *models.AnalyticsEvent) error {
	q := `INSERT INTO analytics (restaurant_id, event_type, event_data)
		VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, e.RestaurantID, e.EventType, e.EventData).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// CountByType returns totals per event type for a restaurant.
func (r *Repository) CountByType(ctx context.Context, restaurantID uuid.UUID) ([]models.EventCount, error) {
	q := `SELECT event_type, COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= now() - interval '7 days')
		FROM analytics WHERE restaurant_id = $1
		GROUP BY event_type ORDER BY event_type`
	rows, err := r.pool.Query(ctx, q, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.EventCount
	for rows.Next() {
		var c models.EventCount
		if err := rows.Scan(&c.EventType, &c.Total, &c.Last7Days); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ViewsByMenu returns menu_view counts keyed by menu id.
func (r *Repository) ViewsByMenu(ctx context.Context, restaurantID uuid.UUID) (map[uuid.UUID]int, error) {
	q := `SELECT event_data->>'menu_id', COUNT(*)
		FROM analytics
		WHERE restaurant_id = $1 AND event_type = $2 AND event_data ? 'menu_id'
		GROUP BY 1`
	rows, err := r.pool.Query(ctx, q, restaurantID, models.EventMenuView)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, err
		}
		if id, err := uuid.Parse(raw); err == nil {
			out[id] = n
		}
	}
	return out, rows.Err()
}
