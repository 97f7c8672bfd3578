package models

import (
	"time"

	"github.com/google/uuid"
)

// Analytics event types.
const (
	EventMenuView   = "menu_view"
	EventQRDownload = "qr_download"
)

// AnalyticsEvent is one row of the restaurant analytics log.
type AnalyticsEvent struct {
	ID           uuid.UUID         `json:"id"`
	RestaurantID uuid.UUID         `json:"restaurant_id"`
	EventType    string            `json:"event_type"`
	EventData    map[string]string `json:"event_data,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// EventCount aggregates one event type.
type EventCount struct {
	EventType string `json:"event_type"`
	Total     int    `json:"total"`
	Last7Days int    `json:"last_7_days"`
}

// MenuStats is the per-menu part of an analytics summary.
type MenuStats struct {
	MenuID      uuid.UUID `json:"menu_id"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	Views       int       `json:"views"`
	LiveViewers int       `json:"live_viewers"`
}

// AnalyticsSummary is returned by GET /restaurants/:id/analytics.
type AnalyticsSummary struct {
	RestaurantID uuid.UUID    `json:"restaurant_id"`
	Events       []EventCount `json:"events"`
	Menus        []MenuStats  `json:"menus"`
}
