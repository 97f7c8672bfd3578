// Package publicmenu serves the read-only menu shown to guests who scan a QR code.
package publicmenu

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/internal/realtime"
)

const (
	DefaultQRSize = 256
	MinQRSize     = 128
	MaxQRSize     = 1024
)

// MenuSource loads a full menu tree with categories and items sorted.
type MenuSource interface {
	GetMenuTree(ctx context.Context, id uuid.UUID) (*models.Menu, error)
}

// RestaurantSource loads the restaurant shown in the menu header.
type RestaurantSource interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}

// EventRecorder stores analytics events.
type EventRecorder interface {
	Record(ctx context.Context, e *models.AnalyticsEvent) error
}

// Broadcaster pushes events to live viewers of a menu.
type Broadcaster interface {
	Publish(menuID uuid.UUID, event string, payload interface{})
}

// Header is the restaurant part of a public menu.
type Header struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	LogoURL string    `json:"logo_url,omitempty"`
}

// View is the public representation of an active menu.
type View struct {
	Restaurant Header       `json:"restaurant"`
	Menu       *models.Menu `json:"menu"`
}

// MenuUpdate is the payload of the menu_updated event.
type MenuUpdate struct {
	MenuID    uuid.UUID `json:"menu_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service renders public menus and reacts to hierarchy changes.
type Service struct {
	menus       MenuSource
	restaurants RestaurantSource
	cache       Cache
	ttl         time.Duration
	events      EventRecorder
	broadcaster Broadcaster
	siteURL     string
	logger      *zap.Logger
	now         func() time.Time
}

// Config wires optional collaborators. Nil Cache, Events or Broadcaster disable that feature.
type Config struct {
	Cache       Cache
	TTL         time.Duration
	Events      EventRecorder
	Broadcaster Broadcaster
	SiteURL     string
}

// NewService creates the public menu service.
func NewService(menus MenuSource, restaurants RestaurantSource, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		menus:       menus,
		restaurants: restaurants,
		cache:       cfg.Cache,
		ttl:         cfg.TTL,
		events:      cfg.Events,
		broadcaster: cfg.Broadcaster,
		siteURL:     cfg.SiteURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns the rendered menu as JSON and records a menu_view event.
// Inactive and missing menus are both reported as not found.
func (s *Service) Get(ctx context.Context, menuID uuid.UUID) ([]byte, error) {
	body, restaurantID, err := s.load(ctx, menuID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, restaurantID, models.EventMenuView, menuID)
	return body, nil
}

// Visible reports whether the menu can be shown publicly.
func (s *Service) Visible(ctx context.Context, menuID uuid.UUID) error {
	_, _, err := s.load(ctx, menuID)
	return err
}

// MenuURL is the guest-facing address encoded into QR codes.
func (s *Service) MenuURL(menuID uuid.UUID) string {
	return s.siteURL + "/menu/" + menuID.String()
}

// QR renders a PNG QR code pointing at the public menu.
func (s *Service) QR(ctx context.Context, menuID uuid.UUID, size int) ([]byte, error) {
	if size == 0 {
		size = DefaultQRSize
	}
	if size < MinQRSize || size > MaxQRSize {
		return nil, apperr.Validation("size must be between %d and %d", MinQRSize, MaxQRSize)
	}
	_, restaurantID, err := s.load(ctx, menuID)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(s.MenuURL(menuID), qrcode.High, size)
	if err != nil {
		return nil, err
	}
	s.record(ctx, restaurantID, models.EventQRDownload, menuID)
	return png, nil
}

// MenuChanged drops the cached view and tells live viewers to refetch.
func (s *Service) MenuChanged(ctx context.Context, menuID uuid.UUID) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(menuID)); err != nil {
			s.logger.Warn("public menu cache invalidation failed", zap.String("menu_id", menuID.String()), zap.Error(err))
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(menuID, realtime.EventMenuUpdated, MenuUpdate{MenuID: menuID, UpdatedAt: s.now().UTC()})
	}
}

// cached is what goes into the cache: the rendered body plus the restaurant id for analytics.
type cached struct {
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	Body         json.RawMessage `json:"body"`
}

func (s *Service) load(ctx context.Context, menuID uuid.UUID) ([]byte, uuid.UUID, error) {
	key := cacheKey(menuID)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("public menu cache read failed", zap.String("menu_id", menuID.String()), zap.Error(err))
		}
		if ok {
			var c cached
			if err := json.Unmarshal(raw, &c); err == nil {
				return c.Body, c.RestaurantID, nil
			}
		}
	}

	m, err := s.menus.GetMenuTree(ctx, menuID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if !m.IsActive {
		return nil, uuid.Nil, apperr.NotFound("menu")
	}
	r, err := s.restaurants.GetRestaurant(ctx, m.RestaurantID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	body, err := json.Marshal(View{
		Restaurant: Header{ID: r.ID, Name: r.Name, LogoURL: r.LogoURL},
		Menu:       m,
	})
	if err != nil {
		return nil, uuid.Nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		raw, _ := json.Marshal(cached{RestaurantID: r.ID, Body: body})
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("public menu cache write failed", zap.String("menu_id", menuID.String()), zap.Error(err))
		}
	}
	return body, r.ID, nil
}

// record stores an analytics event. Failures never affect the guest.
func (s *Service) record(ctx context.Context, restaurantID uuid.UUID, eventType string, menuID uuid.UUID) {
	if s.events == nil {
		return
	}
	e := &models.AnalyticsEvent{
		RestaurantID: restaurantID,
		EventType:    eventType,
		EventData:    map[string]string{"menu_id": menuID.String()},
	}
	if err := s.events.Record(ctx, e); err != nil {
		s.logger.Warn("record analytics event failed", zap.String("type", eventType), zap.Error(err))
	}
}
