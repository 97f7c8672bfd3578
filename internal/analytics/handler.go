package analytics

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/pkg/response"
)

// Store reads aggregated events.
type Store interface {
	CountByType(ctx context.Context, restaurantID uuid.UUID) ([]models.EventCount, error)
	ViewsByMenu(ctx context.Context, restaurantID uuid.UUID) (map[uuid.UUID]int, error)
}

// MenuLister lists the menus of a restaurant.
type MenuLister interface {
	ListMenus(ctx context.Context, restaurantID uuid.UUID) ([]models.Menu, error)
}

// LiveCounter reports connected public viewers of a menu.
type LiveCounter interface {
	ViewerCount(menuID uuid.UUID) int
}

// Handler handles GET /restaurants/:id/analytics.
type Handler struct {
	store    Store
	menus    MenuLister
	live     LiveCounter
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewHandler creates an analytics handler. live may be nil.
func NewHandler(store Store, menus MenuLister, live LiveCounter, resolver *access.Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, menus: menus, live: live, resolver: resolver, logger: logger}
}

// Summary builds the analytics summary of a restaurant the actor may access.
func (h *Handler) Summary(ctx context.Context, restaurantID uuid.UUID, actor models.Actor) (*models.AnalyticsSummary, error) {
	if _, err := h.resolver.Restaurant(ctx, restaurantID, actor); err != nil {
		return nil, err
	}
	counts, err := h.store.CountByType(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	views, err := h.store.ViewsByMenu(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	menus, err := h.menus.ListMenus(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	out := &models.AnalyticsSummary{
		RestaurantID: restaurantID,
		Events:       counts,
		Menus:        make([]models.MenuStats, 0, len(menus)),
	}
	if out.Events == nil {
		out.Events = []models.EventCount{}
	}
	for _, m := range menus {
		st := models.MenuStats{MenuID: m.ID, Name: m.Name, IsActive: m.IsActive, Views: views[m.ID]}
		if h.live != nil {
			st.LiveViewers = h.live.ViewerCount(m.ID)
		}
		out.Menus = append(out.Menus, st)
	}
	return out, nil
}

// GetByRestaurant handles GET /restaurants/:id/analytics.
func (h *Handler) GetByRestaurant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid restaurant id")
		return
	}
	summary, err := h.Summary(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrUnauthorized) {
			h.logger.Error("analytics summary failed", zap.String("restaurant_id", id.String()), zap.Error(err))
		}
		response.Error(c, err, "failed to load analytics")
		return
	}
	response.OK(c, summary)
}

// RegisterRoutes mounts the analytics endpoint on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/restaurants/:id/analytics", h.GetByRestaurant)
}
