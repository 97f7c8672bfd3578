package billing

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/pkg/response"
)

// SubscriptionHandler serves the subscription endpoints of the dashboard.
type SubscriptionHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewSubscriptionHandler creates the subscription handler.
func NewSubscriptionHandler(svc *Service, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{svc: svc, logger: logger}
}

// CreateSubscriptionRequest is the body of POST /restaurants/:id/subscription.
type CreateSubscriptionRequest struct {
	PriceID string `json:"price_id" binding:"required"`
}

// Create handles POST /restaurants/:id/subscription.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid restaurant id")
		return
	}
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "price_id is required")
		return
	}
	checkout, err := h.svc.CreateSubscription(c.Request.Context(), id, req.PriceID, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to create subscription", id)
		return
	}
	response.Created(c, checkout)
}

// Cancel handles DELETE /restaurants/:id/subscription.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid restaurant id")
		return
	}
	sub, err := h.svc.CancelSubscription(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to cancel subscription", id)
		return
	}
	response.OK(c, sub)
}

// Plans handles GET /billing/plans.
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	plans, err := h.svc.Plans(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list plans", uuid.Nil)
		return
	}
	if plans == nil {
		plans = []Plan{}
	}
	response.OK(c, plans)
}

func (h *SubscriptionHandler) fail(c *gin.Context, err error, msg string, restaurantID uuid.UUID) {
	if errors.Is(err, ErrNotConfigured) {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrUnauthorized) &&
		!errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrValidation) {
		h.logger.Error(msg, zap.String("restaurant_id", restaurantID.String()), zap.Error(err))
	}
	response.Error(c, err, msg)
}

// RegisterRoutes mounts the subscription endpoints on an authenticated group.
func (h *SubscriptionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/restaurants/:id/subscription", h.Create)
	rg.DELETE("/restaurants/:id/subscription", h.Cancel)
}

// RegisterPublicRoutes mounts the plan catalogue.
func (h *SubscriptionHandler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/billing/plans", h.Plans)
}
