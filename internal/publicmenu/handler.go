package publicmenu

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/realtime"
	"github.com/menuqr/backend/pkg/response"
)

// Handler serves the unauthenticated public menu endpoints.
type Handler struct {
	svc    *Service
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewHandler creates a public menu handler. hub may be nil, which disables /live.
func NewHandler(svc *Service, hub *realtime.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, hub: hub, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrValidation) {
		h.logger.Error(fallback, zap.String("route", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err, fallback)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid menu id")
		return uuid.Nil, false
	}
	return id, true
}

// Get handles GET /public/menus/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	body, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load menu")
		return
	}
	c.Header("Cache-Control", "public, max-age=30")
	response.OK(c, json.RawMessage(body))
}

// QR handles GET /public/menus/:id/qr.png?size=256.
func (h *Handler) QR(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	size := 0
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "size must be an integer")
			return
		}
		size = n
	}
	png, err := h.svc.QR(c.Request.Context(), id, size)
	if err != nil {
		h.fail(c, err, "failed to render qr code")
		return
	}
	if c.Query("download") == "1" {
		c.Header("Content-Disposition", `attachment; filename="menu-`+id.String()+`.png"`)
	}
	c.Data(http.StatusOK, "image/png", png)
}

// RegisterRoutes mounts the public endpoints. They take no authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/public/menus/:id", h.Get)
	rg.GET("/public/menus/:id/qr.png", h.QR)
	if h.hub != nil {
		rg.GET("/public/menus/:id/live", realtime.ServeMenu(h.hub, h.logger, h.svc.Visible))
	}
}
