package restaurants

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/pkg/response"
	"github.com/menuqr/backend/pkg/storage"
)

// Request is the JSON or multipart body for POST /restaurants and PATCH /restaurants/:id.
// Multipart requests may carry a "logo" file part.
type Request struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	RemoveLogo  bool    `json:"remove_logo"`
}

// Handler handles restaurant HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a restaurant handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrUnauthorized) &&
		!errors.Is(err, apperr.ErrValidation) {
		h.logger.Error(fallback, zap.String("route", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err, fallback)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid restaurant id")
		return uuid.Nil, false
	}
	return id, true
}

// bind reads the body from JSON or multipart form. The caller must close the returned file.
func bind(c *gin.Context) (*Request, *storage.File, multipart.File, error) {
	var req Request
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, nil, err
		}
		return &req, nil, nil, nil
	}
	if v, ok := c.GetPostForm("name"); ok {
		req.Name = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		req.Description = &v
	}
	if v, ok := c.GetPostForm("remove_logo"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, nil, errors.New("remove_logo must be a boolean")
		}
		req.RemoveLogo = b
	}
	fh, err := c.FormFile("logo")
	if errors.Is(err, http.ErrMissingFile) {
		return &req, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, nil, err
	}
	return &req, &storage.File{
		Name:        fh.Filename,
		ContentType: storage.ContentTypeFor(fh.Header.Get("Content-Type"), fh.Filename),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}

// Create handles POST /restaurants.
func (h *Handler) Create(c *gin.Context) {
	req, logo, closer, err := bind(c)
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	if req.Name == nil {
		response.BadRequest(c, "name is required")
		return
	}
	attrs := Attrs{Name: *req.Name}
	if req.Description != nil {
		attrs.Description = *req.Description
	}
	r, err := h.svc.Create(c.Request.Context(), attrs, logo, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to create restaurant")
		return
	}
	response.Created(c, r)
}

// List handles GET /restaurants. Admins see every restaurant.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to list restaurants")
		return
	}
	response.OK(c, list)
}

// Get handles GET /restaurants/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := h.svc.Get(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to load restaurant")
		return
	}
	response.OK(c, r)
}

// Update handles PATCH /restaurants/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, logo, closer, err := bind(c)
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	r, err := h.svc.Update(c.Request.Context(), id, Patch(*req), logo, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to update restaurant")
		return
	}
	response.OK(c, r)
}

// Delete handles DELETE /restaurants/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.ActorFrom(c)); err != nil {
		h.fail(c, err, "failed to delete restaurant")
		return
	}
	response.NoContent(c)
}

// Subscription handles GET /restaurants/:id/subscription.
func (h *Handler) Subscription(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sub, err := h.svc.Subscription(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to load subscription")
		return
	}
	response.OK(c, sub)
}

// RegisterRoutes mounts the restaurant endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/restaurants", h.List)
	rg.POST("/restaurants", h.Create)
	rg.GET("/restaurants/:id", h.Get)
	rg.PATCH("/restaurants/:id", h.Update)
	rg.DELETE("/restaurants/:id", h.Delete)
	rg.GET("/restaurants/:id/subscription", h.Subscription)
}
