package menus

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/pkg/response"
	"github.com/menuqr/backend/pkg/storage"
)

// CreateMenuRequest is the body for POST /restaurants/:id/menus.
type CreateMenuRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// UpdateMenuRequest is the body for PATCH /menus/:id.
type UpdateMenuRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// CreateCategoryRequest is the body for POST /menus/:id/categories.
type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
}

// UpdateCategoryRequest is the body for PATCH /categories/:id.
type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// OrderRequestEntry is one {id, order} pair of a reorder body.
type OrderRequestEntry struct {
	ID    string `json:"id" binding:"required,uuid"`
	Order *int   `json:"order" binding:"required"`
}

// ReorderCategoriesRequest is the body for PUT /menus/:id/categories/order.
type ReorderCategoriesRequest struct {
	Categories []OrderRequestEntry `json:"categories" binding:"required,dive"`
}

// ReorderItemsRequest is the body for PUT /categories/:id/items/order.
type ReorderItemsRequest struct {
	Items []OrderRequestEntry `json:"items" binding:"required,dive"`
}

// MoveItemRequest is the body for PUT /items/:id/move.
type MoveItemRequest struct {
	CategoryID string `json:"category_id" binding:"required,uuid"`
	Order      *int   `json:"order"`
}

// ItemRequest is the JSON or multipart body for POST /categories/:id/items and PATCH /items/:id.
// Multipart requests may carry an "image" file part.
type ItemRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Order       *int             `json:"order"`
	IsAvailable *bool            `json:"is_available"`
	RemoveImage bool             `json:"remove_image"`
}

// Handler handles menu hierarchy HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a menus handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func parseID(c *gin.Context, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+entity+" id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrUnauthorized) &&
		!errors.Is(err, apperr.ErrValidation) && !errors.Is(err, apperr.ErrConflict) {
		h.logger.Error(fallback, zap.String("route", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err, fallback)
}

func toEntries(in []OrderRequestEntry) ([]OrderEntry, error) {
	out := make([]OrderEntry, 0, len(in))
	for _, e := range in {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, OrderEntry{ID: id, Order: *e.Order})
	}
	return out, nil
}

// bindItem reads an item body from JSON or multipart form and returns the optional image part.
// The caller must close the returned file.
func bindItem(c *gin.Context) (*ItemRequest, *storage.File, multipart.File, error) {
	var req ItemRequest
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
	if raw, ok := c.GetPostForm("price"); ok {
		p, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, nil, nil, errors.New("price must be a decimal number")
		}
		req.Price = &p
	}
	if raw, ok := c.GetPostForm("order"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, nil, nil, errors.New("order must be an integer")
		}
		req.Order = &n
	}
	var err error
	if req.IsAvailable, err = parseBoolForm(c, "is_available"); err != nil {
		return nil, nil, nil, errors.New("is_available must be a boolean")
	}
	remove, err := parseBoolForm(c, "remove_image")
	if err != nil {
		return nil, nil, nil, errors.New("remove_image must be a boolean")
	}
	req.RemoveImage = remove != nil && *remove
	fh, err := c.FormFile("image")
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
	file := &storage.File{
		Name:        fh.Filename,
		ContentType: storage.ContentTypeFor(fh.Header.Get("Content-Type"), fh.Filename),
		Size:        fh.Size,
		Body:        f,
	}
	return &req, file, f, nil
}

// ListMenus handles GET /restaurants/:id/menus.
func (h *Handler) ListMenus(c *gin.Context) {
	restaurantID, ok := parseID(c, "restaurant")
	if !ok {
		return
	}
	list, err := h.svc.ListMenus(c.Request.Context(), restaurantID, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to list menus")
		return
	}
	response.OK(c, list)
}

// CreateMenu handles POST /restaurants/:id/menus.
func (h *Handler) CreateMenu(c *gin.Context) {
	restaurantID, ok := parseID(c, "restaurant")
	if !ok {
		return
	}
	var req CreateMenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.CreateMenu(c.Request.Context(), restaurantID, MenuAttrs{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	}, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to create menu")
		return
	}
	response.Created(c, m)
}

// GetMenu handles GET /menus/:id.
func (h *Handler) GetMenu(c *gin.Context) {
	menuID, ok := parseID(c, "menu")
	if !ok {
		return
	}
	m, err := h.svc.FindMenu(c.Request.Context(), menuID, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to load menu")
		return
	}
	response.OK(c, m)
}

// UpdateMenu handles PATCH /menus/:id.
func (h *Handler) UpdateMenu(c *gin.Context) {
	menuID, ok := parseID(c, "menu")
	if !ok {
		return
	}
	var req UpdateMenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.UpdateMenu(c.Request.Context(), menuID, MenuPatch(req), middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to update menu")
		return
	}
	response.OK(c, m)
}

// DeleteMenu handles DELETE /menus/:id.
func (h *Handler) DeleteMenu(c *gin.Context) {
	menuID, ok := parseID(c, "menu")
	if !ok {
		return
	}
	if err := h.svc.DeleteMenu(c.Request.Context(), menuID, middleware.ActorFrom(c)); err != nil {
		h.fail(c, err, "failed to delete menu")
		return
	}
	response.NoContent(c)
}

// CreateCategory handles POST /menus/:id/categories.
func (h *Handler) CreateCategory(c *gin.Context) {
	menuID, ok := parseID(c, "menu")
	if !ok {
		return
	}
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), menuID, CategoryAttrs(req), middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to create category")
		return
	}
	response.Created(c, cat)
}

// ReorderCategories handles PUT /menus/:id/categories/order.
func (h *Handler) ReorderCategories(c *gin.Context) {
	menuID, ok := parseID(c, "menu")
	if !ok {
		return
	}
	var req ReorderCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	entries, err := toEntries(req.Categories)
	if err != nil {
		response.BadRequest(c, "invalid category id")
		return
	}
	m, err := h.svc.ReorderCategories(c.Request.Context(), menuID, entries, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to reorder categories")
		return
	}
	response.OK(c, m)
}

// UpdateCategory handles PATCH /categories/:id.
func (h *Handler) UpdateCategory(c *gin.Context) {
	categoryID, ok := parseID(c, "category")
	if !ok {
		return
	}
	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cat, err := h.svc.UpdateCategory(c.Request.Context(), categoryID, CategoryPatch(req), middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to update category")
		return
	}
	response.OK(c, cat)
}

// DeleteCategory handles DELETE /categories/:id.
func (h *Handler) DeleteCategory(c *gin.Context) {
	categoryID, ok := parseID(c, "category")
	if !ok {
		return
	}
	if err := h.svc.DeleteCategory(c.Request.Context(), categoryID, middleware.ActorFrom(c)); err != nil {
		h.fail(c, err, "failed to delete category")
		return
	}
	response.NoContent(c)
}

// CreateItem handles POST /categories/:id/items (JSON, or multipart with an optional image).
func (h *Handler) CreateItem(c *gin.Context) {
	categoryID, ok := parseID(c, "category")
	if !ok {
		return
	}
	req, image, closer, err := bindItem(c)
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	if req.Name == nil || req.Price == nil {
		response.BadRequest(c, "name and price are required")
		return
	}
	attrs := ItemAttrs{
		Name:        *req.Name,
		Price:       *req.Price,
		Order:       req.Order,
		IsAvailable: req.IsAvailable,
	}
	if req.Description != nil {
		attrs.Description = *req.Description
	}
	it, err := h.svc.CreateItem(c.Request.Context(), categoryID, attrs, image, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to create item")
		return
	}
	response.Created(c, it)
}

// ReorderItems handles PUT /categories/:id/items/order.
func (h *Handler) ReorderItems(c *gin.Context) {
	categoryID, ok := parseID(c, "category")
	if !ok {
		return
	}
	var req ReorderItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	entries, err := toEntries(req.Items)
	if err != nil {
		response.BadRequest(c, "invalid item id")
		return
	}
	m, err := h.svc.ReorderItems(c.Request.Context(), categoryID, entries, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to reorder items")
		return
	}
	response.OK(c, m)
}

// UpdateItem handles PATCH /items/:id (JSON, or multipart with an optional replacement image).
func (h *Handler) UpdateItem(c *gin.Context) {
	itemID, ok := parseID(c, "item")
	if !ok {
		return
	}
	req, image, closer, err := bindItem(c)
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	if req.Order != nil {
		response.BadRequest(c, "order cannot be patched, use the reorder or move endpoints")
		return
	}
	patch := ItemPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		IsAvailable: req.IsAvailable,
		RemoveImage: req.RemoveImage,
	}
	it, err := h.svc.UpdateItem(c.Request.Context(), itemID, patch, image, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to update item")
		return
	}
	response.OK(c, it)
}

// DeleteItem handles DELETE /items/:id.
func (h *Handler) DeleteItem(c *gin.Context) {
	itemID, ok := parseID(c, "item")
	if !ok {
		return
	}
	if err := h.svc.DeleteItem(c.Request.Context(), itemID, middleware.ActorFrom(c)); err != nil {
		h.fail(c, err, "failed to delete item")
		return
	}
	response.NoContent(c)
}

// MoveItem handles PUT /items/:id/move.
func (h *Handler) MoveItem(c *gin.Context) {
	itemID, ok := parseID(c, "item")
	if !ok {
		return
	}
	var req MoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		response.BadRequest(c, "invalid category_id")
		return
	}
	it, err := h.svc.MoveItem(c.Request.Context(), itemID, categoryID, req.Order, middleware.ActorFrom(c))
	if err != nil {
		h.fail(c, err, "failed to move item")
		return
	}
	response.OK(c, it)
}

// RegisterRoutes mounts the hierarchy endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/restaurants/:id/menus", h.ListMenus)
	rg.POST("/restaurants/:id/menus", h.CreateMenu)

	rg.GET("/menus/:id", h.GetMenu)
	rg.PATCH("/menus/:id", h.UpdateMenu)
	rg.DELETE("/menus/:id", h.DeleteMenu)
	rg.POST("/menus/:id/categories", h.CreateCategory)
	rg.PUT("/menus/:id/categories/order", h.ReorderCategories)

	rg.PATCH("/categories/:id", h.UpdateCategory)
	rg.DELETE("/categories/:id", h.DeleteCategory)
	rg.POST("/categories/:id/items", h.CreateItem)
	rg.PUT("/categories/:id/items/order", h.ReorderItems)

	rg.PATCH("/items/:id", h.UpdateItem)
	rg.DELETE("/items/:id", h.DeleteItem)
	rg.PUT("/items/:id/move", h.MoveItem)
}

func parseBoolForm(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetPostForm(key)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
