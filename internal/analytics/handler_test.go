package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/internal/models"
)

type fakeData struct {
	restaurant *models.Restaurant
	menus      []models.Menu
	counts     []models.EventCount
	views      map[uuid.UUID]int
}

func (f *fakeData) GetRestaurant(_ context.Context, id uuid.UUID) (*models.Restaurant, error) {
	if f.restaurant != nil && f.restaurant.ID == id {
		return f.restaurant, nil
	}
	return nil, apperr.NotFound("restaurant")
}

func (f *fakeData) GetOwnedMenu(context.Context, uuid.UUID) (*models.OwnedMenu, error) {
	return nil, apperr.NotFound("menu")
}

func (f *fakeData) GetOwnedCategory(context.Context, uuid.UUID) (*models.OwnedCategory, error) {
	return nil, apperr.NotFound("category")
}

func (f *fakeData) GetOwnedItem(context.Context, uuid.UUID) (*models.OwnedItem, error) {
	return nil, apperr.NotFound("item")
}

func (f *fakeData) GetOwnedItems(context.Context, []uuid.UUID) ([]models.OwnedItem, error) {
	return nil, nil
}

func (f *fakeData) CountByType(context.Context, uuid.UUID) ([]models.EventCount, error) {
	return f.counts, nil
}

func (f *fakeData) ViewsByMenu(context.Context, uuid.UUID) (map[uuid.UUID]int, error) {
	return f.views, nil
}

func (f *fakeData) ListMenus(context.Context, uuid.UUID) ([]models.Menu, error) {
	return f.menus, nil
}

type fixedLive map[uuid.UUID]int

func (l fixedLive) ViewerCount(id uuid.UUID) int { return l[id] }

func TestSummary(t *testing.T) {
	owner := models.Actor{ID: uuid.New(), Role: models.RoleUser}
	lunch, dinner := uuid.New(), uuid.New()
	data := &fakeData{
		restaurant: &models.Restaurant{ID: uuid.New(), UserID: owner.ID},
		menus: []models.Menu{
			{ID: lunch, Name: "Lunch", IsActive: true},
			{ID: dinner, Name: "Dinner"},
		},
		counts: []models.EventCount{{EventType: models.EventMenuView, Total: 12, Last7Days: 3}},
		views:  map[uuid.UUID]int{lunch: 12},
	}
	h := NewHandler(data, data, fixedLive{lunch: 2}, access.NewResolver(data, data), nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			middleware.SetActor(c, models.Actor{ID: id, Role: models.RoleUser})
		}
	})
	h.RegisterRoutes(rg)

	get := func(user uuid.UUID, restaurantID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/restaurants/"+restaurantID+"/analytics", nil)
		req.Header.Set("X-Test-User", user.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get(owner.ID, data.restaurant.ID.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Data models.AnalyticsSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Len(t, env.Data.Menus, 2)
	assert.Equal(t, models.MenuStats{MenuID: lunch, Name: "Lunch", IsActive: true, Views: 12, LiveViewers: 2}, env.Data.Menus[0])
	assert.Equal(t, 0, env.Data.Menus[1].Views)
	assert.Equal(t, 12, env.Data.Events[0].Total)

	assert.Equal(t, http.StatusForbidden, get(uuid.New(), data.restaurant.ID.String()).Code)
	assert.Equal(t, http.StatusNotFound, get(owner.ID, uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(owner.ID, "x").Code)
}
