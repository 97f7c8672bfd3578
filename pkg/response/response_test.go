package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuqr/backend/internal/apperr"
)

func TestError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NotFound("menu"), http.StatusNotFound},
		{"unauthorized", apperr.Unauthorized("menu"), http.StatusForbidden},
		{"conflict", apperr.Conflict("email already registered"), http.StatusConflict},
		{"validation", apperr.Validation("name is required"), http.StatusBadRequest},
		{"upstream", apperr.Upstream("upload", errors.New("boom")), http.StatusBadGateway},
		{"unknown", errors.New("pg: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)

			Error(c, tc.err, "something failed")

			assert.Equal(t, tc.want, rr.Code)
			var body Body
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)

	Error(c, errors.New("pg: secret detail"), "failed to load menu")

	var body Body
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "failed to load menu", body.Error)
}
