package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsAreMatchable(t *testing.T) {
	assert.True(t, errors.Is(NotFound("menu"), ErrNotFound))
	assert.Equal(t, "menu not found", NotFound("menu").Error())

	assert.True(t, errors.Is(Unauthorized("restaurant"), ErrUnauthorized))
	assert.True(t, errors.Is(Validation("price must not be negative"), ErrValidation))
	assert.True(t, errors.Is(Conflict("email already registered"), ErrConflict))

	up := Upstream("upload image", errors.New("timeout"))
	assert.True(t, errors.Is(up, ErrUpstream))
	assert.Contains(t, up.Error(), "timeout")
}
