package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextActor is the key for the full models.Actor in gin context.
	ContextActor = "actor"
)

// TokenVerifier turns a bearer token into the caller identity.
type TokenVerifier interface {
	Verify(token string) (models.Actor, error)
}

// JWT returns a middleware that validates the bearer token and sets the actor in context.
func JWT(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		actor, err := verifier.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		SetActor(c, actor)
		c.Next()
	}
}

// SetActor stores the caller identity in context.
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(ContextActor, actor)
	c.Set(ContextUserID, actor.ID)
	c.Set(ContextUserRole, actor.Role)
}

// ActorFrom returns the caller set by JWT, or the zero Actor, which owns nothing.
func ActorFrom(c *gin.Context) models.Actor {
	v, ok := c.Get(ContextActor)
	if !ok {
		return models.Actor{}
	}
	actor, _ := v.(models.Actor)
	return actor
}
