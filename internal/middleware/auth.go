package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/strangersmeet/internal/apperr"
	"github.com/lalith-99/strangersmeet/internal/models"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware. Handlers read them through the
// helpers below rather than with c.Get.
const (
	ContextKeyUserID = "user_id"
	ContextKeyUser   = "user"
)

// IdentityResolver turns a bearer token into the active user it belongs to.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, credential string) (*models.User, error)
}

// AuthMiddleware rejects the request with 401 unless it carries
// "Authorization: Bearer <token>" for an active user. The same resolver
// authenticates socket connections, so both paths accept the same tokens.
func AuthMiddleware(resolver IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		user, err := resolver.ResolveIdentity(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid or expired token",
				})
				return
			}
			logger.Error("failed to resolve identity", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to authenticate",
			})
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// GetUserID returns uuid.Nil when the middleware did not run.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetUser(c *gin.Context) *models.User {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, _ := val.(*models.User)
	return user
}
