package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/config"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/service"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

const (
	actorContextKey  = "actor"
	dealerContextKey = "dealer"
)

// AuthMiddleware authenticates the request's bearer API key. The shared admin
// key authenticates back-office callers; any other key is matched against the
// dealer table. Role strings from back-office callers arrive in many spellings
// and are normalized through domain.ParseRole here, never downstream.
func AuthMiddleware(cfg *config.Config, repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed Authorization header"})
			return
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		if cfg.AdminAPIKey != "" && apiKey == cfg.AdminAPIKey {
			actor := service.Actor{
				ID:   c.GetHeader("X-Actor-Id"),
				Role: domain.RoleAdmin,
			}
			if actor.ID == "" {
				actor.ID = "admin"
			}
			if raw := c.GetHeader("X-Actor-Role"); raw != "" {
				if role := domain.ParseRole(raw); role.IsAdmin() {
					actor.Role = role
				}
			}
			c.Set(actorContextKey, actor)
			c.Next()
			return
		}

		dealer, err := repos.Dealer.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			if _, ok := err.(*errors.ErrUnauthorized); ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			logger.Error("Failed to authenticate API key", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		dealerID := dealer.ID
		c.Set(dealerContextKey, dealer)
		c.Set(actorContextKey, service.Actor{
			ID:       dealer.ID.String(),
			Role:     domain.RoleDealer,
			DealerID: &dealerID,
		})
		c.Next()
	}
}

// AdminOnly rejects non-admin actors. Mounted after AuthMiddleware on the
// admin route group.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActorFromContext(c)
		if !ok || !actor.Role.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// GetActorFromContext retrieves the authenticated actor
func GetActorFromContext(c *gin.Context) (service.Actor, bool) {
	raw, ok := c.Get(actorContextKey)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := raw.(service.Actor)
	return actor, ok
}

// GetDealerFromContext retrieves the authenticated dealer, if the actor is one
func GetDealerFromContext(c *gin.Context) (*domain.Dealer, bool) {
	raw, ok := c.Get(dealerContextKey)
	if !ok {
		return nil, false
	}
	dealer, ok := raw.(*domain.Dealer)
	return dealer, ok
}
