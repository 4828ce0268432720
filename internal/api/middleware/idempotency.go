package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

const (
	idempotencyKeyContextKey  = "idempotency_key"
	idempotencyHashContextKey = "idempotency_hash"
	existingOrderContextKey   = "idempotency_existing_order"
)

// IdempotencyMiddleware makes order acceptance safe to retry. A request
// carrying an Idempotency-Key that was already used returns the original
// order; the same key with a different body is a conflict, not a replay.
func IdempotencyMiddleware(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])

		existing, err := repos.Idempotency.Get(c.Request.Context(), key)
		if err != nil {
			if _, ok := err.(*errors.ErrNotFound); !ok {
				logger.Error("Failed to look up idempotency key", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
		} else {
			if existing.RequestHash != hash {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error": "Idempotency-Key was already used with a different request body",
				})
				return
			}
			c.Set(existingOrderContextKey, existing.OrderID.String())
		}

		c.Set(idempotencyKeyContextKey, key)
		c.Set(idempotencyHashContextKey, hash)
		c.Next()
	}
}

// GetIdempotencyInfo returns the request's idempotency key, body hash, the
// previously created order's id and whether this request is a replay
func GetIdempotencyInfo(c *gin.Context) (key, hash, existingOrderID string, isExisting bool) {
	key = c.GetString(idempotencyKeyContextKey)
	hash = c.GetString(idempotencyHashContextKey)
	existingOrderID = c.GetString(existingOrderContextKey)
	return key, hash, existingOrderID, existingOrderID != ""
}
