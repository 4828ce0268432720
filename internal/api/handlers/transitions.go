package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api/middleware"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/service"
)

// TransitionRequest is the optional body for a SKU transition; absent, the
// transition is stamped with the server clock
type TransitionRequest struct {
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// HandleSkuTransition handles POST /v1/orders/:id/sku/:sku/{pack,ship,deliver,cancel,return}.
// One closure per verb; the verb fixes the target status. Dealers only move
// their own assignments, so a split SKU advances per dealer and settles at the
// slowest one.
func HandleSkuTransition(orders *service.OrderService, target domain.SkuStatus, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}
		skuCode := c.Param("sku")

		var req TransitionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
				return
			}
		}
		at := time.Now()
		if req.OccurredAt != nil {
			at = *req.OccurredAt
		}

		order, err := orders.TransitionSKU(c.Request.Context(), orderID, skuCode, target, actor, at)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}

// HandleUpdateTracking handles PUT /v1/orders/:id/sku/:sku/tracking
func HandleUpdateTracking(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}
		skuCode := c.Param("sku")

		var req service.TrackingUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		order, err := orders.UpdateTracking(c.Request.Context(), orderID, skuCode, req, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}
