package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api/middleware"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/service"
)

// OverrideStatusRequest is the admin payload for a manual order status
type OverrideStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// HandleOverrideStatus handles POST /v1/admin/orders/:id/status
func HandleOverrideStatus(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
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

		var req OverrideStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		order, err := orders.OverrideStatus(c.Request.Context(), orderID, domain.OrderStatus(req.Status), req.Reason, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}

// ReassignRequest names the dealer taking over an assignment
type ReassignRequest struct {
	DealerID string `json:"dealer_id" binding:"required"`
}

// HandleReassignAssignment handles POST /v1/admin/assignments/:id/reassign
func HandleReassignAssignment(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		assignmentID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignment ID"})
			return
		}

		var req ReassignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}
		dealerID, err := uuid.Parse(req.DealerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dealer_id"})
			return
		}

		order, err := orders.ReassignAssignment(c.Request.Context(), assignmentID, dealerID, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}

// DealerResponse represents a dealer's escalation-relevant state
type DealerResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	IsActive           bool    `json:"is_active"`
	EligibleForDisable bool    `json:"eligible_for_disable"`
	DisabledReason     *string `json:"disabled_reason,omitempty"`
	DisabledAt         *string `json:"disabled_at,omitempty"`
}

func toDealerResponse(dealer *domain.Dealer) DealerResponse {
	return DealerResponse{
		ID:                 dealer.ID.String(),
		Name:               dealer.Name,
		IsActive:           dealer.IsActive,
		EligibleForDisable: dealer.EligibleForDisable,
		DisabledReason:     dealer.DisabledReason,
		DisabledAt:         formatTime(dealer.DisabledAt),
	}
}

// HandleDisableDealer handles PUT /v1/dealers/:id/disable
func HandleDisableDealer(escalation *service.EscalationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		dealerID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dealer ID"})
			return
		}

		var req service.DisableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		dealer, err := escalation.DisableDealer(c.Request.Context(), dealerID, req, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toDealerResponse(dealer))
	}
}

// BulkDisableRequest is the admin payload for disabling several dealers
type BulkDisableRequest struct {
	DealerIDs []string `json:"dealer_ids" binding:"required,min=1"`
	Reason    string   `json:"reason" binding:"required"`
	Notes     string   `json:"admin_notes"`
	Override  bool     `json:"override"`
}

// HandleBulkDisable handles POST /v1/dealers/disable-bulk. Always
// returns 200 with per-dealer outcomes; a failed dealer never aborts the rest.
func HandleBulkDisable(escalation *service.EscalationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req BulkDisableRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		outcomes := escalation.BulkDisable(c.Request.Context(), req.DealerIDs, service.DisableRequest{
			Reason:   req.Reason,
			Notes:    req.Notes,
			Override: req.Override,
		}, actor)
		c.JSON(http.StatusOK, gin.H{"results": outcomes})
	}
}

// HandleDealerLedger handles GET /v1/dealers/:id/ledger
func HandleDealerLedger(escalation *service.EscalationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		dealerID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dealer ID"})
			return
		}

		ledger, err := escalation.LedgerSnapshot(c.Request.Context(), dealerID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"dealer_id":         ledger.DealerID.String(),
			"count":             ledger.Count,
			"unresolved":        ledger.Unresolved,
			"total_minutes":     ledger.TotalMinutes,
			"average_minutes":   ledger.AverageMinutes,
			"last_violation_at": formatTime(ledger.LastViolationAt),
		})
	}
}
