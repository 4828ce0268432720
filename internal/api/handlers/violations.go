package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api/middleware"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/service"
)

// ViolationResponse represents one SLA violation record
type ViolationResponse struct {
	ID               string                   `json:"id"`
	DealerID         string                   `json:"dealer_id"`
	OrderID          string                   `json:"order_id"`
	SKU              string                   `json:"sku"`
	ExpectedAt       string                   `json:"expected_at"`
	ActualAt         string                   `json:"actual_at"`
	ViolationMinutes int64                    `json:"violation_minutes"`
	Severity         domain.ViolationSeverity `json:"severity"`
	Resolved         bool                     `json:"resolved"`
	ResolutionNotes  *string                  `json:"resolution_notes,omitempty"`
	ResolvedBy       *string                  `json:"resolved_by,omitempty"`
	ResolvedAt       *string                  `json:"resolved_at,omitempty"`
	CreatedAt        string                   `json:"created_at"`
}

func toViolationResponse(v *domain.SLAViolation) ViolationResponse {
	return ViolationResponse{
		ID:               v.ID.String(),
		DealerID:         v.DealerID.String(),
		OrderID:          v.OrderID.String(),
		SKU:              v.SKU,
		ExpectedAt:       v.ExpectedAt.Format(timeFormat),
		ActualAt:         v.ActualAt.Format(timeFormat),
		ViolationMinutes: v.ViolationMinutes,
		Severity:         v.Severity,
		Resolved:         v.Resolved,
		ResolutionNotes:  v.ResolutionNotes,
		ResolvedBy:       v.ResolvedBy,
		ResolvedAt:       formatTime(v.ResolvedAt),
		CreatedAt:        v.CreatedAt.Format(timeFormat),
	}
}

// HandleListViolations handles GET /v1/sla-violations (admin). Supports dealer_id,
// resolved, start_date and end_date filters; the summary block aggregates the
// whole filtered set, not just the returned page.
func HandleListViolations(violations *service.ViolationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := repository.ViolationFilter{
			Limit:  parseIntQuery(c, "limit", 50),
			Offset: parseIntQuery(c, "offset", 0),
		}

		if raw := c.Query("dealer_id"); raw != "" {
			dealerID, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dealer_id"})
				return
			}
			filter.DealerID = &dealerID
		}
		if raw := c.Query("resolved"); raw != "" {
			resolved := raw == "true"
			filter.Resolved = &resolved
		}
		if raw := c.Query("start_date"); raw != "" {
			start, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, want RFC3339"})
				return
			}
			filter.StartDate = &start
		}
		if raw := c.Query("end_date"); raw != "" {
			end, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, want RFC3339"})
				return
			}
			filter.EndDate = &end
		}

		list, summary, err := violations.ListViolations(c.Request.Context(), filter)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		responses := make([]ViolationResponse, len(list))
		for i, v := range list {
			responses[i] = toViolationResponse(v)
		}
		c.JSON(http.StatusOK, gin.H{
			"violations": responses,
			"summary": gin.H{
				"count":            summary.Count,
				"resolved_count":   summary.ResolvedCount,
				"unresolved_count": summary.UnresolvedCount,
				"total_minutes":    summary.TotalMinutes,
				"average_minutes":  summary.AverageMinutes,
			},
		})
	}
}

// ResolveViolationRequest is the resolution payload
type ResolveViolationRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// HandleResolveViolation handles PUT /v1/sla-violations/:id/resolve (admin)
func HandleResolveViolation(violations *service.ViolationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ResolveViolationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		resolved, err := violations.ResolveViolation(c.Request.Context(), c.Param("id"), req.Notes, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toViolationResponse(resolved))
	}
}
