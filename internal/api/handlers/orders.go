package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api/middleware"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/service"
)

// OrderResponse represents the order aggregate in API responses
type OrderResponse struct {
	ID            string             `json:"id"`
	CustomerRef   string             `json:"customer_ref"`
	OrderedAt     string             `json:"ordered_at"`
	Status        domain.OrderStatus `json:"status"`
	StatusReason  string             `json:"status_reason,omitempty"`
	PartialReturn bool               `json:"partial_return,omitempty"`
	Overridden    bool               `json:"overridden,omitempty"`
	TotalAmount   float64            `json:"total_amount"`
	PaymentStatus string             `json:"payment_status,omitempty"`
	Version       int64              `json:"version"`
	Items         []SkuItemResponse  `json:"items"`
}

type SkuItemResponse struct {
	SKU             string               `json:"sku"`
	Title           string               `json:"title,omitempty"`
	Price           float64              `json:"price"`
	Quantity        int                  `json:"quantity"`
	Status          domain.SkuStatus     `json:"status"`
	Unfulfillable   bool                 `json:"unfulfillable,omitempty"`
	TrackingCarrier *string              `json:"tracking_carrier,omitempty"`
	TrackingNumber  *string              `json:"tracking_number,omitempty"`
	TrackingURL     *string              `json:"tracking_url,omitempty"`
	PackedAt        *string              `json:"packed_at,omitempty"`
	ShippedAt       *string              `json:"shipped_at,omitempty"`
	DeliveredAt     *string              `json:"delivered_at,omitempty"`
	Assignments     []AssignmentResponse `json:"assignments"`
}

type AssignmentResponse struct {
	ID                    string           `json:"id"`
	DealerID              string           `json:"dealer_id"`
	Quantity              int              `json:"quantity"`
	Status                domain.SkuStatus `json:"status"`
	SLAUnknown            bool             `json:"sla_unknown,omitempty"`
	ExpectedDispatchAt    *string          `json:"expected_dispatch_at,omitempty"`
	ExpectedFulfillmentAt *string          `json:"expected_fulfillment_at,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeFormat)
	return &s
}

func toOrderResponse(order *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:            order.ID.String(),
		CustomerRef:   order.CustomerRef,
		OrderedAt:     order.OrderedAt.Format(timeFormat),
		Status:        order.Status,
		StatusReason:  order.StatusReason,
		PartialReturn: order.PartialReturn,
		Overridden:    order.Overridden,
		TotalAmount:   order.TotalAmount,
		PaymentStatus: order.PaymentStatus,
		Version:       order.Version,
		Items:         make([]SkuItemResponse, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		itemResp := SkuItemResponse{
			SKU:             item.SKU,
			Title:           item.Title,
			Price:           item.Price,
			Quantity:        item.Quantity,
			Status:          item.Status,
			Unfulfillable:   item.Unfulfillable,
			TrackingCarrier: item.TrackingCarrier,
			TrackingNumber:  item.TrackingNumber,
			TrackingURL:     item.TrackingURL,
			PackedAt:        formatTime(item.PackedAt),
			ShippedAt:       formatTime(item.ShippedAt),
			DeliveredAt:     formatTime(item.DeliveredAt),
			Assignments:     make([]AssignmentResponse, 0, len(item.Assignments)),
		}
		for _, a := range item.OpenAssignments() {
			itemResp.Assignments = append(itemResp.Assignments, AssignmentResponse{
				ID:                    a.ID.String(),
				DealerID:              a.DealerID.String(),
				Quantity:              a.Quantity,
				Status:                a.Status,
				SLAUnknown:            a.SLAUnknown,
				ExpectedDispatchAt:    formatTime(a.ExpectedDispatchAt),
				ExpectedFulfillmentAt: formatTime(a.ExpectedFulfillmentAt),
			})
		}
		resp.Items = append(resp.Items, itemResp)
	}
	return resp
}

// dealerCanSee reports whether the dealer holds an assignment on the order
func dealerCanSee(order *domain.Order, dealerID uuid.UUID) bool {
	for _, item := range order.Items {
		for _, a := range item.Assignments {
			if a.DealerID == dealerID {
				return true
			}
		}
	}
	return false
}

// HandleAcceptOrder handles POST /v1/orders
func HandleAcceptOrder(orders *service.OrderService, repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// Replay of a known Idempotency-Key returns the original order
		idemKey, idemHash, existingOrderID, isExisting := middleware.GetIdempotencyInfo(c)
		if isExisting {
			orderID, err := uuid.Parse(existingOrderID)
			if err != nil {
				logger.Error("Invalid order id stored for idempotency key", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			order, err := orders.GetOrder(c.Request.Context(), orderID)
			if err != nil {
				writeError(c, logger, err)
				return
			}
			c.JSON(http.StatusOK, toOrderResponse(order))
			return
		}

		var req service.OrderAcceptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		order, err := orders.AcceptOrder(c.Request.Context(), req, actor)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		if idemKey != "" {
			err := repos.Idempotency.Create(c.Request.Context(), &domain.IdempotencyKey{
				Key:         idemKey,
				CustomerRef: order.CustomerRef,
				OrderID:     order.ID,
				RequestHash: idemHash,
			})
			if err != nil {
				logger.Warn("Failed to store idempotency key", zap.Error(err))
			}
		}

		c.JSON(http.StatusCreated, toOrderResponse(order))
	}
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
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

		order, err := orders.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		if actor.DealerID != nil && !dealerCanSee(order, *actor.DealerID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(order))
	}
}

// HandleListOrders handles GET /v1/admin/orders
func HandleListOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *domain.OrderStatus
		if raw := c.Query("status"); raw != "" {
			s := domain.OrderStatus(raw)
			if !s.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
				return
			}
			status = &s
		}

		limit := parseIntQuery(c, "limit", 50)
		offset := parseIntQuery(c, "offset", 0)
		if limit < 1 || limit > 200 {
			limit = 50
		}

		list, err := orders.ListOrders(c.Request.Context(), status, limit, offset)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		responses := make([]OrderResponse, len(list))
		for i, order := range list {
			responses[i] = toOrderResponse(order)
		}
		c.JSON(http.StatusOK, gin.H{"orders": responses, "count": len(responses)})
	}
}

// HandleStatusBreakdown handles GET /v1/orders/:id/status-breakdown. Dealer
// actors are scoped to orders they hold an assignment on, same as
// HandleGetOrder.
func HandleStatusBreakdown(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
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

		if actor.DealerID != nil {
			order, err := orders.GetOrder(c.Request.Context(), orderID)
			if err != nil {
				writeError(c, logger, err)
				return
			}
			if !dealerCanSee(order, *actor.DealerID) {
				c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
				return
			}
		}

		breakdown, err := orders.StatusBreakdown(c.Request.Context(), orderID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, breakdown)
	}
}

// HandleOrderAudit handles GET /v1/orders/:id/audit (admin)
func HandleOrderAudit(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
			return
		}

		limit := parseIntQuery(c, "limit", 100)
		offset := parseIntQuery(c, "offset", 0)

		entries, err := repos.Audit.ListByOrder(c.Request.Context(), orderID, limit, offset)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		out := make([]gin.H, len(entries))
		for i, e := range entries {
			item := gin.H{
				"action":     e.Action,
				"actor_id":   e.ActorID,
				"actor_role": e.ActorRole,
				"created_at": e.CreatedAt.Format(timeFormat),
			}
			if e.SKU != nil {
				item["sku"] = *e.SKU
			}
			if e.Before != nil {
				item["before"] = e.Before
			}
			if e.After != nil {
				item["after"] = e.After
			}
			out[i] = item
		}
		c.JSON(http.StatusOK, gin.H{"entries": out, "count": len(out)})
	}
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}
