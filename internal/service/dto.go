package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &errors.ErrValidation{Field: field, Message: "not a valid UUID"}
	}
	return id, nil
}

// Actor identifies who performed a mutation. The role arrives normalized;
// raw role strings from the identity service go through domain.ParseRole at
// the API boundary, never here.
type Actor struct {
	ID       string
	Role     domain.Role
	DealerID *uuid.UUID
}

// OrderAcceptRequest is the order-acceptance payload
type OrderAcceptRequest struct {
	CustomerRef   string                 `json:"customer_ref" binding:"required"`
	OrderedAt     *time.Time             `json:"ordered_at,omitempty"`
	Items         []OrderItemInput       `json:"items" binding:"required,min=1,dive"`
	TotalAmount   float64                `json:"total_amount" binding:"min=0"`
	PaymentStatus string                 `json:"payment_status"`
	DeliveryMeta  map[string]interface{} `json:"delivery_meta,omitempty"`
}

type OrderItemInput struct {
	SKU      string  `json:"sku" binding:"required"`
	Title    string  `json:"title"`
	Price    float64 `json:"price" binding:"min=0"`
	Quantity int     `json:"quantity" binding:"required,min=1"`
}

// TrackingUpdate carries courier tracking fields for one SKU. Delivered
// marks the update as terminal and triggers violation evaluation.
type TrackingUpdate struct {
	Carrier     string     `json:"carrier" binding:"required"`
	Number      string     `json:"tracking_number" binding:"required"`
	URL         *string    `json:"tracking_url,omitempty"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// StatusBreakdown is the order status plus its per-SKU decomposition
type StatusBreakdown struct {
	OrderID       string         `json:"order_id"`
	Status        string         `json:"status"`
	StatusReason  string         `json:"status_reason"`
	PartialReturn bool           `json:"partial_return,omitempty"`
	Overridden    bool           `json:"overridden,omitempty"`
	Items         []SkuBreakdown `json:"items"`
}

type SkuBreakdown struct {
	SKU           string                `json:"sku"`
	Status        string                `json:"status"`
	Quantity      int                   `json:"quantity"`
	Unfulfillable bool                  `json:"unfulfillable,omitempty"`
	PackedAt      *time.Time            `json:"packed_at,omitempty"`
	ShippedAt     *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time            `json:"delivered_at,omitempty"`
	Assignments   []AssignmentBreakdown `json:"assignments"`
}

type AssignmentBreakdown struct {
	AssignmentID          string     `json:"assignment_id"`
	DealerID              string     `json:"dealer_id"`
	Quantity              int        `json:"quantity"`
	Status                string     `json:"status"`
	SLAUnknown            bool       `json:"sla_unknown,omitempty"`
	ExpectedFulfillmentAt *time.Time `json:"expected_fulfillment_at,omitempty"`
}

// DisableRequest is the admin payload for disabling one dealer
type DisableRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Notes    string `json:"admin_notes"`
	Override bool   `json:"override"`
}

// BulkDisableOutcome reports one dealer's result in a bulk disable; the bulk
// call never fails as a whole because one dealer did
type BulkDisableOutcome struct {
	DealerID string `json:"dealer_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// SweepResult summarizes one proactive sweep run
type SweepResult struct {
	Scanned    int
	Violations int
	Skipped    int
}
