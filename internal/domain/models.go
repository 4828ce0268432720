package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order is the root aggregate. Its status is derived from the line items'
// statuses and must never be set directly, except through an admin override
// which is always recorded in the audit log.
type Order struct {
	ID            uuid.UUID
	CustomerRef   string
	OrderedAt     time.Time
	Status        OrderStatus
	StatusReason  string
	PartialReturn bool
	Overridden    bool
	TotalAmount   float64
	PaymentStatus string
	DeliveryMeta  map[string]interface{} // JSONB, opaque to this core
	Version       int64
	Items         []*SkuLineItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemBySKU returns the line item with the given SKU code, or nil
func (o *Order) ItemBySKU(sku string) *SkuLineItem {
	for _, item := range o.Items {
		if item.SKU == sku {
			return item
		}
	}
	return nil
}

// SkuLineItem is one distinct SKU within an order, owned exclusively by it
type SkuLineItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	SKU             string
	Title           string
	Price           float64
	Quantity        int
	Status          SkuStatus
	Unfulfillable   bool
	PackedAt        *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	TrackingCarrier *string
	TrackingNumber  *string
	TrackingURL     *string
	Assignments     []*DealerAssignment
	CreatedAt       time.Time
}

// OpenAssignments returns the assignments that have not been closed by a
// reassignment
func (i *SkuLineItem) OpenAssignments() []*DealerAssignment {
	open := make([]*DealerAssignment, 0, len(i.Assignments))
	for _, a := range i.Assignments {
		if a.ClosedAt == nil {
			open = append(open, a)
		}
	}
	return open
}

// DealerAssignment relates a SKU line item to a dealer for some quantity.
// Immutable once created except for closing; reassignment closes the old
// record and opens a new one so the SLA history stays auditable.
type DealerAssignment struct {
	ID                    uuid.UUID
	OrderID               uuid.UUID
	SkuLineItemID         uuid.UUID
	SKU                   string
	DealerID              uuid.UUID
	Quantity              int
	Margin                float64
	Priority              int
	InStock               bool
	Status                SkuStatus
	AssignedAt            time.Time
	ClosedAt              *time.Time
	ReplacedBy            *uuid.UUID
	SLAUnknown            bool
	ExpectedDispatchAt    *time.Time
	ExpectedFulfillmentAt *time.Time
	SLAEvaluated          bool
	CompletedAt           *time.Time
}

// Dealer is referenced by id; identity details live in the identity service
type Dealer struct {
	ID                 uuid.UUID
	Name               string
	APIKeyHash         string
	IsActive           bool
	EligibleForDisable bool
	DisabledReason     *string
	DisabledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DealerStock is a dealer's availability for one SKU, used by the resolver
type DealerStock struct {
	DealerID     uuid.UUID
	SKU          string
	AvailableQty int
	Priority     int
	Margin       float64
	InStock      bool
}

// SLAProfile holds a dealer's contractual fulfillment windows. Read-only to
// this core; deadlines computed from it are cached on the assignment so later
// profile changes do not move already-agreed deadlines.
type SLAProfile struct {
	DealerID            uuid.UUID
	DispatchWindowStart string // "HH:MM", deployment time zone
	DispatchWindowEnd   string // "HH:MM", may be before start (wraps midnight)
	MaxDispatchTime     time.Duration
	ShippingTime        time.Duration
	DeliveryTime        time.Duration
}

// SLAViolation records one SLA breach for one assignment. Never deleted;
// only resolved/resolution notes may change after creation.
type SLAViolation struct {
	ID               uuid.UUID
	DealerID         uuid.UUID
	OrderID          uuid.UUID
	AssignmentID     uuid.UUID
	SKU              string
	ExpectedAt       time.Time
	ActualAt         time.Time
	ViolationMinutes int64
	Severity         ViolationSeverity
	Resolved         bool
	ResolutionNotes  *string
	ResolvedBy       *string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
}

// DealerViolationLedger is the per-dealer rolling aggregate derived from the
// violation records; it drives the escalation policy.
type DealerViolationLedger struct {
	DealerID        uuid.UUID
	Count           int64
	Unresolved      int64
	TotalMinutes    int64
	AverageMinutes  float64
	LastViolationAt *time.Time
}

// AuditLogEntry is an append-only record of one state-changing action
type AuditLogEntry struct {
	ID        uuid.UUID
	Action    AuditAction
	ActorID   string
	ActorRole Role
	OrderID   *uuid.UUID
	SKU       *string
	DealerID  *uuid.UUID
	Before    map[string]interface{} // JSONB, minimal diff
	After     map[string]interface{} // JSONB, minimal diff
	CreatedAt time.Time
}

// IdempotencyKey stores idempotency information for order acceptance
type IdempotencyKey struct {
	Key         string
	CustomerRef string
	OrderID     uuid.UUID
	RequestHash string
	CreatedAt   time.Time
}
