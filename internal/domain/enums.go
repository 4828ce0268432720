package domain

import "strings"

// SkuStatus represents the fulfillment status of a single SKU line item
type SkuStatus string

const (
	SkuStatusPending   SkuStatus = "PENDING"
	SkuStatusAssigned  SkuStatus = "ASSIGNED"
	SkuStatusPacked    SkuStatus = "PACKED"
	SkuStatusShipped   SkuStatus = "SHIPPED"
	SkuStatusDelivered SkuStatus = "DELIVERED"
	SkuStatusCancelled SkuStatus = "CANCELLED"
	SkuStatusReturned  SkuStatus = "RETURNED"
)

func (s SkuStatus) String() string { return string(s) }

// IsValid checks if the SKU status is a known value
func (s SkuStatus) IsValid() bool {
	switch s {
	case SkuStatusPending, SkuStatusAssigned, SkuStatusPacked,
		SkuStatusShipped, SkuStatusDelivered, SkuStatusCancelled, SkuStatusReturned:
		return true
	default:
		return false
	}
}

// Rank returns the position of a status along the progress chain.
// Cancelled and Returned are branches, not progress, and rank -1.
func (s SkuStatus) Rank() int {
	switch s {
	case SkuStatusPending:
		return 0
	case SkuStatusAssigned:
		return 1
	case SkuStatusPacked:
		return 2
	case SkuStatusShipped:
		return 3
	case SkuStatusDelivered:
		return 4
	default:
		return -1
	}
}

// IsTerminal reports whether no further progress transition is possible
func (s SkuStatus) IsTerminal() bool {
	return s == SkuStatusDelivered || s == SkuStatusCancelled || s == SkuStatusReturned
}

// CanTransitionTo checks if a SKU status transition is valid. Progress moves
// forward only (skipping intermediate states is allowed, couriers often report
// delivery without a shipped event). Cancel is reachable from any non-terminal
// state; Return is reachable from any state except Cancelled and Returned,
// including Delivered.
func (s SkuStatus) CanTransitionTo(newStatus SkuStatus) bool {
	if !newStatus.IsValid() || s == newStatus {
		return false
	}
	switch newStatus {
	case SkuStatusCancelled:
		return !s.IsTerminal()
	case SkuStatusReturned:
		return s != SkuStatusCancelled && s != SkuStatusReturned
	default:
		if s == SkuStatusCancelled || s == SkuStatusReturned {
			return false
		}
		return newStatus.Rank() > s.Rank()
	}
}

// AtLeast reports whether the status has progressed to the given stage or
// further. Returned counts as having passed every progress stage since the
// item was delivered before coming back.
func (s SkuStatus) AtLeast(stage SkuStatus) bool {
	if s == SkuStatusReturned {
		return true
	}
	if s == SkuStatusCancelled {
		return false
	}
	return s.Rank() >= stage.Rank()
}

// OrderStatus represents the aggregate status of an order
type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "PENDING"
	OrderStatusAssigned           OrderStatus = "ASSIGNED"
	OrderStatusPartiallyProcessed OrderStatus = "PARTIALLY_PROCESSED"
	OrderStatusPacked             OrderStatus = "PACKED"
	OrderStatusShipped            OrderStatus = "SHIPPED"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusReturned           OrderStatus = "RETURNED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
)

func (s OrderStatus) String() string { return string(s) }

// IsValid checks if the order status is a known value
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAssigned, OrderStatusPartiallyProcessed,
		OrderStatusPacked, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusReturned, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ViolationSeverity buckets an SLA breach by how late the fulfillment was
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "LOW"
	SeverityMedium   ViolationSeverity = "MEDIUM"
	SeverityHigh     ViolationSeverity = "HIGH"
	SeverityCritical ViolationSeverity = "CRITICAL"
)

// SeverityForMinutes maps a violation duration to its severity bucket
func SeverityForMinutes(minutes int64) ViolationSeverity {
	switch {
	case minutes < 60:
		return SeverityLow
	case minutes < 240:
		return SeverityMedium
	case minutes < 1440:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Role is the canonical actor role. Free-form role strings from the identity
// service are normalized exactly once, at the system boundary.
type Role string

const (
	RoleDealer     Role = "DEALER"
	RoleCourier    Role = "COURIER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleUnknown    Role = "UNKNOWN"
)

// ParseRole normalizes an external role string to the canonical enum
func ParseRole(raw string) Role {
	normalized := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(raw)))
	switch normalized {
	case "DEALER", "SUPPLIER":
		return RoleDealer
	case "COURIER", "CARRIER":
		return RoleCourier
	case "ADMIN":
		return RoleAdmin
	case "SUPER_ADMIN", "SUPERADMIN":
		return RoleSuperAdmin
	default:
		return RoleUnknown
	}
}

// IsAdmin reports whether the role carries administrative privileges
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// AuditAction identifies the kind of state change an audit entry records
type AuditAction string

const (
	AuditActionOrderCreated      AuditAction = "order_created"
	AuditActionStatusChange      AuditAction = "status_change"
	AuditActionAdminOverride     AuditAction = "admin_override"
	AuditActionTrackingUpdate    AuditAction = "tracking_update"
	AuditActionReassignment      AuditAction = "reassignment"
	AuditActionViolationRecorded AuditAction = "violation_recorded"
	AuditActionViolationResolved AuditAction = "violation_resolved"
	AuditActionDealerFlagged     AuditAction = "dealer_flagged"
	AuditActionDealerDisabled    AuditAction = "dealer_disabled"
)
