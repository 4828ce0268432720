package domain

import (
	"fmt"
	"strings"
)

// AggregateResult is the outcome of recomputing an order's status from its
// line items
type AggregateResult struct {
	Status        OrderStatus
	PartialReturn bool
	Reason        string
}

// AggregateStatus derives the order-level status from the statuses of all SKU
// line items. It is a pure function: callers persist the result and decide
// whether an audit entry is due by comparing against the stored status.
//
// Precedence, first match wins:
//  1. every SKU cancelled            -> Cancelled
//  2. every SKU delivered/returned,
//     at least one returned          -> Returned (partial if any delivered)
//  3. every SKU delivered            -> Delivered
//  4. every SKU at least shipped     -> Shipped
//  5. every SKU at least packed      -> Packed
//  6. mixed progress                 -> Partially Processed
//  7. uniform early state            -> Assigned / Pending
//
// Cancelled items do not hold back the rest of the order: rules 2-5 are
// evaluated over the non-cancelled items, so an order with one cancelled SKU
// can still complete. Rule 1 handles the fully-cancelled case.
func AggregateStatus(items []*SkuLineItem) AggregateResult {
	if len(items) == 0 {
		return AggregateResult{Status: OrderStatusPending, Reason: "no line items"}
	}

	counts := make(map[SkuStatus]int, len(items))
	for _, item := range items {
		counts[item.Status]++
	}
	reason := statusReason(counts, len(items))

	cancelled := counts[SkuStatusCancelled]
	if cancelled == len(items) {
		return AggregateResult{Status: OrderStatusCancelled, Reason: reason}
	}

	active := len(items) - cancelled
	delivered := counts[SkuStatusDelivered]
	returned := counts[SkuStatusReturned]

	if delivered+returned == active {
		if returned > 0 {
			return AggregateResult{
				Status:        OrderStatusReturned,
				PartialReturn: delivered > 0,
				Reason:        reason,
			}
		}
		return AggregateResult{Status: OrderStatusDelivered, Reason: reason}
	}

	if allActiveAtLeast(items, SkuStatusShipped) {
		return AggregateResult{Status: OrderStatusShipped, Reason: reason}
	}
	if allActiveAtLeast(items, SkuStatusPacked) {
		return AggregateResult{Status: OrderStatusPacked, Reason: reason}
	}

	// Uniform early states: all remaining active items pending, or all
	// assigned with nothing cancelled alongside them.
	if counts[SkuStatusAssigned] == active && cancelled == 0 {
		return AggregateResult{Status: OrderStatusAssigned, Reason: reason}
	}
	if counts[SkuStatusPending] == active {
		return AggregateResult{Status: OrderStatusPending, Reason: reason}
	}

	return AggregateResult{Status: OrderStatusPartiallyProcessed, Reason: reason}
}

func allActiveAtLeast(items []*SkuLineItem, stage SkuStatus) bool {
	for _, item := range items {
		if item.Status == SkuStatusCancelled {
			continue
		}
		if !item.Status.AtLeast(stage) {
			return false
		}
	}
	return true
}

// statusReasonOrder fixes the rendering order for the reason string, most
// progressed first
var statusReasonOrder = []SkuStatus{
	SkuStatusDelivered,
	SkuStatusReturned,
	SkuStatusShipped,
	SkuStatusPacked,
	SkuStatusAssigned,
	SkuStatusPending,
	SkuStatusCancelled,
}

// statusReason renders a human-readable breakdown, e.g.
// "2 of 3 SKUs delivered, 1 shipped"
func statusReason(counts map[SkuStatus]int, total int) string {
	var b strings.Builder
	first := true
	for _, status := range statusReasonOrder {
		n := counts[status]
		if n == 0 {
			continue
		}
		label := strings.ToLower(string(status))
		if first {
			fmt.Fprintf(&b, "%d of %d SKUs %s", n, total, label)
			first = false
			continue
		}
		fmt.Fprintf(&b, ", %d %s", n, label)
	}
	return b.String()
}
