package assign

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

// Resolver selects dealers for SKU line items at order-acceptance time,
// splitting quantity across dealers when a single dealer cannot cover it
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a new dealer assignment resolver
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve picks assignments for a SKU from the candidate stock rows. Candidates
// are ranked by explicit priority, then margin, then available quantity; the
// returned assignment quantities always sum to exactly the required quantity.
// When the candidates cannot cover it in full, no assignments are returned and
// the caller flags the SKU unfulfillable: we never assign less than the ordered
// quantity without flagging it.
func (r *Resolver) Resolve(item *domain.SkuLineItem, candidates []*domain.DealerStock, assignedAt time.Time) ([]*domain.DealerAssignment, error) {
	usable := make([]*domain.DealerStock, 0, len(candidates))
	available := 0
	for _, c := range candidates {
		if !c.InStock || c.AvailableQty <= 0 {
			continue
		}
		usable = append(usable, c)
		available += c.AvailableQty
	}

	if available < item.Quantity {
		r.logger.Warn("SKU unfulfillable",
			zap.String("sku", item.SKU),
			zap.Int("required", item.Quantity),
			zap.Int("available", available),
		)
		return nil, &errors.ErrInsufficientStock{
			SKU:       item.SKU,
			Required:  item.Quantity,
			Available: available,
		}
	}

	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Priority != usable[j].Priority {
			return usable[i].Priority < usable[j].Priority
		}
		if usable[i].Margin != usable[j].Margin {
			return usable[i].Margin > usable[j].Margin
		}
		return usable[i].AvailableQty > usable[j].AvailableQty
	})

	assignments := make([]*domain.DealerAssignment, 0, 1)
	remaining := item.Quantity
	for _, stock := range usable {
		if remaining == 0 {
			break
		}
		qty := stock.AvailableQty
		if qty > remaining {
			qty = remaining
		}
		assignments = append(assignments, &domain.DealerAssignment{
			ID:            uuid.New(),
			OrderID:       item.OrderID,
			SkuLineItemID: item.ID,
			SKU:           item.SKU,
			DealerID:      stock.DealerID,
			Quantity:      qty,
			Margin:        stock.Margin,
			Priority:      stock.Priority,
			InStock:       stock.InStock,
			Status:        domain.SkuStatusAssigned,
			AssignedAt:    assignedAt,
		})
		remaining -= qty
	}

	return assignments, nil
}
