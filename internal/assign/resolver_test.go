package assign

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

func stock(qty, priority int, margin float64) *domain.DealerStock {
	return &domain.DealerStock{
		DealerID:     uuid.New(),
		SKU:          "BRK-100",
		AvailableQty: qty,
		Priority:     priority,
		Margin:       margin,
		InStock:      true,
	}
}

func lineItem(qty int) *domain.SkuLineItem {
	return &domain.SkuLineItem{
		ID:       uuid.New(),
		OrderID:  uuid.New(),
		SKU:      "BRK-100",
		Quantity: qty,
		Status:   domain.SkuStatusPending,
	}
}

func TestResolveSingleDealerCoversQuantity(t *testing.T) {
	r := NewResolver(zap.NewNop())
	candidates := []*domain.DealerStock{stock(10, 1, 0.1)}

	assignments, err := r.Resolve(lineItem(4), candidates, time.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	assert.Equal(t, 4, assignments[0].Quantity)
	assert.Equal(t, candidates[0].DealerID, assignments[0].DealerID)
	assert.Equal(t, domain.SkuStatusAssigned, assignments[0].Status)
}

func TestResolveSplitsAcrossDealers(t *testing.T) {
	r := NewResolver(zap.NewNop())
	first := stock(3, 1, 0.1)
	second := stock(5, 2, 0.2)

	assignments, err := r.Resolve(lineItem(6), []*domain.DealerStock{second, first}, time.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	// priority 1 drained first, remainder from priority 2
	assert.Equal(t, first.DealerID, assignments[0].DealerID)
	assert.Equal(t, 3, assignments[0].Quantity)
	assert.Equal(t, second.DealerID, assignments[1].DealerID)
	assert.Equal(t, 3, assignments[1].Quantity)

	total := 0
	for _, a := range assignments {
		total += a.Quantity
	}
	assert.Equal(t, 6, total)
}

func TestResolvePrefersHigherMarginWithinPriority(t *testing.T) {
	r := NewResolver(zap.NewNop())
	lowMargin := stock(10, 1, 0.05)
	highMargin := stock(10, 1, 0.30)

	assignments, err := r.Resolve(lineItem(2), []*domain.DealerStock{lowMargin, highMargin}, time.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	assert.Equal(t, highMargin.DealerID, assignments[0].DealerID)
}

func TestResolveInsufficientStock(t *testing.T) {
	r := NewResolver(zap.NewNop())
	candidates := []*domain.DealerStock{stock(2, 1, 0.1), stock(1, 2, 0.1)}

	assignments, err := r.Resolve(lineItem(5), candidates, time.Now())

	// never a partial assignment without the caller flagging the SKU
	assert.Nil(t, assignments)
	var insufficient *errors.ErrInsufficientStock
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Required)
	assert.Equal(t, 3, insufficient.Available)
}

func TestResolveIgnoresOutOfStockDealers(t *testing.T) {
	r := NewResolver(zap.NewNop())
	out := stock(10, 1, 0.5)
	out.InStock = false
	in := stock(10, 2, 0.1)

	assignments, err := r.Resolve(lineItem(5), []*domain.DealerStock{out, in}, time.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, in.DealerID, assignments[0].DealerID)
}
