package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/fulfillment/internal/domain"
)

func profile(windowStart, windowEnd string) *domain.SLAProfile {
	return &domain.SLAProfile{
		DispatchWindowStart: windowStart,
		DispatchWindowEnd:   windowEnd,
		MaxDispatchTime:     4 * time.Hour,
		ShippingTime:        24 * time.Hour,
		DeliveryTime:        48 * time.Hour,
	}
}

func TestComputeInsideWindow(t *testing.T) {
	loc := time.UTC
	assignedAt := time.Date(2026, 3, 10, 10, 0, 0, 0, loc)

	d, err := Compute(assignedAt, profile("09:00", "18:00"), loc)
	require.NoError(t, err)

	assert.Equal(t, assignedAt.Add(4*time.Hour), d.Dispatch)
	assert.Equal(t, assignedAt.Add(4*time.Hour+72*time.Hour), d.Fulfillment)
}

func TestComputeRollsForwardToNextOpening(t *testing.T) {
	loc := time.UTC
	// 20:30, window closed at 18:00, next opening tomorrow 09:00
	assignedAt := time.Date(2026, 3, 10, 20, 30, 0, 0, loc)

	d, err := Compute(assignedAt, profile("09:00", "18:00"), loc)
	require.NoError(t, err)

	opening := time.Date(2026, 3, 11, 9, 0, 0, 0, loc)
	assert.Equal(t, opening.Add(4*time.Hour), d.Dispatch)
}

func TestComputeMidnightWraparound(t *testing.T) {
	loc := time.UTC

	// 23:50 against a 00:00-08:00 window dispatches the same night,
	// ten minutes later, not 24h later
	assignedAt := time.Date(2026, 3, 10, 23, 50, 0, 0, loc)
	d, err := Compute(assignedAt, profile("00:00", "08:00"), loc)
	require.NoError(t, err)
	opening := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	assert.Equal(t, opening.Add(4*time.Hour), d.Dispatch)

	// 23:50 inside a window that wraps midnight
	d, err = Compute(assignedAt, profile("18:00", "06:00"), loc)
	require.NoError(t, err)
	assert.Equal(t, assignedAt.Add(4*time.Hour), d.Dispatch)

	// 10:00 against 18:00-06:00 waits for the evening opening
	assignedAt = time.Date(2026, 3, 10, 10, 0, 0, 0, loc)
	d, err = Compute(assignedAt, profile("18:00", "06:00"), loc)
	require.NoError(t, err)
	opening = time.Date(2026, 3, 10, 18, 0, 0, 0, loc)
	assert.Equal(t, opening.Add(4*time.Hour), d.Dispatch)
}

func TestComputeIsDeterministic(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Amman")
	require.NoError(t, err)
	assignedAt := time.Date(2026, 3, 10, 23, 50, 0, 0, loc)
	p := profile("08:00", "20:00")

	first, err := Compute(assignedAt, p, loc)
	require.NoError(t, err)
	second, err := Compute(assignedAt, p, loc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeRejectsMalformedWindow(t *testing.T) {
	_, err := Compute(time.Now(), profile("25:99", "08:00"), time.UTC)
	assert.Error(t, err)
}
