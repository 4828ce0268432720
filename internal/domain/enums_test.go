package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkuStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from SkuStatus
		to   SkuStatus
		ok   bool
	}{
		{SkuStatusPending, SkuStatusAssigned, true},
		{SkuStatusAssigned, SkuStatusPacked, true},
		{SkuStatusPacked, SkuStatusShipped, true},
		{SkuStatusShipped, SkuStatusDelivered, true},
		{SkuStatusPacked, SkuStatusDelivered, true}, // forward jump
		{SkuStatusDelivered, SkuStatusPacked, false},
		{SkuStatusShipped, SkuStatusPacked, false},
		{SkuStatusDelivered, SkuStatusDelivered, false}, // no-op, not a transition
		{SkuStatusPacked, SkuStatusCancelled, true},
		{SkuStatusDelivered, SkuStatusCancelled, false},
		{SkuStatusDelivered, SkuStatusReturned, true},
		{SkuStatusShipped, SkuStatusReturned, true},
		{SkuStatusCancelled, SkuStatusReturned, false},
		{SkuStatusReturned, SkuStatusDelivered, false},
		{SkuStatusCancelled, SkuStatusPacked, false},
		{SkuStatusPacked, SkuStatus("BOGUS"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

// No sequence of legal transitions may move a SKU backward except through
// the explicit Cancel/Return branches.
func TestSkuStatusMonotonicity(t *testing.T) {
	progress := []SkuStatus{
		SkuStatusPending, SkuStatusAssigned, SkuStatusPacked,
		SkuStatusShipped, SkuStatusDelivered,
	}
	for i, from := range progress {
		for j, to := range progress {
			if j <= i {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s must be rejected", from, to)
			} else {
				assert.True(t, from.CanTransitionTo(to), "%s -> %s must be allowed", from, to)
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleSuperAdmin, ParseRole("Super-admin"))
	assert.Equal(t, RoleSuperAdmin, ParseRole("Super Admin"))
	assert.Equal(t, RoleSuperAdmin, ParseRole("SUPERADMIN"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleDealer, ParseRole("supplier"))
	assert.Equal(t, RoleCourier, ParseRole(" carrier "))
	assert.Equal(t, RoleUnknown, ParseRole("intern"))
}

func TestSeverityForMinutes(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityForMinutes(0))
	assert.Equal(t, SeverityLow, SeverityForMinutes(59))
	assert.Equal(t, SeverityMedium, SeverityForMinutes(60))
	assert.Equal(t, SeverityMedium, SeverityForMinutes(239))
	assert.Equal(t, SeverityHigh, SeverityForMinutes(240))
	assert.Equal(t, SeverityHigh, SeverityForMinutes(1439))
	assert.Equal(t, SeverityCritical, SeverityForMinutes(1440))
}
