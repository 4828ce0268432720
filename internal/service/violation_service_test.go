package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

// deadline for seedDealer's profile is assignedAt + 50h
const slaLeadTime = 50 * time.Hour

func (env *testEnv) violationsFor(t *testing.T, dealer *domain.Dealer) []*domain.SLAViolation {
	t.Helper()
	id := dealer.ID
	list, _, err := env.repos.Violation.List(context.Background(), repository.ViolationFilter{DealerID: &id})
	require.NoError(t, err)
	return list
}

func TestReactiveDetectionOnTimeDelivery(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	order := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})

	_, err := env.orders.TransitionSKU(context.Background(), order.ID, "BRK-100",
		domain.SkuStatusDelivered, adminActor, testBase.Add(5*time.Hour))
	require.NoError(t, err)

	assert.Empty(t, env.violationsFor(t, dealer))
	a, err := env.repos.Assignment.GetByID(context.Background(), order.Items[0].Assignments[0].ID)
	require.NoError(t, err)
	assert.True(t, a.SLAEvaluated)
}

func TestReactiveDetectionLateDelivery(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	order := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})

	deliveredAt := testBase.Add(slaLeadTime + 90*time.Minute)
	_, err := env.orders.TransitionSKU(context.Background(), order.ID, "BRK-100",
		domain.SkuStatusDelivered, adminActor, deliveredAt)
	require.NoError(t, err)

	violations := env.violationsFor(t, dealer)
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, int64(90), v.ViolationMinutes)
	assert.Equal(t, domain.SeverityMedium, v.Severity)
	assert.Equal(t, "BRK-100", v.SKU)
	assert.Equal(t, order.ID, v.OrderID)
	assert.False(t, v.Resolved)

	ledger, err := env.repos.Ledger.Snapshot(context.Background(), dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ledger.Count)
	assert.Equal(t, int64(1), ledger.Unresolved)
	assert.Equal(t, int64(90), ledger.TotalMinutes)

	assert.Equal(t, 1, env.store.auditCount(domain.AuditActionViolationRecorded))
	assert.Equal(t, 1, env.publisher.count(events.SubjectViolationRecorded))
}

func TestProactiveSweepRecordsOverdue(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})

	// one hour past the fulfillment deadline, no terminal update recorded
	fixNow(env, testBase.Add(slaLeadTime+time.Hour))
	result, err := env.violations.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Violations)
	assert.Equal(t, 0, result.Skipped)

	violations := env.violationsFor(t, dealer)
	require.Len(t, violations, 1)
	assert.Equal(t, int64(60), violations[0].ViolationMinutes)
	assert.Equal(t, domain.SeverityMedium, violations[0].Severity)
}

func TestDetectionIsExactlyOnceAcrossPaths(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	order := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})
	ctx := context.Background()

	// sweep claims the assignment first
	fixNow(env, testBase.Add(slaLeadTime+time.Hour))
	result, err := env.violations.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Violations)

	// the late delivery arrives afterwards; the claim is already taken
	_, err = env.orders.TransitionSKU(ctx, order.ID, "BRK-100",
		domain.SkuStatusDelivered, adminActor, testBase.Add(slaLeadTime+2*time.Hour))
	require.NoError(t, err)

	assert.Len(t, env.violationsFor(t, dealer), 1)

	// and a rerun of the sweep finds nothing left to claim
	repeat, err := env.violations.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repeat.Scanned)
}

func TestSweepExcludesUnknownSLA(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("No Profile GmbH", "BRK-100")
	delete(env.store.profiles, dealer.ID)
	acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})

	fixNow(env, testBase.Add(30*24*time.Hour))
	result, err := env.violations.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Empty(t, env.violationsFor(t, dealer))
}

func TestSweepSeverityGrowsWithLateness(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})

	// 30h past the deadline lands in the critical bucket
	fixNow(env, testBase.Add(slaLeadTime+30*time.Hour))
	_, err := env.violations.Sweep(context.Background())
	require.NoError(t, err)

	violations := env.violationsFor(t, dealer)
	require.Len(t, violations, 1)
	assert.Equal(t, int64(1800), violations[0].ViolationMinutes)
	assert.Equal(t, domain.SeverityCritical, violations[0].Severity)
}

func TestResolveViolation(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	order := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})
	ctx := context.Background()

	_, err := env.orders.TransitionSKU(ctx, order.ID, "BRK-100",
		domain.SkuStatusDelivered, adminActor, testBase.Add(slaLeadTime+90*time.Minute))
	require.NoError(t, err)
	violation := env.violationsFor(t, dealer)[0]

	resolved, err := env.violations.ResolveViolation(ctx, violation.ID.String(), "courier strike, waived", adminActor)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "courier strike, waived", *resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, adminActor.ID, *resolved.ResolvedBy)

	ledger, err := env.repos.Ledger.Snapshot(ctx, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ledger.Count)
	assert.Equal(t, int64(0), ledger.Unresolved)
	assert.Equal(t, 1, env.store.auditCount(domain.AuditActionViolationResolved))

	// replaying the resolution changes nothing
	again, err := env.violations.ResolveViolation(ctx, violation.ID.String(), "second note", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "courier strike, waived", *again.ResolutionNotes)
	assert.Equal(t, 1, env.store.auditCount(domain.AuditActionViolationResolved))

	stillZero, err := env.repos.Ledger.Snapshot(ctx, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stillZero.Unresolved)
}

func TestResolveViolationRejectsBadID(t *testing.T) {
	env := newTestEnv()
	_, err := env.violations.ResolveViolation(context.Background(), "not-a-uuid", "notes", adminActor)
	var vErr *errors.ErrValidation
	require.ErrorAs(t, err, &vErr)
}

func TestListViolationsSummary(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100", "FLT-200")
	order := acceptOrder(t, env,
		OrderItemInput{SKU: "BRK-100", Quantity: 1},
		OrderItemInput{SKU: "FLT-200", Quantity: 1},
	)
	ctx := context.Background()

	for _, sku := range []string{"BRK-100", "FLT-200"} {
		_, err := env.orders.TransitionSKU(ctx, order.ID, sku,
			domain.SkuStatusDelivered, adminActor, testBase.Add(slaLeadTime+time.Hour))
		require.NoError(t, err)
	}

	id := dealer.ID
	list, summary, err := env.violations.ListViolations(ctx, repository.ViolationFilter{DealerID: &id})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), summary.Count)
	assert.Equal(t, int64(2), summary.UnresolvedCount)
	assert.Equal(t, int64(120), summary.TotalMinutes)
	assert.InDelta(t, 60.0, summary.AverageMinutes, 0.01)
}

func TestReactiveDetectionLateReturn(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	order := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})
	ctx := context.Background()

	returnedAt := testBase.Add(slaLeadTime + 2*time.Hour)
	_, err := env.orders.TransitionSKU(ctx, order.ID, "BRK-100",
		domain.SkuStatusReturned, adminActor, returnedAt)
	require.NoError(t, err)

	violations := env.violationsFor(t, dealer)
	require.Len(t, violations, 1)
	assert.Equal(t, int64(120), violations[0].ViolationMinutes)
	assert.Equal(t, domain.SeverityMedium, violations[0].Severity)

	// the terminal update already claimed the assignment
	fixNow(env, returnedAt.Add(time.Hour))
	result, err := env.violations.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Len(t, env.violationsFor(t, dealer), 1)
}

func TestReactiveDetectionLateCancelByDealer(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100")
	onTime := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})
	late := acceptOrder(t, env, OrderItemInput{SKU: "BRK-100", Quantity: 1})
	ctx := context.Background()

	// cancelling before the deadline is not a breach
	_, err := env.orders.TransitionSKU(ctx, onTime.ID, "BRK-100",
		domain.SkuStatusCancelled, dealerActor(dealer), testBase.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, env.violationsFor(t, dealer))

	// a cancel that lands past the deadline still counts against the dealer
	cancelledAt := testBase.Add(slaLeadTime + time.Hour)
	_, err = env.orders.TransitionSKU(ctx, late.ID, "BRK-100",
		domain.SkuStatusCancelled, dealerActor(dealer), cancelledAt)
	require.NoError(t, err)

	violations := env.violationsFor(t, dealer)
	require.Len(t, violations, 1)
	assert.Equal(t, int64(60), violations[0].ViolationMinutes)

	fixNow(env, cancelledAt.Add(time.Hour))
	result, err := env.violations.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}

func TestResolveViolationConcurrentDuplicates(t *testing.T) {
	env := newTestEnv()
	fixNow(env, testBase)
	dealer := env.seedDealer("Amman Parts Co", "BRK-100", "FLT-200")
	order := acceptOrder(t, env,
		OrderItemInput{SKU: "BRK-100", Quantity: 1},
		OrderItemInput{SKU: "FLT-200", Quantity: 1},
	)
	ctx := context.Background()

	for _, sku := range []string{"BRK-100", "FLT-200"} {
		_, err := env.orders.TransitionSKU(ctx, order.ID, sku,
			domain.SkuStatusDelivered, adminActor, testBase.Add(slaLeadTime+time.Hour))
		require.NoError(t, err)
	}
	target := env.violationsFor(t, dealer)[0]

	// duplicate resolutions race for the same row; only the one that
	// flips it may release the unresolved counter
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.violations.ResolveViolation(ctx, target.ID.String(), "waived", adminActor)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ledger, err := env.repos.Ledger.Snapshot(ctx, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ledger.Count)
	assert.Equal(t, int64(1), ledger.Unresolved)
	assert.Equal(t, 1, env.store.auditCount(domain.AuditActionViolationResolved))
}
