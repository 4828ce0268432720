package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/fulfillment/internal/domain"
)

// OrderRepository persists the order aggregate. Aggregate writes carry the
// audit entries for the same mutation so status and audit history commit in
// one transaction.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order, entries []*domain.AuditLogEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error)
	// UpdateAggregate writes the order, its line items, its assignments and
	// the audit entries atomically, guarded by an optimistic version check.
	// Returns *errors.ErrVersionConflict when expectedVersion is stale.
	UpdateAggregate(ctx context.Context, order *domain.Order, expectedVersion int64, entries []*domain.AuditLogEntry) error
}

// AssignmentRepository serves the violation detector's sweep and the
// exactly-once evaluation marker
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DealerAssignment, error)
	// ClaimEvaluation atomically marks an assignment evaluated. It returns
	// true only for the single caller that flips the marker; reactive and
	// proactive detection both go through it so at most one violation is
	// ever recorded per assignment.
	ClaimEvaluation(ctx context.Context, id uuid.UUID) (bool, error)
	// ListOverdue returns open, unevaluated, SLA-known assignments whose
	// expected fulfillment deadline has passed without a terminal update.
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*domain.DealerAssignment, error)
	// Reassign closes the old assignment and opens the replacement in one
	// transaction; the closed record is kept for SLA history.
	Reassign(ctx context.Context, oldID uuid.UUID, replacement *domain.DealerAssignment) error
}

// DealerRepository reads dealer identity, stock and SLA configuration and
// writes the escalation flags
type DealerRepository interface {
	Create(ctx context.Context, dealer *domain.Dealer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Dealer, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Dealer, error)
	ListStock(ctx context.Context, sku string) ([]*domain.DealerStock, error)
	GetSLAProfile(ctx context.Context, dealerID uuid.UUID) (*domain.SLAProfile, error)
	SaveSLAProfile(ctx context.Context, profile *domain.SLAProfile) error
	SetEligibleForDisable(ctx context.Context, dealerID uuid.UUID, eligible bool) error
	Disable(ctx context.Context, dealerID uuid.UUID, reason string) error
}

// ViolationFilter narrows a violation query
type ViolationFilter struct {
	DealerID  *uuid.UUID
	Resolved  *bool
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// ViolationSummary aggregates the full filtered set, not just the page
type ViolationSummary struct {
	Count           int64
	TotalMinutes    int64
	AverageMinutes  float64
	ResolvedCount   int64
	UnresolvedCount int64
}

// ViolationRepository persists the append-only SLA violation records
type ViolationRepository interface {
	Create(ctx context.Context, v *domain.SLAViolation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SLAViolation, error)
	// Resolve flips the violation to resolved. The bool reports whether this
	// call performed the flip; a replay or a concurrent loser gets false with
	// the already-resolved record.
	Resolve(ctx context.Context, id uuid.UUID, notes, resolvedBy string) (*domain.SLAViolation, bool, error)
	List(ctx context.Context, filter ViolationFilter) ([]*domain.SLAViolation, *ViolationSummary, error)
}

// AuditRepository appends standalone audit entries for mutations that do not
// ride an aggregate transaction (violations, dealer flags/disables)
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*domain.AuditLogEntry, error)
}

// LedgerRepository holds the per-dealer violation counters. Increments must
// be atomic at the store, not read-modify-write in the application: the
// ledger is the one resource many concurrent orders contend on.
type LedgerRepository interface {
	Record(ctx context.Context, dealerID uuid.UUID, minutes int64, at time.Time) (*domain.DealerViolationLedger, error)
	MarkResolved(ctx context.Context, dealerID uuid.UUID) error
	Snapshot(ctx context.Context, dealerID uuid.UUID) (*domain.DealerViolationLedger, error)
	AcquireSweepLease(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLease(ctx context.Context) error
}

// IdempotencyRepository stores idempotency keys for order acceptance
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, k *domain.IdempotencyKey) error
}

// Repositories bundles every repository for constructor injection
type Repositories struct {
	Order       OrderRepository
	Assignment  AssignmentRepository
	Dealer      DealerRepository
	Violation   ViolationRepository
	Audit       AuditRepository
	Ledger      LedgerRepository
	Idempotency IdempotencyRepository
}
