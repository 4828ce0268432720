package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/assign"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

// fakeStore is a single in-memory backing store shared by the fake
// repositories, mirroring the transactional behavior the postgres and redis
// implementations provide: version-checked aggregate writes, atomic
// evaluation claims and atomic ledger increments.
type fakeStore struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*domain.Order
	assignments map[uuid.UUID]*domain.DealerAssignment
	dealers     map[uuid.UUID]*domain.Dealer
	stock       map[string][]*domain.DealerStock
	profiles    map[uuid.UUID]*domain.SLAProfile
	violations  map[uuid.UUID]*domain.SLAViolation
	audit       []*domain.AuditLogEntry
	ledgers     map[uuid.UUID]*domain.DealerViolationLedger
	idemKeys    map[string]*domain.IdempotencyKey
	leaseHeld   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:      make(map[uuid.UUID]*domain.Order),
		assignments: make(map[uuid.UUID]*domain.DealerAssignment),
		dealers:     make(map[uuid.UUID]*domain.Dealer),
		stock:       make(map[string][]*domain.DealerStock),
		profiles:    make(map[uuid.UUID]*domain.SLAProfile),
		violations:  make(map[uuid.UUID]*domain.SLAViolation),
		ledgers:     make(map[uuid.UUID]*domain.DealerViolationLedger),
		idemKeys:    make(map[string]*domain.IdempotencyKey),
	}
}

func (s *fakeStore) repositories() *repository.Repositories {
	return &repository.Repositories{
		Order:       &fakeOrderRepo{s},
		Assignment:  &fakeAssignmentRepo{s},
		Dealer:      &fakeDealerRepo{s},
		Violation:   &fakeViolationRepo{s},
		Audit:       &fakeAuditRepo{s},
		Ledger:      &fakeLedgerRepo{s},
		Idempotency: &fakeIdempotencyRepo{s},
	}
}

func (s *fakeStore) auditActions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]domain.AuditAction, len(s.audit))
	for i, e := range s.audit {
		actions[i] = e.Action
	}
	return actions
}

func (s *fakeStore) auditCount(action domain.AuditAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.audit {
		if e.Action == action {
			n++
		}
	}
	return n
}

func cloneOrder(o *domain.Order) *domain.Order {
	clone := *o
	clone.Items = make([]*domain.SkuLineItem, len(o.Items))
	for i, item := range o.Items {
		itemClone := *item
		itemClone.Assignments = make([]*domain.DealerAssignment, len(item.Assignments))
		for j, a := range item.Assignments {
			aClone := *a
			itemClone.Assignments[j] = &aClone
		}
		clone.Items[i] = &itemClone
	}
	return &clone
}

type fakeOrderRepo struct{ s *fakeStore }

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order, entries []*domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order.Version = 1
	r.s.orders[order.ID] = cloneOrder(order)
	r.syncAssignmentsLocked(order)
	r.s.audit = append(r.s.audit, entries...)
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	clone := cloneOrder(order)
	// assignments are read back from the assignment store, like the real
	// repository reads them from the table, so reassignments are visible
	for _, item := range clone.Items {
		var fresh []*domain.DealerAssignment
		for _, a := range r.s.assignments {
			if a.SkuLineItemID == item.ID {
				aClone := *a
				fresh = append(fresh, &aClone)
			}
		}
		sort.Slice(fresh, func(i, j int) bool {
			if !fresh[i].AssignedAt.Equal(fresh[j].AssignedAt) {
				return fresh[i].AssignedAt.Before(fresh[j].AssignedAt)
			}
			if fresh[i].Priority != fresh[j].Priority {
				return fresh[i].Priority < fresh[j].Priority
			}
			return fresh[i].ID.String() < fresh[j].ID.String()
		})
		item.Assignments = fresh
	}
	return clone, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.s.orders {
		if status == nil || o.Status == *status {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateAggregate(ctx context.Context, order *domain.Order, expectedVersion int64, entries []*domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return &errors.ErrNotFound{Resource: "order", ID: order.ID.String()}
	}
	if stored.Version != expectedVersion {
		return &errors.ErrVersionConflict{Resource: "order", ID: order.ID.String()}
	}
	order.Version = expectedVersion + 1
	r.s.orders[order.ID] = cloneOrder(order)
	r.syncAssignmentsLocked(order)
	r.s.audit = append(r.s.audit, entries...)
	return nil
}

func (r *fakeOrderRepo) syncAssignmentsLocked(order *domain.Order) {
	for _, item := range order.Items {
		for _, a := range item.Assignments {
			stored, ok := r.s.assignments[a.ID]
			if !ok {
				clone := *a
				r.s.assignments[a.ID] = &clone
				continue
			}
			// the evaluation marker is owned by ClaimEvaluation
			evaluated := stored.SLAEvaluated
			clone := *a
			clone.SLAEvaluated = evaluated
			r.s.assignments[a.ID] = &clone
		}
	}
}

type fakeAssignmentRepo struct{ s *fakeStore }

func (r *fakeAssignmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DealerAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "assignment", ID: id.String()}
	}
	clone := *a
	return &clone, nil
}

func (r *fakeAssignmentRepo) ClaimEvaluation(ctx context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return false, &errors.ErrNotFound{Resource: "assignment", ID: id.String()}
	}
	if a.SLAEvaluated {
		return false, nil
	}
	a.SLAEvaluated = true
	return true, nil
}

func (r *fakeAssignmentRepo) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*domain.DealerAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.DealerAssignment
	for _, a := range r.s.assignments {
		if a.SLAEvaluated || a.SLAUnknown || a.ClosedAt != nil || a.CompletedAt != nil {
			continue
		}
		if a.ExpectedFulfillmentAt != nil && a.ExpectedFulfillmentAt.Before(asOf) {
			clone := *a
			out = append(out, &clone)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) Reassign(ctx context.Context, oldID uuid.UUID, replacement *domain.DealerAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.assignments[oldID]
	if !ok || old.ClosedAt != nil {
		return &errors.ErrNotFound{Resource: "open assignment", ID: oldID.String()}
	}
	now := time.Now()
	old.ClosedAt = &now
	old.ReplacedBy = &replacement.ID
	clone := *replacement
	r.s.assignments[replacement.ID] = &clone
	return nil
}

type fakeDealerRepo struct{ s *fakeStore }

func (r *fakeDealerRepo) Create(ctx context.Context, dealer *domain.Dealer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	clone := *dealer
	r.s.dealers[dealer.ID] = &clone
	return nil
}

func (r *fakeDealerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dealer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dealer, ok := r.s.dealers[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "dealer", ID: id.String()}
	}
	clone := *dealer
	return &clone, nil
}

func (r *fakeDealerRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Dealer, error) {
	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *fakeDealerRepo) ListStock(ctx context.Context, sku string) ([]*domain.DealerStock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.stock[sku], nil
}

func (r *fakeDealerRepo) GetSLAProfile(ctx context.Context, dealerID uuid.UUID) (*domain.SLAProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	profile, ok := r.s.profiles[dealerID]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "SLA profile", ID: dealerID.String()}
	}
	clone := *profile
	return &clone, nil
}

func (r *fakeDealerRepo) SaveSLAProfile(ctx context.Context, profile *domain.SLAProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	clone := *profile
	r.s.profiles[profile.DealerID] = &clone
	return nil
}

func (r *fakeDealerRepo) SetEligibleForDisable(ctx context.Context, dealerID uuid.UUID, eligible bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dealer, ok := r.s.dealers[dealerID]
	if !ok {
		return &errors.ErrNotFound{Resource: "dealer", ID: dealerID.String()}
	}
	dealer.EligibleForDisable = eligible
	return nil
}

func (r *fakeDealerRepo) Disable(ctx context.Context, dealerID uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dealer, ok := r.s.dealers[dealerID]
	if !ok {
		return &errors.ErrNotFound{Resource: "dealer", ID: dealerID.String()}
	}
	now := time.Now()
	dealer.IsActive = false
	dealer.DisabledReason = &reason
	dealer.DisabledAt = &now
	return nil
}

type fakeViolationRepo struct{ s *fakeStore }

func (r *fakeViolationRepo) Create(ctx context.Context, v *domain.SLAViolation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	clone := *v
	r.s.violations[v.ID] = &clone
	return nil
}

func (r *fakeViolationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SLAViolation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.violations[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "SLA violation", ID: id.String()}
	}
	clone := *v
	return &clone, nil
}

func (r *fakeViolationRepo) Resolve(ctx context.Context, id uuid.UUID, notes, resolvedBy string) (*domain.SLAViolation, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.violations[id]
	if !ok {
		return nil, false, &errors.ErrNotFound{Resource: "SLA violation", ID: id.String()}
	}
	if v.Resolved {
		clone := *v
		return &clone, false, nil
	}
	now := time.Now()
	v.Resolved = true
	v.ResolutionNotes = &notes
	v.ResolvedBy = &resolvedBy
	v.ResolvedAt = &now
	clone := *v
	return &clone, true, nil
}

func (r *fakeViolationRepo) List(ctx context.Context, filter repository.ViolationFilter) ([]*domain.SLAViolation, *repository.ViolationSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.SLAViolation
	summary := &repository.ViolationSummary{}
	for _, v := range r.s.violations {
		if filter.DealerID != nil && v.DealerID != *filter.DealerID {
			continue
		}
		if filter.Resolved != nil && v.Resolved != *filter.Resolved {
			continue
		}
		clone := *v
		out = append(out, &clone)
		summary.Count++
		summary.TotalMinutes += v.ViolationMinutes
		if v.Resolved {
			summary.ResolvedCount++
		} else {
			summary.UnresolvedCount++
		}
	}
	if summary.Count > 0 {
		summary.AverageMinutes = float64(summary.TotalMinutes) / float64(summary.Count)
	}
	return out, summary, nil
}

type fakeAuditRepo struct{ s *fakeStore }

func (r *fakeAuditRepo) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, entry)
	return nil
}

func (r *fakeAuditRepo) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*domain.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.AuditLogEntry
	for _, e := range r.s.audit {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeLedgerRepo struct{ s *fakeStore }

func (r *fakeLedgerRepo) Record(ctx context.Context, dealerID uuid.UUID, minutes int64, at time.Time) (*domain.DealerViolationLedger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ledger, ok := r.s.ledgers[dealerID]
	if !ok {
		ledger = &domain.DealerViolationLedger{DealerID: dealerID}
		r.s.ledgers[dealerID] = ledger
	}
	ledger.Count++
	ledger.Unresolved++
	ledger.TotalMinutes += minutes
	ledger.AverageMinutes = float64(ledger.TotalMinutes) / float64(ledger.Count)
	last := at
	ledger.LastViolationAt = &last
	clone := *ledger
	return &clone, nil
}

func (r *fakeLedgerRepo) MarkResolved(ctx context.Context, dealerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ledger, ok := r.s.ledgers[dealerID]; ok && ledger.Unresolved > 0 {
		ledger.Unresolved--
	}
	return nil
}

func (r *fakeLedgerRepo) Snapshot(ctx context.Context, dealerID uuid.UUID) (*domain.DealerViolationLedger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ledger, ok := r.s.ledgers[dealerID]
	if !ok {
		return &domain.DealerViolationLedger{DealerID: dealerID}, nil
	}
	clone := *ledger
	return &clone, nil
}

func (r *fakeLedgerRepo) AcquireSweepLease(ctx context.Context, ttl time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.leaseHeld {
		return false, nil
	}
	r.s.leaseHeld = true
	return true, nil
}

func (r *fakeLedgerRepo) ReleaseSweepLease(ctx context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.leaseHeld = false
	return nil
}

type fakeIdempotencyRepo struct{ s *fakeStore }

func (r *fakeIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.idemKeys[key]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	clone := *k
	return &clone, nil
}

func (r *fakeIdempotencyRepo) Create(ctx context.Context, k *domain.IdempotencyKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.idemKeys[k.Key]; exists {
		return nil
	}
	clone := *k
	r.s.idemKeys[k.Key] = &clone
	return nil
}

// recordingPublisher captures published subjects for assertions
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// testEnv wires the full service stack over the fake store
type testEnv struct {
	store      *fakeStore
	repos      *repository.Repositories
	orders     *OrderService
	violations *ViolationService
	escalation *EscalationService
	publisher  *recordingPublisher
}

const testThreshold = 3

func newTestEnv() *testEnv {
	store := newFakeStore()
	repos := store.repositories()
	publisher := &recordingPublisher{}
	logger := zap.NewNop()

	escalation := NewEscalationService(repos, publisher, testThreshold, logger)
	violations := NewViolationService(repos, escalation, publisher, 100, logger)
	orders := NewOrderService(repos, assign.NewResolver(logger), violations, publisher, nil, time.UTC, 3, logger)

	return &testEnv{
		store:      store,
		repos:      repos,
		orders:     orders,
		violations: violations,
		escalation: escalation,
		publisher:  publisher,
	}
}

// seedDealer registers an active dealer with stock for the given SKUs and a
// standard SLA profile
func (env *testEnv) seedDealer(name string, skus ...string) *domain.Dealer {
	dealer := &domain.Dealer{
		ID:       uuid.New(),
		Name:     name,
		IsActive: true,
	}
	env.repos.Dealer.Create(context.Background(), dealer)
	for _, sku := range skus {
		env.store.stock[sku] = append(env.store.stock[sku], &domain.DealerStock{
			DealerID:     dealer.ID,
			SKU:          sku,
			AvailableQty: 100,
			Priority:     1,
			Margin:       0.1,
			InStock:      true,
		})
	}
	env.repos.Dealer.SaveSLAProfile(context.Background(), &domain.SLAProfile{
		DealerID:            dealer.ID,
		DispatchWindowStart: "00:00",
		DispatchWindowEnd:   "00:00",
		MaxDispatchTime:     2 * time.Hour,
		ShippingTime:        24 * time.Hour,
		DeliveryTime:        24 * time.Hour,
	})
	return dealer
}
