package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository"
)

// ViolationService decides whether assignments breached their SLA and owns
// the violation records. Detection runs on two paths: reactively when a
// terminal status arrives, and proactively from the background sweep. Both
// paths funnel through an atomic claim of the assignment's evaluated marker,
// so exactly one violation exists per breached assignment no matter which
// path saw it first or how often the sweep re-runs.
type ViolationService struct {
	repos      *repository.Repositories
	escalation *EscalationService
	publisher  events.Publisher
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

// NewViolationService creates a new violation service
func NewViolationService(
	repos *repository.Repositories,
	escalation *EscalationService,
	publisher events.Publisher,
	sweepBatchSize int,
	logger *zap.Logger,
) *ViolationService {
	return &ViolationService{
		repos:      repos,
		escalation: escalation,
		publisher:  publisher,
		batchSize:  sweepBatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// EvaluateAssignment is the reactive path: called when an assignment reports
// a terminal status. actualTime is when fulfillment actually happened.
// Assignments without a cached deadline (missing SLA profile) are skipped.
func (s *ViolationService) EvaluateAssignment(ctx context.Context, a *domain.DealerAssignment, actualTime time.Time) error {
	if a.SLAUnknown || a.ExpectedFulfillmentAt == nil || a.SLAEvaluated {
		return nil
	}

	claimed, err := s.repos.Assignment.ClaimEvaluation(ctx, a.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// the other detection path got here first
		return nil
	}
	a.SLAEvaluated = true

	if !actualTime.After(*a.ExpectedFulfillmentAt) {
		// within SLA; the claim alone keeps future sweeps away
		return nil
	}
	return s.recordViolation(ctx, a, actualTime)
}

// Sweep is the proactive path: it scans open assignments whose deadline has
// passed with no terminal update, using "now" as the actual time. The caller
// holds the sweep lease; this method assumes it runs alone.
func (s *ViolationService) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	overdue, err := s.repos.Assignment.ListOverdue(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(overdue)}
	for _, a := range overdue {
		claimed, err := s.repos.Assignment.ClaimEvaluation(ctx, a.ID)
		if err != nil {
			s.logger.Error("Sweep failed to claim assignment",
				zap.String("assignment_id", a.ID.String()), zap.Error(err))
			result.Skipped++
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}
		a.SLAEvaluated = true
		if err := s.recordViolation(ctx, a, now); err != nil {
			s.logger.Error("Sweep failed to record violation",
				zap.String("assignment_id", a.ID.String()), zap.Error(err))
			result.Skipped++
			continue
		}
		result.Violations++
	}

	s.logger.Info("SLA sweep complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("violations", result.Violations),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// recordViolation creates the violation record, bumps the dealer ledger
// atomically and hands the updated snapshot to the escalation policy. The
// caller must already hold the assignment's evaluation claim.
func (s *ViolationService) recordViolation(ctx context.Context, a *domain.DealerAssignment, actualTime time.Time) error {
	minutes := int64(actualTime.Sub(*a.ExpectedFulfillmentAt).Minutes())
	violation := &domain.SLAViolation{
		DealerID:         a.DealerID,
		OrderID:          a.OrderID,
		AssignmentID:     a.ID,
		SKU:              a.SKU,
		ExpectedAt:       *a.ExpectedFulfillmentAt,
		ActualAt:         actualTime,
		ViolationMinutes: minutes,
		Severity:         domain.SeverityForMinutes(minutes),
	}
	if err := s.repos.Violation.Create(ctx, violation); err != nil {
		return err
	}

	// observability-only audit entry; its failure never affects the violation
	auditEntry := &domain.AuditLogEntry{
		Action:    domain.AuditActionViolationRecorded,
		ActorID:   "system",
		ActorRole: domain.RoleUnknown,
		OrderID:   &violation.OrderID,
		SKU:       &violation.SKU,
		DealerID:  &violation.DealerID,
		After: map[string]interface{}{
			"violation_id":      violation.ID.String(),
			"violation_minutes": minutes,
			"severity":          violation.Severity,
		},
	}
	if err := s.repos.Audit.Create(ctx, auditEntry); err != nil {
		s.logger.Warn("Failed to append violation audit entry", zap.Error(err))
	}

	snapshot, err := s.repos.Ledger.Record(ctx, a.DealerID, minutes, violation.CreatedAt)
	if err != nil {
		return err
	}

	s.publisher.Publish(events.SubjectViolationRecorded, map[string]interface{}{
		"violation_id": violation.ID.String(),
		"dealer_id":    violation.DealerID.String(),
		"order_id":     violation.OrderID.String(),
		"sku":          violation.SKU,
		"minutes":      minutes,
		"severity":     violation.Severity,
	})

	return s.escalation.OnLedgerIncrement(ctx, a.DealerID, snapshot)
}

// ListViolations is the paginated violation query with summary aggregates
func (s *ViolationService) ListViolations(ctx context.Context, filter repository.ViolationFilter) ([]*domain.SLAViolation, *repository.ViolationSummary, error) {
	return s.repos.Violation.List(ctx, filter)
}

// ResolveViolation marks a violation resolved with notes and releases its
// hold on the dealer's unresolved counter. The repository reports whether
// this call actually flipped the row, so a replay or a concurrent duplicate
// returns the resolved record without touching the ledger again.
func (s *ViolationService) ResolveViolation(ctx context.Context, id string, notes string, actor Actor) (*domain.SLAViolation, error) {
	violationID, err := parseUUID(id, "violation id")
	if err != nil {
		return nil, err
	}

	resolved, flipped, err := s.repos.Violation.Resolve(ctx, violationID, notes, actor.ID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return resolved, nil
	}

	if err := s.repos.Ledger.MarkResolved(ctx, resolved.DealerID); err != nil {
		s.logger.Error("Failed to release unresolved counter",
			zap.String("dealer_id", resolved.DealerID.String()), zap.Error(err))
	}

	auditEntry := &domain.AuditLogEntry{
		Action:    domain.AuditActionViolationResolved,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		DealerID:  &resolved.DealerID,
		OrderID:   &resolved.OrderID,
		After: map[string]interface{}{
			"violation_id": resolved.ID.String(),
			"notes":        notes,
		},
	}
	if err := s.repos.Audit.Create(ctx, auditEntry); err != nil {
		s.logger.Warn("Failed to append resolution audit entry", zap.Error(err))
	}

	return resolved, nil
}
