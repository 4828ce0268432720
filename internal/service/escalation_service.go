package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

// EscalationService flags dealers whose unresolved violations reach the
// configured threshold. Flagging only marks the dealer eligible for disable
// and emits an alert; disablement is always an explicit admin action.
type EscalationService struct {
	repos     *repository.Repositories
	publisher events.Publisher
	threshold int
	logger    *zap.Logger
}

// NewEscalationService creates a new escalation service
func NewEscalationService(repos *repository.Repositories, publisher events.Publisher, disableThreshold int, logger *zap.Logger) *EscalationService {
	return &EscalationService{
		repos:     repos,
		publisher: publisher,
		threshold: disableThreshold,
		logger:    logger,
	}
}

// OnLedgerIncrement runs after every ledger increment and flags the dealer
// once the unresolved count reaches the threshold. Idempotent: an already
// flagged dealer is left alone.
func (s *EscalationService) OnLedgerIncrement(ctx context.Context, dealerID uuid.UUID, snapshot *domain.DealerViolationLedger) error {
	if snapshot.Unresolved < int64(s.threshold) {
		return nil
	}

	dealer, err := s.repos.Dealer.GetByID(ctx, dealerID)
	if err != nil {
		return err
	}
	if dealer.EligibleForDisable || !dealer.IsActive {
		return nil
	}

	if err := s.repos.Dealer.SetEligibleForDisable(ctx, dealerID, true); err != nil {
		return err
	}

	auditEntry := &domain.AuditLogEntry{
		Action:    domain.AuditActionDealerFlagged,
		ActorID:   "system",
		ActorRole: domain.RoleUnknown,
		DealerID:  &dealerID,
		After: map[string]interface{}{
			"unresolved_violations": snapshot.Unresolved,
			"threshold":             s.threshold,
		},
	}
	if err := s.repos.Audit.Create(ctx, auditEntry); err != nil {
		s.logger.Warn("Failed to append flag audit entry", zap.Error(err))
	}

	s.logger.Warn("Dealer flagged eligible for disable",
		zap.String("dealer_id", dealerID.String()),
		zap.Int64("unresolved_violations", snapshot.Unresolved),
	)
	s.publisher.Publish(events.SubjectDealerFlagged, map[string]interface{}{
		"dealer_id":             dealerID.String(),
		"unresolved_violations": snapshot.Unresolved,
		"threshold":             s.threshold,
	})
	return nil
}

// DisableDealer disables one dealer. The dealer must meet the violation
// threshold unless the admin passes the explicit override flag; either way
// the action is audited with the triggering count, reason and actor.
func (s *EscalationService) DisableDealer(ctx context.Context, dealerID uuid.UUID, req DisableRequest, actor Actor) (*domain.Dealer, error) {
	if !actor.Role.IsAdmin() {
		return nil, &errors.ErrUnauthorized{Message: "dealer disable requires an admin role"}
	}

	dealer, err := s.repos.Dealer.GetByID(ctx, dealerID)
	if err != nil {
		return nil, err
	}
	if !dealer.IsActive {
		return dealer, nil
	}

	snapshot, err := s.repos.Ledger.Snapshot(ctx, dealerID)
	if err != nil {
		return nil, err
	}
	if snapshot.Unresolved < int64(s.threshold) && !req.Override {
		return nil, &errors.ErrThresholdNotMet{
			DealerID:  dealerID.String(),
			Count:     snapshot.Unresolved,
			Threshold: s.threshold,
		}
	}

	if err := s.repos.Dealer.Disable(ctx, dealerID, req.Reason); err != nil {
		return nil, err
	}

	auditEntry := &domain.AuditLogEntry{
		Action:    domain.AuditActionDealerDisabled,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		DealerID:  &dealerID,
		Before:    map[string]interface{}{"is_active": true},
		After: map[string]interface{}{
			"is_active":             false,
			"reason":                req.Reason,
			"admin_notes":           req.Notes,
			"unresolved_violations": snapshot.Unresolved,
			"override":              req.Override,
		},
	}
	if err := s.repos.Audit.Create(ctx, auditEntry); err != nil {
		s.logger.Warn("Failed to append disable audit entry", zap.Error(err))
	}

	s.publisher.Publish(events.SubjectDealerDisabled, map[string]interface{}{
		"dealer_id": dealerID.String(),
		"reason":    req.Reason,
		"actor":     actor.ID,
	})

	return s.repos.Dealer.GetByID(ctx, dealerID)
}

// BulkDisable disables several dealers, processing each independently. One
// dealer below threshold fails alone; the batch never aborts as a whole.
func (s *EscalationService) BulkDisable(ctx context.Context, dealerIDs []string, req DisableRequest, actor Actor) []BulkDisableOutcome {
	outcomes := make([]BulkDisableOutcome, 0, len(dealerIDs))
	for _, raw := range dealerIDs {
		outcome := BulkDisableOutcome{DealerID: raw}

		dealerID, err := parseUUID(raw, "dealer id")
		if err == nil {
			_, err = s.DisableDealer(ctx, dealerID, req, actor)
		}
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Success = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// LedgerSnapshot exposes the dealer's current violation ledger
func (s *EscalationService) LedgerSnapshot(ctx context.Context, dealerID uuid.UUID) (*domain.DealerViolationLedger, error) {
	if _, err := s.repos.Dealer.GetByID(ctx, dealerID); err != nil {
		return nil, err
	}
	return s.repos.Ledger.Snapshot(ctx, dealerID)
}
