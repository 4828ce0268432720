package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

type assignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new dealer assignment repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) *assignmentRepository {
	return &assignmentRepository{
		db:     db,
		logger: logger,
	}
}

const assignmentColumns = `id, order_id, sku_line_item_id, sku, dealer_id, quantity, margin,
	priority, in_stock, status, assigned_at, closed_at, replaced_by, sla_unknown,
	expected_dispatch_at, expected_fulfillment_at, sla_evaluated, completed_at`

func (r *assignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DealerAssignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM dealer_assignments
		WHERE id = $1
	`, id)

	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "assignment", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get assignment", zap.Error(err))
		return nil, err
	}
	return a, nil
}

// ClaimEvaluation flips the sla_evaluated marker with a conditional update so
// the reactive and proactive paths cannot both record a violation for the
// same assignment.
func (r *assignmentRepository) ClaimEvaluation(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE dealer_assignments
		SET sla_evaluated = true
		WHERE id = $1 AND sla_evaluated = false
	`, id)
	if err != nil {
		r.logger.Error("Failed to claim assignment evaluation", zap.Error(err))
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *assignmentRepository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*domain.DealerAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM dealer_assignments
		WHERE sla_evaluated = false
			AND sla_unknown = false
			AND closed_at IS NULL
			AND completed_at IS NULL
			AND expected_fulfillment_at < $1
		ORDER BY expected_fulfillment_at
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		r.logger.Error("Failed to list overdue assignments", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.DealerAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Reassign closes the old assignment and opens the replacement in one
// transaction. The closed row is never overwritten so SLA history stays
// auditable.
func (r *assignmentRepository) Reassign(ctx context.Context, oldID uuid.UUID, replacement *domain.DealerAssignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE dealer_assignments
		SET closed_at = $2, replaced_by = $3
		WHERE id = $1 AND closed_at IS NULL
	`, oldID, now, replacement.ID)
	if err != nil {
		r.logger.Error("Failed to close assignment", zap.Error(err))
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &errors.ErrNotFound{Resource: "open assignment", ID: oldID.String()}
	}

	if err := insertAssignment(ctx, tx, replacement); err != nil {
		r.logger.Error("Failed to insert replacement assignment", zap.Error(err))
		return err
	}

	return tx.Commit()
}

func scanAssignment(row rowScanner) (*domain.DealerAssignment, error) {
	var a domain.DealerAssignment
	err := row.Scan(
		&a.ID, &a.OrderID, &a.SkuLineItemID, &a.SKU, &a.DealerID, &a.Quantity, &a.Margin,
		&a.Priority, &a.InStock, &a.Status, &a.AssignedAt, &a.ClosedAt, &a.ReplacedBy,
		&a.SLAUnknown, &a.ExpectedDispatchAt, &a.ExpectedFulfillmentAt, &a.SLAEvaluated,
		&a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
