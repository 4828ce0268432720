package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

type violationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewViolationRepository creates a new SLA violation repository
func NewViolationRepository(db *sql.DB, logger *zap.Logger) *violationRepository {
	return &violationRepository{
		db:     db,
		logger: logger,
	}
}

const violationColumns = `id, dealer_id, order_id, assignment_id, sku, expected_at, actual_at,
	violation_minutes, severity, resolved, resolution_notes, resolved_by, resolved_at, created_at`

func (r *violationRepository) Create(ctx context.Context, v *domain.SLAViolation) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sla_violations (id, dealer_id, order_id, assignment_id, sku, expected_at,
			actual_at, violation_minutes, severity, resolved, resolution_notes, resolved_by,
			resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		v.ID, v.DealerID, v.OrderID, v.AssignmentID, v.SKU, v.ExpectedAt,
		v.ActualAt, v.ViolationMinutes, v.Severity, v.Resolved, v.ResolutionNotes,
		v.ResolvedBy, v.ResolvedAt, v.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create SLA violation", zap.Error(err))
		return err
	}
	return nil
}

func (r *violationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SLAViolation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+violationColumns+`
		FROM sla_violations
		WHERE id = $1
	`, id)

	v, err := scanViolation(row)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "SLA violation", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get SLA violation", zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (r *violationRepository) Resolve(ctx context.Context, id uuid.UUID, notes, resolvedBy string) (*domain.SLAViolation, bool, error) {
	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE sla_violations
		SET resolved = true, resolution_notes = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND resolved = false
	`, id, notes, resolvedBy, now)
	if err != nil {
		r.logger.Error("Failed to resolve SLA violation", zap.Error(err))
		return nil, false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	// affected == 0 means unknown id or already resolved; GetByID
	// distinguishes the two for the caller
	v, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return v, affected > 0, nil
}

func (r *violationRepository) List(ctx context.Context, filter repository.ViolationFilter) ([]*domain.SLAViolation, *repository.ViolationSummary, error) {
	where, args := buildViolationFilter(filter)

	summary := &repository.ViolationSummary{}
	summaryQuery := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(violation_minutes), 0), COALESCE(AVG(violation_minutes), 0),
			COUNT(*) FILTER (WHERE resolved), COUNT(*) FILTER (WHERE NOT resolved)
		FROM sla_violations
		%s
	`, where)
	err := r.db.QueryRowContext(ctx, summaryQuery, args...).Scan(
		&summary.Count, &summary.TotalMinutes, &summary.AverageMinutes,
		&summary.ResolvedCount, &summary.UnresolvedCount,
	)
	if err != nil {
		r.logger.Error("Failed to summarize SLA violations", zap.Error(err))
		return nil, nil, err
	}

	limit := filter.Limit
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM sla_violations
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, violationColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		r.logger.Error("Failed to list SLA violations", zap.Error(err))
		return nil, nil, err
	}
	defer rows.Close()

	var violations []*domain.SLAViolation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, nil, err
		}
		violations = append(violations, v)
	}
	return violations, summary, rows.Err()
}

func buildViolationFilter(filter repository.ViolationFilter) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if filter.DealerID != nil {
		args = append(args, *filter.DealerID)
		clauses = append(clauses, fmt.Sprintf("dealer_id = $%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		clauses = append(clauses, fmt.Sprintf("resolved = $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanViolation(row rowScanner) (*domain.SLAViolation, error) {
	var v domain.SLAViolation
	var notes, resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&v.ID, &v.DealerID, &v.OrderID, &v.AssignmentID, &v.SKU, &v.ExpectedAt, &v.ActualAt,
		&v.ViolationMinutes, &v.Severity, &v.Resolved, &notes, &resolvedBy, &resolvedAt,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		v.ResolutionNotes = &notes.String
	}
	if resolvedBy.Valid {
		v.ResolvedBy = &resolvedBy.String
	}
	if resolvedAt.Valid {
		v.ResolvedAt = &resolvedAt.Time
	}
	return &v, nil
}
