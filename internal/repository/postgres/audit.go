package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
)

type auditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *auditRepository {
	return &auditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	if err := insertAuditEntry(ctx, r.db, entry); err != nil {
		r.logger.Error("Failed to append audit entry", zap.Error(err))
		return err
	}
	return nil
}

func (r *auditRepository) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, actor_id, actor_role, order_id, sku, dealer_id, before, after, created_at
		FROM audit_log
		WHERE order_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, orderID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		var sku sql.NullString
		var orderRef, dealerRef uuid.NullUUID
		var before, after []byte

		err := rows.Scan(
			&entry.ID, &entry.Action, &entry.ActorID, &entry.ActorRole,
			&orderRef, &sku, &dealerRef, &before, &after, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if orderRef.Valid {
			entry.OrderID = &orderRef.UUID
		}
		if sku.Valid {
			entry.SKU = &sku.String
		}
		if dealerRef.Valid {
			entry.DealerID = &dealerRef.UUID
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &entry.Before); err != nil {
				return nil, err
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &entry.After); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertAuditEntry appends one audit row. It runs against either the pool or
// an open transaction so aggregate writes can carry their audit entries in
// the same commit.
func insertAuditEntry(ctx context.Context, db execer, entry *domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	before, err := json.Marshal(entry.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_id, actor_role, order_id, sku, dealer_id,
			before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.Action, entry.ActorID, entry.ActorRole, entry.OrderID, entry.SKU,
		entry.DealerID, before, after, entry.CreatedAt,
	)
	return err
}
