package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

type idempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency key repository
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) *idempotencyRepository {
	return &idempotencyRepository{
		db:     db,
		logger: logger,
	}
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	var k domain.IdempotencyKey
	err := r.db.QueryRowContext(ctx, `
		SELECT key, customer_ref, order_id, request_hash, created_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&k.Key, &k.CustomerRef, &k.OrderID, &k.RequestHash, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, err
	}
	return &k, nil
}

func (r *idempotencyRepository) Create(ctx context.Context, k *domain.IdempotencyKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, customer_ref, order_id, request_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING
	`, k.Key, k.CustomerRef, k.OrderID, k.RequestHash, k.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to store idempotency key", zap.Error(err))
	}
	return err
}
