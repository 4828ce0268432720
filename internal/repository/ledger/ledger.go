// Package ledger keeps the per-dealer violation counters in Redis. Many
// concurrent orders can implicate the same dealer, so increments use Redis
// atomic operations rather than read-modify-write at the application layer.
package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
)

const (
	keyPrefix     = "sla:ledger:"
	sweepLeaseKey = "sla:sweep:lease"
)

type ledgerRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLedgerRepository creates a redis-backed dealer violation ledger
func NewLedgerRepository(client *redis.Client, logger *zap.Logger) *ledgerRepository {
	return &ledgerRepository{
		client: client,
		logger: logger,
	}
}

func dealerKey(dealerID uuid.UUID) string {
	return keyPrefix + dealerID.String()
}

// Record atomically appends one violation to the dealer's ledger and returns
// the updated snapshot
func (r *ledgerRepository) Record(ctx context.Context, dealerID uuid.UUID, minutes int64, at time.Time) (*domain.DealerViolationLedger, error) {
	key := dealerKey(dealerID)

	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HIncrBy(ctx, key, "unresolved", 1)
	pipe.HIncrBy(ctx, key, "total_minutes", minutes)
	pipe.HSet(ctx, key, "last_violation_at", at.Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to record ledger increment",
			zap.String("dealer_id", dealerID.String()), zap.Error(err))
		return nil, err
	}

	return r.Snapshot(ctx, dealerID)
}

// MarkResolved decrements the unresolved counter when a violation is resolved
func (r *ledgerRepository) MarkResolved(ctx context.Context, dealerID uuid.UUID) error {
	err := r.client.HIncrBy(ctx, dealerKey(dealerID), "unresolved", -1).Err()
	if err != nil {
		r.logger.Error("Failed to decrement unresolved counter",
			zap.String("dealer_id", dealerID.String()), zap.Error(err))
	}
	return err
}

func (r *ledgerRepository) Snapshot(ctx context.Context, dealerID uuid.UUID) (*domain.DealerViolationLedger, error) {
	fields, err := r.client.HGetAll(ctx, dealerKey(dealerID)).Result()
	if err != nil {
		r.logger.Error("Failed to read ledger",
			zap.String("dealer_id", dealerID.String()), zap.Error(err))
		return nil, err
	}

	snapshot := &domain.DealerViolationLedger{DealerID: dealerID}
	snapshot.Count = parseCounter(fields["count"])
	snapshot.Unresolved = parseCounter(fields["unresolved"])
	snapshot.TotalMinutes = parseCounter(fields["total_minutes"])
	if snapshot.Unresolved < 0 {
		snapshot.Unresolved = 0
	}
	if snapshot.Count > 0 {
		snapshot.AverageMinutes = float64(snapshot.TotalMinutes) / float64(snapshot.Count)
	}
	if raw, ok := fields["last_violation_at"]; ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			last := time.Unix(unix, 0)
			snapshot.LastViolationAt = &last
		}
	}
	return snapshot, nil
}

// AcquireSweepLease takes the proactive-sweep lease. Only one sweep may run
// at a time across all instances; the TTL releases a lease held by a crashed
// sweeper.
func (r *ledgerRepository) AcquireSweepLease(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, sweepLeaseKey, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		r.logger.Error("Failed to acquire sweep lease", zap.Error(err))
		return false, err
	}
	return ok, nil
}

func (r *ledgerRepository) ReleaseSweepLease(ctx context.Context) error {
	return r.client.Del(ctx, sweepLeaseKey).Err()
}

func parseCounter(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
