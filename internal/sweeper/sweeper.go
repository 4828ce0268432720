// Package sweeper runs the proactive SLA detection loop. Each tick takes a
// short store-side lease so that only one replica sweeps at a time; a replica
// that loses the lease simply waits for the next tick.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/service"
)

type Sweeper struct {
	violations *service.ViolationService
	ledger     repository.LedgerRepository
	interval   time.Duration
	leaseTTL   time.Duration
	logger     *zap.Logger
}

// New creates a new sweeper
func New(violations *service.ViolationService, ledger repository.LedgerRepository, interval, leaseTTL time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		violations: violations,
		ledger:     ledger,
		interval:   interval,
		leaseTTL:   leaseTTL,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("SLA sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SLA sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	acquired, err := s.ledger.AcquireSweepLease(ctx, s.leaseTTL)
	if err != nil {
		s.logger.Error("Failed to acquire sweep lease", zap.Error(err))
		return
	}
	if !acquired {
		s.logger.Debug("Sweep lease held elsewhere, skipping tick")
		return
	}
	defer func() {
		if err := s.ledger.ReleaseSweepLease(ctx); err != nil {
			s.logger.Warn("Failed to release sweep lease", zap.Error(err))
		}
	}()

	if _, err := s.violations.Sweep(ctx); err != nil {
		s.logger.Error("SLA sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single lease-guarded sweep, for the one-shot CLI
func (s *Sweeper) RunOnce(ctx context.Context) error {
	acquired, err := s.ledger.AcquireSweepLease(ctx, s.leaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Warn("Sweep lease held elsewhere, nothing to do")
		return nil
	}
	defer s.ledger.ReleaseSweepLease(ctx)

	_, err = s.violations.Sweep(ctx)
	return err
}
