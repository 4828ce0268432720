// One-shot SLA sweep, for cron-style deployments that do not keep the server's
// background loop running. Takes the same store-side lease as the server
// sweeper, so running it next to a live server never double-detects.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/config"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository/ledger"
	"github.com/jafarshop/fulfillment/internal/repository/postgres"
	"github.com/jafarshop/fulfillment/internal/service"
	"github.com/jafarshop/fulfillment/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	repos := postgres.NewRepositories(db, logger)
	repos.Ledger = ledger.NewLedgerRepository(redisClient, logger)

	// NATS is optional here; without a broker the sweep still records
	// violations, it just skips the event fan-out
	var publisher events.Publisher = events.NopPublisher{}
	if natsPublisher, err := events.NewPublisher(cfg.NATS, logger); err == nil {
		publisher = natsPublisher
		defer natsPublisher.Close()
	} else {
		logger.Warn("NATS unavailable, sweeping without event fan-out", zap.Error(err))
	}

	escalation := service.NewEscalationService(repos, publisher, cfg.SLA.DisableThreshold, logger)
	violations := service.NewViolationService(repos, escalation, publisher, cfg.SLA.SweepBatchSize, logger)

	sweep := sweeper.New(violations, repos.Ledger, cfg.SLA.SweepInterval, cfg.SLA.SweepLeaseTTL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := sweep.RunOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}
}
