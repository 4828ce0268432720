package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api"
	"github.com/jafarshop/fulfillment/internal/assign"
	"github.com/jafarshop/fulfillment/internal/catalog"
	"github.com/jafarshop/fulfillment/internal/config"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository/ledger"
	"github.com/jafarshop/fulfillment/internal/repository/postgres"
	"github.com/jafarshop/fulfillment/internal/service"
	"github.com/jafarshop/fulfillment/internal/sweeper"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Connect to database
	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database", zap.String("host", cfg.Database.Host))

	// Connect to Redis for the violation ledger and sweep lease
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Connect to NATS; event publishing is fire-and-forget so a broker
	// outage degrades to logged warnings, never failed requests
	publisher, err := events.NewPublisher(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer publisher.Close()
	logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))

	// Wire repositories and services
	repos := postgres.NewRepositories(db, logger)
	repos.Ledger = ledger.NewLedgerRepository(redisClient, logger)

	loc, err := time.LoadLocation(cfg.SLA.TimeZone)
	if err != nil {
		logger.Fatal("Invalid SLA time zone", zap.Error(err))
	}

	escalationService := service.NewEscalationService(repos, publisher, cfg.SLA.DisableThreshold, logger)
	violationService := service.NewViolationService(repos, escalationService, publisher, cfg.SLA.SweepBatchSize, logger)
	orderService := service.NewOrderService(
		repos,
		assign.NewResolver(logger),
		violationService,
		publisher,
		catalog.NewClient(cfg.Catalog, logger),
		loc,
		cfg.SLA.ConflictRetries,
		logger,
	)

	// Start the proactive SLA sweep loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweep := sweeper.New(violationService, repos.Ledger, cfg.SLA.SweepInterval, cfg.SLA.SweepLeaseTTL, logger)
	go sweep.Run(ctx)

	router := api.NewRouter(cfg, repos, &api.Services{
		Orders:     orderService,
		Violations: violationService,
		Escalation: escalationService,
	}, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
