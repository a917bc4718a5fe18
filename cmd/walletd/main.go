package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiplane/wallet-ledger/internal/api"
	auditsink "github.com/shiplane/wallet-ledger/internal/audit"
	"github.com/shiplane/wallet-ledger/internal/booking"
	"github.com/shiplane/wallet-ledger/internal/breaker"
	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/data/mongo"
	"github.com/shiplane/wallet-ledger/internal/data/postgres"
	"github.com/shiplane/wallet-ledger/internal/logger"
	"github.com/shiplane/wallet-ledger/internal/platform/messaging/producers"
	"github.com/shiplane/wallet-ledger/internal/platform/persistence"
	"github.com/shiplane/wallet-ledger/internal/policy"
	"github.com/shiplane/wallet-ledger/internal/retry"
	"github.com/shiplane/wallet-ledger/internal/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("walletd")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for committed ledger entries
	ledgerProducer, err := producers.NewLedgerEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	compensationRepo := postgres.NewCompensationRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize the audit dispatcher worker pool
	auditDispatcher, err := auditsink.NewDispatcher(log, auditRepo, cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize audit dispatcher", "error", err)
		os.Exit(1)
	}

	// Initialize services
	retrier := retry.New(log, cfg.Retry)
	walletService := service.NewWalletService(log, walletRepo, ledgerRepo, compensationRepo, retrier, ledgerProducer)
	creditPolicy := policy.New(log, cfg.Governance, walletRepo, auditDispatcher)

	// Breaker state lives in Redis, mirrored into memory so provider calls
	// survive a Redis outage
	breakerStore := breaker.NewFallbackStateStore(log,
		breaker.NewRedisStateStore(redisClient, cfg.Breaker.StateTTL),
		breaker.NewMemoryStateStore(cfg.Breaker.StateTTL),
	)
	providerBreaker := breaker.New(log, cfg.Breaker, breakerStore)

	orchestrator := booking.NewOrchestrator(log, cfg.Booking, walletService, creditPolicy, providerBreaker, loadProviders(log, cfg.Booking))

	// Initialize REST server
	server := api.NewServer(log, cfg, walletService, creditPolicy, orchestrator)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	auditDispatcher.Shutdown()
	postgresDB.Close()

	if err = ledgerProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}

	if err = redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

// loadProviders wires the courier integrations configured for this deployment
func loadProviders(log *slog.Logger, cfg config.BookingConfig) map[string]booking.ProviderClient {
	providers := make(map[string]booking.ProviderClient, len(cfg.Providers))
	for name, baseURL := range cfg.Providers {
		providers[name] = booking.NewHTTPProvider(log, name, baseURL)
		log.Info("Registered shipping provider", "provider", name)
	}
	return providers
}
