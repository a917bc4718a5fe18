package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auditsink "github.com/shiplane/wallet-ledger/internal/audit"
	"github.com/shiplane/wallet-ledger/internal/config"
	"github.com/shiplane/wallet-ledger/internal/data/mongo"
	"github.com/shiplane/wallet-ledger/internal/data/postgres"
	"github.com/shiplane/wallet-ledger/internal/logger"
	"github.com/shiplane/wallet-ledger/internal/platform/messaging/producers"
	"github.com/shiplane/wallet-ledger/internal/platform/persistence"
	"github.com/shiplane/wallet-ledger/internal/retry"
	"github.com/shiplane/wallet-ledger/internal/service"
	"github.com/shiplane/wallet-ledger/internal/worker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("compensation_worker")
	if err != nil {
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

	// Replayed compensations commit ledger entries too, so they stream to
	// the same topic as foreground adjustments
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

	// Dead-lettered entries produce audit events
	auditDispatcher, err := auditsink.NewDispatcher(log, auditRepo, cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize audit dispatcher", "error", err)
		os.Exit(1)
	}

	// Initialize the wallet service used for replays
	retrier := retry.New(log, cfg.Retry)
	walletService := service.NewWalletService(log, walletRepo, ledgerRepo, compensationRepo, retrier, ledgerProducer)

	// Dead-lettered entries also stream to the ops topic when configured
	dlqProducer, err := producers.NewDeadLetterProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize dead-letter producer", "error", err)
		os.Exit(1)
	}

	compensationWorker := worker.New(log, cfg.Compensation, compensationRepo, walletService, auditDispatcher)
	if dlqProducer != nil {
		compensationWorker = compensationWorker.WithDeadLetterSink(dlqProducer)
	}
	log.Info("Compensation worker initialized",
		"polling_interval", cfg.Compensation.PollingInterval,
		"batch_size", cfg.Compensation.BatchSize,
		"max_attempts", cfg.Compensation.MaxAttempts)

	// Create error channel for worker errors
	errChan := make(chan error, 1)

	// Start worker in goroutine
	go func() {
		if err := compensationWorker.Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("compensation worker error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var workerErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Worker error occurred", "error", err)
		workerErr = err
	}

	// Cancel the application context to stop the drain loop
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	auditDispatcher.Shutdown()
	postgresDB.Close()

	if err = ledgerProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing dead-letter producer", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if workerErr != nil {
		log.Error("Compensation worker shutdown with errors", "error", workerErr)
	} else {
		log.Info("Compensation worker shutdown completed successfully")
	}
}
