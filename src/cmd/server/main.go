package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/http/controller"
	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/http/middleware"
	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/http/router"
	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/repository/postgres"
	"github.com/api-sage/ledger-transfer-engine/src/internal/config"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
	"github.com/api-sage/ledger-transfer-engine/src/internal/usecase/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := postgres.RunMigrations(startupCtx, cfg.DatabaseDSN, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	db, err := postgres.Open(startupCtx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	transferRepo := postgres.NewTransferRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	accountGateway := postgres.NewAccountGateway(db)

	registry := services.NewIdempotencyRegistry(transferRepo)
	transferService := services.NewTransferService(
		registry,
		transferRepo,
		accountGateway,
		transactionRepo,
		cfg.ValueDatePast,
		cfg.ValueDateFuture,
	)

	// Resolve transfers stranded by a crash before taking traffic.
	reconciler := services.NewReconciliationService(
		transferRepo,
		accountGateway,
		transactionRepo,
		cfg.ReconciliationCutoff,
	)
	report, err := reconciler.Reconcile(startupCtx)
	if err != nil {
		log.Fatalf("reconciliation sweep: %v", err)
	}
	logger.Info("startup reconciliation complete", logger.Fields{
		"examined":    report.Examined,
		"settled":     report.Settled,
		"failed":      report.Failed,
		"compensated": report.Compensated,
	})

	transferController := controller.NewTransferController(transferService)
	mux := router.New(transferController, middleware.BasicAuth(cfg.ChannelID, cfg.ChannelKeyHash))

	logger.Info("server listening", logger.Fields{"addr": cfg.ListenAddr})
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("serve http: %v", err)
	}
}
