package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamra-invest/ledger-engine/internal/config"
	"github.com/tamra-invest/ledger-engine/internal/engine"
	"github.com/tamra-invest/ledger-engine/internal/handler"
	"github.com/tamra-invest/ledger-engine/internal/logging"
	"github.com/tamra-invest/ledger-engine/internal/middleware"
	"github.com/tamra-invest/ledger-engine/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eng := engine.New(db, nil)

	healthHandler := handler.NewHealthHandler(db)
	accountHandler := handler.NewAccountHandler(eng)
	movementHandler := handler.NewMovementHandler(eng)
	transactionHandler := handler.NewTransactionHandler(eng)
	operationHandler := handler.NewOperationHandler(eng)
	auditHandler := handler.NewAuditHandler(eng)
	offeringHandler := handler.NewOfferingHandler(eng)
	vaultHandler := handler.NewVaultHandler(eng)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	authed := middleware.Auth(cfg.JWTSecret)

	mux.Handle("POST /api/v1/accounts", authed(http.HandlerFunc(accountHandler.Ensure)))
	mux.Handle("GET /api/v1/accounts/{id}/balance", authed(http.HandlerFunc(accountHandler.GetBalance)))
	mux.Handle("GET /api/v1/accounts/{id}/entries", authed(http.HandlerFunc(accountHandler.ListEntries)))
	mux.Handle("GET /api/v1/accounts/{id}/locks", authed(http.HandlerFunc(accountHandler.ListLocks)))

	mux.Handle("POST /api/v1/offerings", authed(http.HandlerFunc(offeringHandler.Create)))
	mux.Handle("GET /api/v1/offerings/{id}", authed(http.HandlerFunc(offeringHandler.Get)))

	mux.Handle("POST /api/v1/deposits", authed(http.HandlerFunc(movementHandler.RecordDeposit)))
	mux.Handle("POST /api/v1/deposits/release", authed(http.HandlerFunc(movementHandler.ReleaseDeposit)))
	mux.Handle("POST /api/v1/deposits/reject", authed(http.HandlerFunc(movementHandler.RejectDeposit)))
	mux.Handle("POST /api/v1/investments", authed(http.HandlerFunc(movementHandler.LockInvestment)))
	mux.Handle("GET /api/v1/investments/{id}", authed(http.HandlerFunc(offeringHandler.GetIntent)))
	mux.Handle("POST /api/v1/vaults/pools", authed(http.HandlerFunc(vaultHandler.CreatePool)))
	mux.Handle("GET /api/v1/vaults/pools", authed(http.HandlerFunc(vaultHandler.ListPools)))
	mux.Handle("GET /api/v1/vaults/pools/{id}", authed(http.HandlerFunc(vaultHandler.GetPool)))
	mux.Handle("GET /api/v1/vaults/withdrawals/{id}", authed(http.HandlerFunc(vaultHandler.GetWithdrawal)))
	mux.Handle("POST /api/v1/vaults/deposits", authed(http.HandlerFunc(movementHandler.DepositToVault)))
	mux.Handle("POST /api/v1/vaults/withdrawals", authed(http.HandlerFunc(movementHandler.WithdrawFromVault)))
	mux.Handle("POST /api/v1/vesting/locks", authed(http.HandlerFunc(movementHandler.LockVesting)))
	mux.Handle("POST /api/v1/vesting/releases", authed(http.HandlerFunc(movementHandler.ReleaseVesting)))

	mux.Handle("GET /api/v1/operations/{id}", authed(http.HandlerFunc(operationHandler.Get)))
	mux.Handle("POST /api/v1/operations/{id}/reverse", authed(http.HandlerFunc(movementHandler.ReverseOperation)))
	mux.Handle("POST /api/v1/operations/{id}/adjust", authed(http.HandlerFunc(movementHandler.AdjustOperation)))

	mux.Handle("GET /api/v1/transactions/{id}", authed(http.HandlerFunc(transactionHandler.Get)))
	mux.Handle("POST /api/v1/transactions/{id}/recompute", authed(http.HandlerFunc(transactionHandler.RecomputeStatus)))

	mux.Handle("GET /api/v1/audit", authed(http.HandlerFunc(auditHandler.List)))

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var db *sql.DB
	var err error
	for i := range 30 {
		db, err = repository.NewPostgresDB(context.Background(), cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
