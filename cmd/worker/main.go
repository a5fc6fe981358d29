package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamra-invest/ledger-engine/internal/config"
	"github.com/tamra-invest/ledger-engine/internal/engine"
	"github.com/tamra-invest/ledger-engine/internal/logging"
	"github.com/tamra-invest/ledger-engine/internal/repository"
)

// The worker drains queued vault withdrawals. Withdrawals queue up when a
// pool lacks liquidity at request time; each drain pass executes as many
// queued requests as current liquidity covers, in arrival order.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-worker", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eng := engine.New(db, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(cfg.WithdrawalDrainIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("worker started", "drain_interval", interval.String(), "batch", cfg.WithdrawalDrainBatch)

	for {
		drainAll(ctx, eng, cfg.WithdrawalDrainBatch)

		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func drainAll(ctx context.Context, eng *engine.Engine, batch int) {
	pools, err := eng.ListVaultPools(ctx)
	if err != nil {
		slog.Error("failed to list vault pools", "error", err)
		return
	}

	for _, pool := range pools {
		processed, err := eng.ProcessPendingWithdrawals(ctx, pool.ID, batch)
		if err != nil {
			slog.Error("drain pass failed", "pool_id", pool.ID, "error", err)
			continue
		}
		if len(processed) > 0 {
			slog.Info("drained queued withdrawals", "pool_id", pool.ID, "count", len(processed))
		}
	}
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
