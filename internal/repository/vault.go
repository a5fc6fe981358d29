package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

const vaultPoolColumns = `id, name, currency, created_at`

const withdrawalColumns = `id, pool_id, user_id, amount, currency, status,
	position, idempotency_key, request_hash, operation_id, created_at, processed_at`

type VaultRepository struct {
	db *sql.DB
}

func NewVaultRepository(db *sql.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

func (r *VaultRepository) CreatePool(ctx context.Context, pool *domain.VaultPool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vault_pools (id, name, currency, created_at) VALUES ($1, $2, $3, $4)`,
		pool.ID, pool.Name, pool.Currency, pool.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreatePool: %w", err)
	}
	return nil
}

func (r *VaultRepository) GetPool(ctx context.Context, id uuid.UUID) (*domain.VaultPool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+vaultPoolColumns+` FROM vault_pools WHERE id = $1`, id,
	)
	var p domain.VaultPool
	if err := row.Scan(&p.ID, &p.Name, &p.Currency, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPool: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetPool: %w", err)
	}
	return &p, nil
}

func (r *VaultRepository) ListPools(ctx context.Context) ([]domain.VaultPool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+vaultPoolColumns+` FROM vault_pools ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPools: %w", err)
	}
	defer rows.Close()

	var pools []domain.VaultPool
	for rows.Next() {
		var p domain.VaultPool
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListPools: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPools: %w", err)
	}
	return pools, nil
}

// GetPoolForUpdate serializes liquidity checks against the pool. Every
// movement that reads the pool balance holds this lock first.
func (r *VaultRepository) GetPoolForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.VaultPool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+vaultPoolColumns+` FROM vault_pools WHERE id = $1 FOR UPDATE`, id,
	)
	var p domain.VaultPool
	if err := row.Scan(&p.ID, &p.Name, &p.Currency, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPoolForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetPoolForUpdate: %w", err)
	}
	return &p, nil
}

// EnqueueWithdrawal appends a withdrawal request; FIFO position is
// assigned by the sequence.
func (r *VaultRepository) EnqueueWithdrawal(ctx context.Context, tx *sql.Tx, w *domain.VaultWithdrawal) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO vault_withdrawals (
			id, pool_id, user_id, amount, currency, status,
			idempotency_key, request_hash, operation_id, created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING position`,
		w.ID, w.PoolID, w.UserID, w.Amount, w.Currency, w.Status,
		w.IdempotencyKey, w.RequestHash, w.OperationID, w.CreatedAt, w.ProcessedAt,
	).Scan(&w.Position)
	if err != nil {
		return fmt.Errorf("EnqueueWithdrawal: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit pending withdrawals in FIFO order,
// skipping rows already claimed by a concurrent drainer.
func (r *VaultRepository) ClaimPending(ctx context.Context, tx *sql.Tx, poolID uuid.UUID, limit int) ([]domain.VaultWithdrawal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM vault_withdrawals
		WHERE pool_id = $1 AND status = $2
		ORDER BY position
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		poolID, domain.WithdrawalStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var claimed []domain.VaultWithdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		claimed = append(claimed, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return claimed, nil
}

func (r *VaultRepository) MarkWithdrawal(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, operationID *uuid.UUID, processedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE vault_withdrawals SET status = $1, operation_id = $2, processed_at = $3
		WHERE id = $4 AND status = $5`,
		status, operationID, processedAt, id, domain.WithdrawalStatusPending,
	)
	if err != nil {
		return fmt.Errorf("MarkWithdrawal: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkWithdrawal: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkWithdrawal: %w", domain.ErrNotFound)
	}
	return nil
}

// GetWithdrawalByKey returns the withdrawal a caller key was already
// spent on, or nil when the key is fresh. Runs on the caller's tx so a
// retry racing the first attempt serializes on the unique index.
func (r *VaultRepository) GetWithdrawalByKey(ctx context.Context, tx *sql.Tx, key string) (*domain.VaultWithdrawal, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM vault_withdrawals WHERE idempotency_key = $1`, key,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetWithdrawalByKey: %w", err)
	}
	return w, nil
}

func (r *VaultRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.VaultWithdrawal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM vault_withdrawals WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetWithdrawal: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetWithdrawal: %w", err)
	}
	return w, nil
}

func scanWithdrawal(s scanner) (*domain.VaultWithdrawal, error) {
	var w domain.VaultWithdrawal
	err := s.Scan(
		&w.ID, &w.PoolID, &w.UserID, &w.Amount, &w.Currency, &w.Status,
		&w.Position, &w.IdempotencyKey, &w.RequestHash, &w.OperationID,
		&w.CreatedAt, &w.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
