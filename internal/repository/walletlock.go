package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

const walletLockColumns = `id, account_id, operation_id, reason, amount, remaining,
	maturity_at, status, created_at, released_at`

type WalletLockRepository struct {
	db *sql.DB
}

func NewWalletLockRepository(db *sql.DB) *WalletLockRepository {
	return &WalletLockRepository{db: db}
}

func (r *WalletLockRepository) Create(ctx context.Context, tx *sql.Tx, lock *domain.WalletLock) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_locks (
			id, account_id, operation_id, reason, amount, remaining,
			maturity_at, status, created_at, released_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lock.ID, lock.AccountID, lock.OperationID, lock.Reason, lock.Amount,
		lock.Remaining, lock.MaturityAt, lock.Status, lock.CreatedAt, lock.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MaturedForUpdate locks and returns the active locks for one account and
// reason whose maturity has passed, oldest maturity first. Locks without a
// maturity never match; releasing is always reason-scoped.
func (r *WalletLockRepository) MaturedForUpdate(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, reason domain.LockReason, asOf time.Time) ([]domain.WalletLock, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+walletLockColumns+` FROM wallet_locks
		WHERE account_id = $1 AND reason = $2 AND status = $3
		  AND maturity_at IS NOT NULL AND maturity_at <= $4
		ORDER BY maturity_at, created_at
		FOR UPDATE`,
		accountID, reason, domain.WalletLockStatusActive, asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("MaturedForUpdate: %w", err)
	}
	defer rows.Close()
	return collectWalletLocks(rows, "MaturedForUpdate")
}

// Consume reduces a lock's remaining amount, marking it released when it
// reaches zero. The caller must hold the row lock.
func (r *WalletLockRepository) Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID, remaining decimal.Decimal, releasedAt time.Time) error {
	status := domain.WalletLockStatusActive
	var released *time.Time
	if remaining.IsZero() {
		status = domain.WalletLockStatusReleased
		released = &releasedAt
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallet_locks SET remaining = $1, status = $2, released_at = $3 WHERE id = $4`,
		remaining, status, released, id,
	)
	if err != nil {
		return fmt.Errorf("Consume: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Consume: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Consume: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WalletLockRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.WalletLock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+walletLockColumns+` FROM wallet_locks
		WHERE account_id = $1 ORDER BY created_at`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	defer rows.Close()
	return collectWalletLocks(rows, "GetByAccountID")
}

func collectWalletLocks(rows *sql.Rows, op string) ([]domain.WalletLock, error) {
	var locks []domain.WalletLock
	for rows.Next() {
		var l domain.WalletLock
		err := rows.Scan(
			&l.ID, &l.AccountID, &l.OperationID, &l.Reason, &l.Amount,
			&l.Remaining, &l.MaturityAt, &l.Status, &l.CreatedAt, &l.ReleasedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return locks, nil
}
