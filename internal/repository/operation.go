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

const operationColumns = `id, type, status, idempotency_key, request_hash,
	transaction_id, metadata, created_at, completed_at`

type OperationRepository struct {
	db *sql.DB
}

func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Create(ctx context.Context, tx *sql.Tx, op *domain.Operation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO operations (
			id, type, status, idempotency_key, request_hash,
			transaction_id, metadata, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.ID, op.Type, op.Status, op.IdempotencyKey, op.RequestHash,
		op.TransactionID, op.Metadata, op.CreatedAt, op.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Complete is the only write ever issued against an existing operation
// row, and only while it is still pending.
func (r *OperationRepository) Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, completedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE operations SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4`,
		domain.OperationStatusCompleted, completedAt, id, domain.OperationStatusPending,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Complete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *OperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id,
	)
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return op, nil
}

// GetByTypeAndKey returns (nil, nil) when no operation carries the key,
// so the idempotency guard can distinguish "absent" from a real failure.
func (r *OperationRepository) GetByTypeAndKey(ctx context.Context, tx *sql.Tx, opType domain.OperationType, key string) (*domain.Operation, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		WHERE type = $1 AND idempotency_key = $2`,
		opType, key,
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByTypeAndKey: %w", err)
	}
	return op, nil
}

// CompletedTypes lists the distinct operation types that have completed
// for the transaction. Input to the status engine.
func (r *OperationRepository) CompletedTypes(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) ([]domain.OperationType, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT type FROM operations
		WHERE transaction_id = $1 AND status = $2`,
		transactionID, domain.OperationStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("CompletedTypes: %w", err)
	}
	defer rows.Close()

	var types []domain.OperationType
	for rows.Next() {
		var t domain.OperationType
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("CompletedTypes: scan: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CompletedTypes: rows: %w", err)
	}
	return types, nil
}

func (r *OperationRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Operation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		WHERE transaction_id = $1 ORDER BY created_at`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByTransaction: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByTransaction: scan: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByTransaction: rows: %w", err)
	}
	return ops, nil
}

func scanOperation(s scanner) (*domain.Operation, error) {
	var op domain.Operation
	err := s.Scan(
		&op.ID, &op.Type, &op.Status, &op.IdempotencyKey, &op.RequestHash,
		&op.TransactionID, &op.Metadata, &op.CreatedAt, &op.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}
