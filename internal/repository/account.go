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

const accountColumns = `id, owner_id, compartment, scope_type, scope_id, currency, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

// GetOrCreate provisions the account for ref lazily. The insert races with
// concurrent callers; the natural-key constraint makes the loser fall
// through to the select.
func (r *AccountRepository) GetOrCreate(ctx context.Context, tx *sql.Tx, ref domain.AccountRef) (*domain.Account, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, compartment, scope_type, scope_id, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT accounts_natural_key DO NOTHING`,
		uuid.New(), ref.OwnerID, ref.Compartment, ref.ScopeType, ref.ScopeID, ref.Currency, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: insert: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE compartment = $1
		  AND owner_id IS NOT DISTINCT FROM $2
		  AND scope_type = $3
		  AND scope_id IS NOT DISTINCT FROM $4
		  AND currency = $5`,
		ref.Compartment, ref.OwnerID, ref.ScopeType, ref.ScopeID, ref.Currency,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: select: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.OwnerID, &a.Compartment, &a.ScopeType, &a.ScopeID,
		&a.Currency, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
