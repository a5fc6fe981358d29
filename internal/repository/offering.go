package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

const offeringColumns = `id, name, currency, capacity, allocated, status, created_at`

const intentColumns = `id, user_id, offering_id, requested, allocated, status, operation_id, created_at`

type OfferingRepository struct {
	db *sql.DB
}

func NewOfferingRepository(db *sql.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

func (r *OfferingRepository) Create(ctx context.Context, offering *domain.Offering) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offerings (id, name, currency, capacity, allocated, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		offering.ID, offering.Name, offering.Currency, offering.Capacity,
		offering.Allocated, offering.Status, offering.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OfferingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Offering, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE id = $1`, id,
	)
	o, err := scanOffering(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

// GetForUpdate serializes all capacity mutations on the offering row. The
// second waiter observes the first's committed allocation before it reads
// remaining capacity.
func (r *OfferingRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Offering, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE id = $1 FOR UPDATE`, id,
	)
	o, err := scanOffering(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return o, nil
}

func (r *OfferingRepository) AddAllocated(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE offerings SET allocated = allocated + $1 WHERE id = $2`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("AddAllocated: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AddAllocated: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("AddAllocated: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *OfferingRepository) CreateIntent(ctx context.Context, tx *sql.Tx, intent *domain.InvestmentIntent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO investment_intents (
			id, user_id, offering_id, requested, allocated, status, operation_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.ID, intent.UserID, intent.OfferingID, intent.Requested,
		intent.Allocated, intent.Status, intent.OperationID, intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateIntent: %w", err)
	}
	return nil
}

func (r *OfferingRepository) GetIntentByID(ctx context.Context, id uuid.UUID) (*domain.InvestmentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM investment_intents WHERE id = $1`, id,
	)
	var i domain.InvestmentIntent
	err := row.Scan(
		&i.ID, &i.UserID, &i.OfferingID, &i.Requested, &i.Allocated,
		&i.Status, &i.OperationID, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetIntentByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetIntentByID: %w", err)
	}
	return &i, nil
}

func (r *OfferingRepository) GetIntentByOperationID(ctx context.Context, operationID uuid.UUID) (*domain.InvestmentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM investment_intents WHERE operation_id = $1`, operationID,
	)
	var i domain.InvestmentIntent
	err := row.Scan(
		&i.ID, &i.UserID, &i.OfferingID, &i.Requested, &i.Allocated,
		&i.Status, &i.OperationID, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetIntentByOperationID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetIntentByOperationID: %w", err)
	}
	return &i, nil
}

func scanOffering(s scanner) (*domain.Offering, error) {
	var o domain.Offering
	err := s.Scan(
		&o.ID, &o.Name, &o.Currency, &o.Capacity, &o.Allocated,
		&o.Status, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
