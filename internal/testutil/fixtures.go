package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/auth"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

var ComplianceActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// ActorContext attributes test movements to a fixed compliance actor.
func ActorContext() context.Context {
	return auth.ContextWithActor(context.Background(), auth.Actor{
		ID:   ComplianceActorID,
		Role: "compliance_officer",
	})
}

func SeedOffering(t *testing.T, db *sql.DB, currency domain.Currency, capacity decimal.Decimal) *domain.Offering {
	t.Helper()

	offering := &domain.Offering{
		ID:        uuid.New(),
		Name:      "test offering",
		Currency:  currency,
		Capacity:  capacity,
		Allocated: decimal.Zero,
		Status:    domain.OfferingStatusOpen,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO offerings (id, name, currency, capacity, allocated, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		offering.ID, offering.Name, offering.Currency, offering.Capacity,
		offering.Allocated, offering.Status, offering.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed offering: %v", err)
	}
	return offering
}

func SeedVaultPool(t *testing.T, db *sql.DB, currency domain.Currency) *domain.VaultPool {
	t.Helper()

	pool := &domain.VaultPool{
		ID:        uuid.New(),
		Name:      "test vault",
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO vault_pools (id, name, currency, created_at) VALUES ($1, $2, $3, $4)`,
		pool.ID, pool.Name, pool.Currency, pool.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed vault pool: %v", err)
	}
	return pool
}

// AccountBalance reads the committed signed sum for one account.
func AccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var raw string
	err := db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID,
	).Scan(&raw)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse balance %q: %v", raw, err)
	}
	return balance
}

func CountOperationEntries(t *testing.T, db *sql.DB, operationID uuid.UUID) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE operation_id = $1`, operationID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}

func CountPendingWithdrawals(t *testing.T, db *sql.DB, poolID uuid.UUID) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM vault_withdrawals WHERE pool_id = $1 AND status = 'pending'`, poolID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count pending withdrawals: %v", err)
	}
	return n
}

func CountTransactions(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func CountAuditRecords(t *testing.T, db *sql.DB, entityID uuid.UUID) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM audit_records WHERE entity_id = $1`, entityID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count audit records: %v", err)
	}
	return n
}
