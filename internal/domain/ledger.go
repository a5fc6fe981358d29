package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// LedgerEntry is one signed movement against exactly one account, linked
// to exactly one operation. Entries are append-only: never updated, never
// deleted. Credits are positive, debits negative; for any operation the
// signed amounts sum to zero per currency.
type LedgerEntry struct {
	ID          uuid.UUID
	OperationID uuid.UUID
	AccountID   uuid.UUID
	EntryType   EntryType
	Amount      decimal.Decimal
	Currency    Currency
	CreatedAt   time.Time
}
