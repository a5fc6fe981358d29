package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VaultPool is a liquid savings pool holding aggregated funds on behalf of
// many users through a single system-pool account.
type VaultPool struct {
	ID        uuid.UUID
	Name      string
	Currency  Currency
	CreatedAt time.Time
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusCancelled WithdrawalStatus = "cancelled"
)

// VaultWithdrawal is a withdrawal request against a pool. When the pool
// lacks liquidity the request is queued pending, ordered by Position, and
// executed later by the drain worker. The idempotency key lives on the
// row itself: a queued request produces no Operation, so a retry must
// find the pending row and never enqueue a second one.
type VaultWithdrawal struct {
	ID             uuid.UUID
	PoolID         uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Status         WithdrawalStatus
	Position       int64
	IdempotencyKey *string
	RequestHash    *string
	OperationID    *uuid.UUID
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}
