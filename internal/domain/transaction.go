package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit         TransactionType = "deposit"
	TransactionTypeInvestment      TransactionType = "investment"
	TransactionTypeVaultDeposit    TransactionType = "vault_deposit"
	TransactionTypeVaultWithdrawal TransactionType = "vault_withdrawal"
	TransactionTypeVesting         TransactionType = "vesting"
)

// TransactionStatus is derived from the transaction's completed operations
// by the status engine. Callers never set it directly.
type TransactionStatus string

const (
	TransactionStatusInitiated   TransactionStatus = "initiated"
	TransactionStatusUnderReview TransactionStatus = "under_review"
	TransactionStatusAvailable   TransactionStatus = "available"
	TransactionStatusFailed      TransactionStatus = "failed"
	TransactionStatusLocked      TransactionStatus = "locked"
	TransactionStatusCompleted   TransactionStatus = "completed"
	TransactionStatusReversed    TransactionStatus = "reversed"
)

// Transaction is the user-visible saga composed of one or more operations.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      TransactionType
	Status    TransactionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
