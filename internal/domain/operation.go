package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType names the business meaning of one fund movement. Movement
// recipes switch exhaustively over this set; adding a type means adding a
// recipe.
type OperationType string

const (
	OpDepositRecorded   OperationType = "deposit_recorded"
	OpComplianceRelease OperationType = "compliance_release"
	OpComplianceReject  OperationType = "compliance_reject"
	OpInvestmentLock    OperationType = "investment_lock"
	OpVaultDeposit      OperationType = "vault_deposit"
	OpVaultWithdraw     OperationType = "vault_withdraw"
	OpVestingLock       OperationType = "vesting_lock"
	OpVestingRelease    OperationType = "vesting_release"
	OpReversal          OperationType = "reversal"
	OpAdjustment        OperationType = "adjustment"
)

func (t OperationType) IsValid() bool {
	switch t {
	case OpDepositRecorded, OpComplianceRelease, OpComplianceReject,
		OpInvestmentLock, OpVaultDeposit, OpVaultWithdraw,
		OpVestingLock, OpVestingRelease, OpReversal, OpAdjustment:
		return true
	}
	return false
}

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// Operation is the atomic unit of business meaning: this much moved, for
// this reason. Once completed, an operation and its ledger entries are
// immutable; corrections are new operations of type reversal or adjustment
// that reference the original through metadata.
type Operation struct {
	ID             uuid.UUID
	Type           OperationType
	Status         OperationStatus
	IdempotencyKey *string
	RequestHash    *string
	TransactionID  *uuid.UUID
	Metadata       []byte // JSON object, free-form
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
