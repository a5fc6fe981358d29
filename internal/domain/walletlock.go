package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LockReason tags a portion of the locked compartment with the product
// that claimed it. The set is closed: releases filter by reason and must
// never drain the locked compartment indiscriminately.
type LockReason string

const (
	LockReasonInvestment LockReason = "investment"
	LockReasonVesting    LockReason = "vesting"
)

func (r LockReason) IsValid() bool {
	return r == LockReasonInvestment || r == LockReasonVesting
}

type WalletLockStatus string

const (
	WalletLockStatusActive   WalletLockStatus = "active"
	WalletLockStatusReleased WalletLockStatus = "released"
)

// WalletLock is a reason-tagged claim on part of a locked-compartment
// balance. Remaining decreases as releases consume the lock; the ledger
// rows behind it stay untouched.
type WalletLock struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	OperationID uuid.UUID
	Reason      LockReason
	Amount      decimal.Decimal
	Remaining   decimal.Decimal
	MaturityAt  *time.Time
	Status      WalletLockStatus
	CreatedAt   time.Time
	ReleasedAt  *time.Time
}
