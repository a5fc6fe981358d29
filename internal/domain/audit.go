package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionDepositRecorded    AuditAction = "deposit.recorded"
	AuditActionDepositReleased    AuditAction = "deposit.released"
	AuditActionDepositRejected    AuditAction = "deposit.rejected"
	AuditActionInvestmentLocked   AuditAction = "investment.locked"
	AuditActionInvestmentRejected AuditAction = "investment.rejected"
	AuditActionVaultDeposited     AuditAction = "vault.deposited"
	AuditActionVaultWithdrawn     AuditAction = "vault.withdrawn"
	AuditActionVaultQueued        AuditAction = "vault.withdrawal_queued"
	AuditActionVestingLocked      AuditAction = "vesting.locked"
	AuditActionVestingReleased    AuditAction = "vesting.released"
	AuditActionOperationReversed  AuditAction = "operation.reversed"
	AuditActionOperationAdjusted  AuditAction = "operation.adjusted"
)

// RequiresReason reports whether the action may only be recorded with a
// non-empty reason.
func (a AuditAction) RequiresReason() bool {
	switch a {
	case AuditActionDepositRejected, AuditActionOperationReversed, AuditActionOperationAdjusted:
		return true
	}
	return false
}

// AuditRecord is one immutable row of who did what to which entity, with
// optional before/after snapshots as JSON.
type AuditRecord struct {
	ID         uuid.UUID
	ActorID    *uuid.UUID
	ActorRole  string
	Action     AuditAction
	EntityType string
	EntityID   uuid.UUID
	Reason     string
	Before     []byte
	After      []byte
	CreatedAt  time.Time
}
