package domain

import (
	"time"

	"github.com/google/uuid"
)

// Compartment is a named sub-balance of an owner's funds with distinct
// movability rules.
type Compartment string

const (
	CompartmentAvailable  Compartment = "available"
	CompartmentBlocked    Compartment = "blocked"
	CompartmentLocked     Compartment = "locked"
	CompartmentSystemPool Compartment = "system_pool"
)

func (c Compartment) IsValid() bool {
	switch c {
	case CompartmentAvailable, CompartmentBlocked, CompartmentLocked, CompartmentSystemPool:
		return true
	}
	return false
}

// ScopeType narrows an account to a specific vault pool or the system
// clearing pool. User compartments carry no scope.
type ScopeType string

const (
	ScopeNone     ScopeType = ""
	ScopeClearing ScopeType = "clearing"
	ScopeVault    ScopeType = "vault"
)

// Account is a compartment of funds for one owner in one currency. The
// tuple (compartment, owner, scope type, scope id, currency) is unique.
// An account stores no balance: its balance is always the signed sum of
// its ledger entries.
type Account struct {
	ID          uuid.UUID
	OwnerID     *uuid.UUID // nil for system-owned pools
	Compartment Compartment
	ScopeType   ScopeType
	ScopeID     *uuid.UUID
	Currency    Currency
	CreatedAt   time.Time
}

// AccountRef identifies an account by its natural key, used for lazy
// get-or-create provisioning.
type AccountRef struct {
	OwnerID     *uuid.UUID
	Compartment Compartment
	ScopeType   ScopeType
	ScopeID     *uuid.UUID
	Currency    Currency
}

func UserAccountRef(ownerID uuid.UUID, compartment Compartment, currency Currency) AccountRef {
	return AccountRef{
		OwnerID:     &ownerID,
		Compartment: compartment,
		ScopeType:   ScopeNone,
		Currency:    currency,
	}
}

func ClearingPoolRef(currency Currency) AccountRef {
	return AccountRef{
		Compartment: CompartmentSystemPool,
		ScopeType:   ScopeClearing,
		Currency:    currency,
	}
}

func VaultPoolRef(poolID uuid.UUID, currency Currency) AccountRef {
	return AccountRef{
		Compartment: CompartmentSystemPool,
		ScopeType:   ScopeVault,
		ScopeID:     &poolID,
		Currency:    currency,
	}
}
