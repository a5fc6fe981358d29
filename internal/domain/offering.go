package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OfferingStatus string

const (
	OfferingStatusOpen   OfferingStatus = "open"
	OfferingStatusClosed OfferingStatus = "closed"
)

// Offering is an investment product with a fixed capacity. Allocated only
// grows while the offering row is held under an exclusive lock.
type Offering struct {
	ID        uuid.UUID
	Name      string
	Currency  Currency
	Capacity  decimal.Decimal
	Allocated decimal.Decimal
	Status    OfferingStatus
	CreatedAt time.Time
}

func (o *Offering) Remaining() decimal.Decimal {
	return o.Capacity.Sub(o.Allocated)
}

type IntentStatus string

const (
	IntentStatusAllocated IntentStatus = "allocated"
	IntentStatusPartial   IntentStatus = "partial"
	IntentStatusRejected  IntentStatus = "rejected"
)

// InvestmentIntent records every investment request, including the ones
// that were rejected or partially filled and therefore produced smaller
// (or no) ledger entries.
type InvestmentIntent struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	OfferingID  uuid.UUID
	Requested   decimal.Decimal
	Allocated   decimal.Decimal
	Status      IntentStatus
	OperationID *uuid.UUID
	CreatedAt   time.Time
}
