package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidCompartment   = errors.New("invalid compartment")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnbalancedOperation  = errors.New("ledger entries do not sum to zero")
	ErrIdempotencyConflict  = errors.New("idempotency key already used with a different request")
	ErrOfferingClosed       = errors.New("offering is closed")
	ErrOperationNotComplete = errors.New("operation is not completed")
	ErrMissingReason        = errors.New("reason is required")
	ErrInvalidLockReason    = errors.New("invalid wallet lock reason")
	ErrNoMaturedLocks       = errors.New("no matured locks cover the requested amount")
)
