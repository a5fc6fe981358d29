package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency      = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidCompartment   = &AppError{http.StatusBadRequest, "INVALID_COMPARTMENT", "Invalid compartment"}
	ErrCurrencyMismatch     = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrInsufficientBalance  = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Insufficient balance"}
	ErrUnbalancedOperation  = &AppError{http.StatusUnprocessableEntity, "UNBALANCED_OPERATION", "Ledger entries do not sum to zero"}
	ErrIdempotencyConflict  = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrOfferingClosed       = &AppError{http.StatusUnprocessableEntity, "OFFERING_CLOSED", "Offering is closed"}
	ErrOperationNotComplete = &AppError{http.StatusUnprocessableEntity, "OPERATION_NOT_COMPLETED", "Operation is not completed"}
	ErrMissingReason        = &AppError{http.StatusBadRequest, "MISSING_REASON", "Reason is required"}
	ErrInvalidLockReason    = &AppError{http.StatusBadRequest, "INVALID_LOCK_REASON", "Invalid wallet lock reason"}
	ErrNoMaturedLocks       = &AppError{http.StatusUnprocessableEntity, "NO_MATURED_LOCKS", "No matured locks cover the requested amount"}
)
