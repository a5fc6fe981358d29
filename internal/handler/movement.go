package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/logging"
	"github.com/tamra-invest/ledger-engine/internal/service/movement"
)

type movementService interface {
	RecordDeposit(ctx context.Context, req movement.DepositRequest) (*domain.Operation, error)
	ReleaseDeposit(ctx context.Context, req movement.ComplianceRequest) (*domain.Operation, error)
	RejectDeposit(ctx context.Context, req movement.ComplianceRequest) (*domain.Operation, error)
	LockInvestment(ctx context.Context, req movement.InvestmentRequest) (*movement.InvestmentResult, error)
	DepositToVault(ctx context.Context, req movement.VaultRequest) (*domain.Operation, error)
	WithdrawFromVault(ctx context.Context, req movement.VaultRequest) (*movement.WithdrawalResult, error)
	LockVesting(ctx context.Context, req movement.VestingLockRequest) (*domain.Operation, error)
	ReleaseVesting(ctx context.Context, req movement.VestingReleaseRequest) (*domain.Operation, error)
	ReverseOperation(ctx context.Context, req movement.ReversalRequest) (*domain.Operation, error)
	AdjustOperation(ctx context.Context, req movement.AdjustmentRequest) (*domain.Operation, error)
}

type MovementHandler struct {
	movements movementService
}

func NewMovementHandler(movements movementService) *MovementHandler {
	return &MovementHandler{movements: movements}
}

type operationDTO struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func toOperationDTO(op *domain.Operation) operationDTO {
	return operationDTO{
		ID:            op.ID,
		Type:          string(op.Type),
		Status:        string(op.Status),
		TransactionID: op.TransactionID,
		Metadata:      op.Metadata,
		CreatedAt:     op.CreatedAt,
		CompletedAt:   op.CompletedAt,
	}
}

type fundMovementRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	Currency string    `json:"currency"`
	Amount   string    `json:"amount"`
	Reason   string    `json:"reason,omitempty"`
}

func (r fundMovementRequest) Validate() []FieldError {
	var errs []FieldError

	if r.UserID == uuid.Nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}

	errs = append(errs, validateAmountField(r.Amount)...)
	return errs
}

func validateAmountField(raw string) []FieldError {
	if raw == "" {
		return []FieldError{{Field: "amount", Message: "required"}}
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return []FieldError{{Field: "amount", Message: "must be a decimal number"}}
	}
	if !amount.IsPositive() {
		return []FieldError{{Field: "amount", Message: "must be greater than 0"}}
	}
	return nil
}

func idempotencyKey(r *http.Request) *string {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return nil
	}
	return &key
}

func (h *MovementHandler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req fundMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	op, err := h.movements.RecordDeposit(r.Context(), movement.DepositRequest{
		UserID:         req.UserID,
		Currency:       domain.Currency(req.Currency),
		Amount:         amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("deposit recording failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/operations/%s", op.ID))
	RespondSuccess(w, http.StatusCreated, toOperationDTO(op))
}

func (h *MovementHandler) ReleaseDeposit(w http.ResponseWriter, r *http.Request) {
	h.decideDeposit(w, r, h.movements.ReleaseDeposit)
}

func (h *MovementHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.decideDeposit(w, r, h.movements.RejectDeposit)
}

func (h *MovementHandler) decideDeposit(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, req movement.ComplianceRequest) (*domain.Operation, error),
) {
	var req fundMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	op, err := decide(r.Context(), movement.ComplianceRequest{
		UserID:         req.UserID,
		Currency:       domain.Currency(req.Currency),
		Amount:         amount,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("compliance decision failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toOperationDTO(op))
}

type investmentLockRequest struct {
	UserID     uuid.UUID `json:"user_id"`
	OfferingID uuid.UUID `json:"offering_id"`
	Currency   string    `json:"currency"`
	Amount     string    `json:"amount"`
}

func (r investmentLockRequest) Validate() []FieldError {
	var errs []FieldError

	if r.UserID == uuid.Nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	}
	if r.OfferingID == uuid.Nil {
		errs = append(errs, FieldError{Field: "offering_id", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}

	errs = append(errs, validateAmountField(r.Amount)...)
	return errs
}

type intentDTO struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	Requested string    `json:"requested"`
	Allocated string    `json:"allocated"`
}

func (h *MovementHandler) LockInvestment(w http.ResponseWriter, r *http.Request) {
	var req investmentLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	result, err := h.movements.LockInvestment(r.Context(), movement.InvestmentRequest{
		UserID:         req.UserID,
		OfferingID:     req.OfferingID,
		Currency:       domain.Currency(req.Currency),
		Amount:         amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("investment lock failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	payload := map[string]any{"allocated": result.Allocated.String()}
	if result.Intent != nil {
		payload["intent"] = intentDTO{
			ID:        result.Intent.ID,
			Status:    string(result.Intent.Status),
			Requested: result.Intent.Requested.String(),
			Allocated: result.Intent.Allocated.String(),
		}
	}
	if result.Operation != nil {
		payload["operation"] = toOperationDTO(result.Operation)
	}

	RespondSuccess(w, http.StatusCreated, payload)
}

type vaultMovementRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	PoolID   uuid.UUID `json:"pool_id"`
	Currency string    `json:"currency"`
	Amount   string    `json:"amount"`
}

func (r vaultMovementRequest) Validate() []FieldError {
	var errs []FieldError

	if r.UserID == uuid.Nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	}
	if r.PoolID == uuid.Nil {
		errs = append(errs, FieldError{Field: "pool_id", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}

	errs = append(errs, validateAmountField(r.Amount)...)
	return errs
}

func (r vaultMovementRequest) toServiceRequest(key *string) movement.VaultRequest {
	amount, _ := decimal.NewFromString(r.Amount)
	return movement.VaultRequest{
		UserID:         r.UserID,
		PoolID:         r.PoolID,
		Currency:       domain.Currency(r.Currency),
		Amount:         amount,
		IdempotencyKey: key,
	}
}

func (h *MovementHandler) DepositToVault(w http.ResponseWriter, r *http.Request) {
	var req vaultMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	op, err := h.movements.DepositToVault(r.Context(), req.toServiceRequest(idempotencyKey(r)))
	if err != nil {
		logging.FromContext(r.Context()).Warn("vault deposit failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOperationDTO(op))
}

type withdrawalDTO struct {
	ID          uuid.UUID  `json:"id"`
	PoolID      uuid.UUID  `json:"pool_id"`
	Status      string     `json:"status"`
	Amount      string     `json:"amount"`
	Position    int64      `json:"position"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func toWithdrawalDTO(wd *domain.VaultWithdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:          wd.ID,
		PoolID:      wd.PoolID,
		Status:      string(wd.Status),
		Amount:      wd.Amount.String(),
		Position:    wd.Position,
		ProcessedAt: wd.ProcessedAt,
	}
}

func (h *MovementHandler) WithdrawFromVault(w http.ResponseWriter, r *http.Request) {
	var req vaultMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.movements.WithdrawFromVault(r.Context(), req.toServiceRequest(idempotencyKey(r)))
	if err != nil {
		logging.FromContext(r.Context()).Warn("vault withdrawal failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	payload := map[string]any{"queued": result.Queued}
	if result.Withdrawal != nil {
		payload["withdrawal"] = toWithdrawalDTO(result.Withdrawal)
	}
	if result.Operation != nil {
		payload["operation"] = toOperationDTO(result.Operation)
	}

	status := http.StatusCreated
	if result.Queued {
		status = http.StatusAccepted
	}
	RespondSuccess(w, status, payload)
}

type vestingLockRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	Currency string    `json:"currency"`
	Amount   string    `json:"amount"`
	TermDays int       `json:"term_days"`
}

func (r vestingLockRequest) Validate() []FieldError {
	var errs []FieldError

	if r.UserID == uuid.Nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}
	if r.TermDays <= 0 {
		errs = append(errs, FieldError{Field: "term_days", Message: "must be greater than 0"})
	}

	errs = append(errs, validateAmountField(r.Amount)...)
	return errs
}

func (h *MovementHandler) LockVesting(w http.ResponseWriter, r *http.Request) {
	var req vestingLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	op, err := h.movements.LockVesting(r.Context(), movement.VestingLockRequest{
		UserID:         req.UserID,
		Currency:       domain.Currency(req.Currency),
		Amount:         amount,
		Term:           time.Duration(req.TermDays) * 24 * time.Hour,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("vesting lock failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOperationDTO(op))
}

func (h *MovementHandler) ReleaseVesting(w http.ResponseWriter, r *http.Request) {
	var req fundMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	op, err := h.movements.ReleaseVesting(r.Context(), movement.VestingReleaseRequest{
		UserID:         req.UserID,
		Currency:       domain.Currency(req.Currency),
		Amount:         amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("vesting release failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toOperationDTO(op))
}

type reversalHTTPRequest struct {
	Reason string `json:"reason"`
}

func (h *MovementHandler) ReverseOperation(w http.ResponseWriter, r *http.Request) {
	operationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req reversalHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if req.Reason == "" {
		RespondValidationError(w, []FieldError{{Field: "reason", Message: "required"}})
		return
	}

	op, err := h.movements.ReverseOperation(r.Context(), movement.ReversalRequest{
		OperationID:    operationID,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("reversal failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOperationDTO(op))
}

type adjustmentHTTPRequest struct {
	Reason  string `json:"reason"`
	Entries []struct {
		AccountID uuid.UUID `json:"account_id"`
		EntryType string    `json:"entry_type"`
		Amount    string    `json:"amount"`
		Currency  string    `json:"currency"`
	} `json:"entries"`
}

func (h *MovementHandler) AdjustOperation(w http.ResponseWriter, r *http.Request) {
	operationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req adjustmentHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.Reason == "" {
		fields = append(fields, FieldError{Field: "reason", Message: "required"})
	}
	if len(req.Entries) < 2 {
		fields = append(fields, FieldError{Field: "entries", Message: "at least two entries required"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries := make([]ledger.EntryInput, 0, len(req.Entries))
	for i, e := range req.Entries {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			RespondValidationError(w, []FieldError{{
				Field:   fmt.Sprintf("entries[%d].amount", i),
				Message: "must be a decimal number",
			}})
			return
		}
		entries = append(entries, ledger.EntryInput{
			AccountID: e.AccountID,
			EntryType: domain.EntryType(e.EntryType),
			Amount:    amount,
			Currency:  domain.Currency(e.Currency),
		})
	}

	op, err := h.movements.AdjustOperation(r.Context(), movement.AdjustmentRequest{
		OperationID:    operationID,
		Entries:        entries,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("adjustment failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOperationDTO(op))
}
