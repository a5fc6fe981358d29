package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type accountService interface {
	EnsureAccount(ctx context.Context, ref domain.AccountRef) (*domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	ListWalletLocks(ctx context.Context, accountID uuid.UUID) ([]domain.WalletLock, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type ensureAccountRequest struct {
	OwnerID     *uuid.UUID `json:"owner_id"`
	Compartment string     `json:"compartment"`
	ScopeType   string     `json:"scope_type"`
	ScopeID     *uuid.UUID `json:"scope_id"`
	Currency    string     `json:"currency"`
}

func (r ensureAccountRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Compartment == "" {
		errs = append(errs, FieldError{Field: "compartment", Message: "required"})
	} else if !domain.Compartment(r.Compartment).IsValid() {
		errs = append(errs, FieldError{Field: "compartment", Message: "must be available, blocked, locked, or system_pool"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}

	return errs
}

type accountDTO struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     *uuid.UUID `json:"owner_id"`
	Compartment string     `json:"compartment"`
	ScopeType   string     `json:"scope_type,omitempty"`
	ScopeID     *uuid.UUID `json:"scope_id,omitempty"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		Compartment: string(a.Compartment),
		ScopeType:   string(a.ScopeType),
		ScopeID:     a.ScopeID,
		Currency:    string(a.Currency),
		CreatedAt:   a.CreatedAt,
	}
}

type entryDTO struct {
	ID          uuid.UUID `json:"id"`
	OperationID uuid.UUID `json:"operation_id"`
	AccountID   uuid.UUID `json:"account_id"`
	EntryType   string    `json:"entry_type"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

func toEntryDTO(e *domain.LedgerEntry) entryDTO {
	return entryDTO{
		ID:          e.ID,
		OperationID: e.OperationID,
		AccountID:   e.AccountID,
		EntryType:   string(e.EntryType),
		Amount:      e.Amount.String(),
		Currency:    string(e.Currency),
		CreatedAt:   e.CreatedAt,
	}
}

func (h *AccountHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.EnsureAccount(r.Context(), domain.AccountRef{
		OwnerID:     req.OwnerID,
		Compartment: domain.Compartment(req.Compartment),
		ScopeType:   domain.ScopeType(req.ScopeType),
		ScopeID:     req.ScopeID,
		Currency:    domain.Currency(req.Currency),
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to ensure account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	balance, err := h.accounts.GetBalance(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to read balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"account_id": account.ID,
		"currency":   string(account.Currency),
		"balance":    balance.String(),
	})
}

func (h *AccountHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	limit, offset := paginationParams(r, 50, 200)

	entries, total, err := h.accounts.ListEntries(r.Context(), accountID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list entries", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]entryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

type walletLockDTO struct {
	ID          uuid.UUID  `json:"id"`
	OperationID uuid.UUID  `json:"operation_id"`
	Reason      string     `json:"reason"`
	Amount      string     `json:"amount"`
	Remaining   string     `json:"remaining"`
	MaturityAt  *time.Time `json:"maturity_at,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

func (h *AccountHandler) ListLocks(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	locks, err := h.accounts.ListWalletLocks(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list wallet locks", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]walletLockDTO, len(locks))
	for i, l := range locks {
		dtos[i] = walletLockDTO{
			ID:          l.ID,
			OperationID: l.OperationID,
			Reason:      string(l.Reason),
			Amount:      l.Amount.String(),
			Remaining:   l.Remaining.String(),
			MaturityAt:  l.MaturityAt,
			Status:      string(l.Status),
			CreatedAt:   l.CreatedAt,
			ReleasedAt:  l.ReleasedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func paginationParams(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
