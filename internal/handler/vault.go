package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type vaultService interface {
	CreateVaultPool(ctx context.Context, name string, currency domain.Currency) (*domain.VaultPool, error)
	GetVaultPool(ctx context.Context, id uuid.UUID) (*domain.VaultPool, error)
	ListVaultPools(ctx context.Context) ([]domain.VaultPool, error)
	GetVaultWithdrawal(ctx context.Context, id uuid.UUID) (*domain.VaultWithdrawal, error)
}

type VaultHandler struct {
	vaults vaultService
}

func NewVaultHandler(vaults vaultService) *VaultHandler {
	return &VaultHandler{vaults: vaults}
}

type createVaultPoolRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (r createVaultPoolRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}

	return errs
}

type vaultPoolDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func toVaultPoolDTO(p *domain.VaultPool) vaultPoolDTO {
	return vaultPoolDTO{
		ID:        p.ID,
		Name:      p.Name,
		Currency:  string(p.Currency),
		CreatedAt: p.CreatedAt,
	}
}

func (h *VaultHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createVaultPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	pool, err := h.vaults.CreateVaultPool(r.Context(), req.Name, domain.Currency(req.Currency))
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create vault pool", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toVaultPoolDTO(pool))
}

func (h *VaultHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	pool, err := h.vaults.GetVaultPool(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toVaultPoolDTO(pool))
}

func (h *VaultHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.vaults.ListVaultPools(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list vault pools", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]vaultPoolDTO, len(pools))
	for i := range pools {
		dtos[i] = toVaultPoolDTO(&pools[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *VaultHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	withdrawal, err := h.vaults.GetVaultWithdrawal(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(withdrawal))
}
