package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type transactionService interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ListTransactionOperations(ctx context.Context, transactionID uuid.UUID) ([]domain.Operation, error)
	RecomputeStatus(ctx context.Context, transactionID uuid.UUID) (domain.TransactionStatus, error)
}

type TransactionHandler struct {
	transactions transactionService
}

func NewTransactionHandler(transactions transactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

type transactionDTO struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Operations []operationDTO `json:"operations,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	txn, err := h.transactions.GetTransaction(r.Context(), transactionID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	ops, err := h.transactions.ListTransactionOperations(r.Context(), transactionID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list operations", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := transactionDTO{
		ID:        txn.ID,
		UserID:    txn.UserID,
		Type:      string(txn.Type),
		Status:    string(txn.Status),
		CreatedAt: txn.CreatedAt,
		UpdatedAt: txn.UpdatedAt,
	}
	for i := range ops {
		dto.Operations = append(dto.Operations, toOperationDTO(&ops[i]))
	}

	RespondSuccess(w, http.StatusOK, dto)
}

func (h *TransactionHandler) RecomputeStatus(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	status, err := h.transactions.RecomputeStatus(r.Context(), transactionID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("status recompute failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"transaction_id": transactionID,
		"status":         string(status),
	})
}
