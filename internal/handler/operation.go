package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type operationService interface {
	GetOperation(ctx context.Context, id uuid.UUID) (*domain.Operation, error)
	ListOperationEntries(ctx context.Context, operationID uuid.UUID) ([]domain.LedgerEntry, error)
}

type OperationHandler struct {
	operations operationService
}

func NewOperationHandler(operations operationService) *OperationHandler {
	return &OperationHandler{operations: operations}
}

func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	operationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	op, err := h.operations.GetOperation(r.Context(), operationID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	entries, err := h.operations.ListOperationEntries(r.Context(), operationID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list operation entries", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]entryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"operation": toOperationDTO(op),
		"entries":   dtos,
	})
}
