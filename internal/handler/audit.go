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

type auditService interface {
	ListAuditRecords(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditRecord, error)
}

type AuditHandler struct {
	audits auditService
}

func NewAuditHandler(audits auditService) *AuditHandler {
	return &AuditHandler{audits: audits}
}

type auditRecordDTO struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Reason     string          `json:"reason,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	if entityType == "" {
		RespondValidationError(w, []FieldError{{Field: "entity_type", Message: "required"}})
		return
	}

	entityID, err := uuid.Parse(r.URL.Query().Get("entity_id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "entity_id", Message: "must be a UUID"}})
		return
	}

	records, err := h.audits.ListAuditRecords(r.Context(), entityType, entityID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list audit records", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]auditRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = auditRecordDTO{
			ID:         rec.ID,
			ActorID:    rec.ActorID,
			ActorRole:  rec.ActorRole,
			Action:     string(rec.Action),
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Reason:     rec.Reason,
			Before:     rec.Before,
			After:      rec.After,
			CreatedAt:  rec.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
