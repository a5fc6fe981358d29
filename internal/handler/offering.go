package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type offeringService interface {
	CreateOffering(ctx context.Context, name string, currency domain.Currency, capacity decimal.Decimal) (*domain.Offering, error)
	GetOffering(ctx context.Context, id uuid.UUID) (*domain.Offering, error)
	GetInvestmentIntent(ctx context.Context, id uuid.UUID) (*domain.InvestmentIntent, error)
}

type OfferingHandler struct {
	offerings offeringService
}

func NewOfferingHandler(offerings offeringService) *OfferingHandler {
	return &OfferingHandler{offerings: offerings}
}

type createOfferingRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Capacity string `json:"capacity"`
}

func (r createOfferingRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be AED, USD, or SAR"})
	}
	if r.Capacity == "" {
		errs = append(errs, FieldError{Field: "capacity", Message: "required"})
	} else if capacity, err := decimal.NewFromString(r.Capacity); err != nil || !capacity.IsPositive() {
		errs = append(errs, FieldError{Field: "capacity", Message: "must be a decimal greater than 0"})
	}

	return errs
}

type offeringDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Capacity  string    `json:"capacity"`
	Allocated string    `json:"allocated"`
	Remaining string    `json:"remaining"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toOfferingDTO(o *domain.Offering) offeringDTO {
	return offeringDTO{
		ID:        o.ID,
		Name:      o.Name,
		Currency:  string(o.Currency),
		Capacity:  o.Capacity.String(),
		Allocated: o.Allocated.String(),
		Remaining: o.Remaining().String(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func (h *OfferingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOfferingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	capacity, _ := decimal.NewFromString(req.Capacity)
	offering, err := h.offerings.CreateOffering(r.Context(), req.Name, domain.Currency(req.Currency), capacity)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create offering", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOfferingDTO(offering))
}

func (h *OfferingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	offering, err := h.offerings.GetOffering(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toOfferingDTO(offering))
}

func (h *OfferingHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	intent, err := h.offerings.GetInvestmentIntent(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"id":           intent.ID,
		"user_id":      intent.UserID,
		"offering_id":  intent.OfferingID,
		"requested":    intent.Requested.String(),
		"allocated":    intent.Allocated.String(),
		"status":       string(intent.Status),
		"operation_id": intent.OperationID,
		"created_at":   intent.CreatedAt,
	})
}
