package movement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type ReversalRequest struct {
	OperationID    uuid.UUID
	Reason         string
	IdempotencyKey *string
}

// ReverseOperation corrects a completed operation by writing a new
// operation whose entries mirror the original's. The original rows are
// never touched.
func (s *Service) ReverseOperation(ctx context.Context, tx *sql.Tx, req ReversalRequest) (*domain.Operation, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("ReverseOperation: %w", domain.ErrMissingReason)
	}

	original, err := s.operations.GetByID(ctx, req.OperationID)
	if err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}
	if original.Status != domain.OperationStatusCompleted {
		return nil, fmt.Errorf("ReverseOperation: %w", domain.ErrOperationNotComplete)
	}

	entries, err := s.entries.GetByOperationID(ctx, original.ID)
	if err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountID)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, ids...); err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}

	hash := hashRequest("reversal", original.ID.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpReversal, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	mirrored := make([]ledger.EntryInput, 0, len(entries))
	for _, e := range entries {
		entryType := domain.EntryTypeCredit
		if e.EntryType == domain.EntryTypeCredit {
			entryType = domain.EntryTypeDebit
		}
		mirrored = append(mirrored, ledger.EntryInput{
			AccountID: e.AccountID,
			EntryType: entryType,
			Amount:    e.Amount.Neg(),
			Currency:  e.Currency,
		})
	}

	metadata, err := json.Marshal(map[string]string{"reverses": original.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("ReverseOperation: marshal metadata: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type:           domain.OpReversal,
		Entries:        mirrored,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  original.TransactionID,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionOperationReversed, "operation", original.ID, req.Reason, nil, nil); err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, original.TransactionID); err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}

	logging.FromContext(ctx).Info("operation reversed",
		"operation_id", op.ID,
		"reverses", original.ID,
		"reason", req.Reason,
	)
	return op, nil
}

type AdjustmentRequest struct {
	OperationID    uuid.UUID
	Entries        []ledger.EntryInput
	Reason         string
	IdempotencyKey *string
}

// AdjustOperation writes a caller-provided balanced correction referencing
// a completed operation. The writer still enforces the zero-sum invariant
// on the provided entries.
func (s *Service) AdjustOperation(ctx context.Context, tx *sql.Tx, req AdjustmentRequest) (*domain.Operation, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("AdjustOperation: %w", domain.ErrMissingReason)
	}

	original, err := s.operations.GetByID(ctx, req.OperationID)
	if err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}
	if original.Status != domain.OperationStatusCompleted {
		return nil, fmt.Errorf("AdjustOperation: %w", domain.ErrOperationNotComplete)
	}

	ids := make([]uuid.UUID, 0, len(req.Entries))
	for _, e := range req.Entries {
		ids = append(ids, e.AccountID)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, ids...); err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}

	hash := hashRequest("adjustment", original.ID.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpAdjustment, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	metadata, err := json.Marshal(map[string]string{"adjusts": original.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("AdjustOperation: marshal metadata: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type:           domain.OpAdjustment,
		Entries:        req.Entries,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  original.TransactionID,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionOperationAdjusted, "operation", original.ID, req.Reason, nil, nil); err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, original.TransactionID); err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}

	logging.FromContext(ctx).Info("operation adjusted",
		"operation_id", op.ID,
		"adjusts", original.ID,
		"reason", req.Reason,
	)
	return op, nil
}
