package movement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type InvestmentRequest struct {
	UserID         uuid.UUID
	OfferingID     uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

/// InvestmentResult reports what the engine actually did with the request:
// a full allocation, a partial one capped by remaining capacity, or a
// rejection with no ledger entries at all.
type InvestmentResult struct {
	Intent    *domain.InvestmentIntent
	Operation *domain.Operation
	Allocated decimal.Decimal
}

// LockInvestment allocates min(requested, remaining capacity) of the
// offering and moves that much from the user's available compartment to
// the locked one, tagged with an investment wallet lock. The offering row
// is locked first, so concurrent requests serialize on capacity.
func (s *Service) LockInvestment(ctx context.Context, tx *sql.Tx, req InvestmentRequest) (*InvestmentResult, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	requested := req.Currency.Quantized(req.Amount)

	offering, err := s.offerings.GetForUpdate(ctx, tx, req.OfferingID)
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	if offering.Currency != req.Currency {
		return nil, fmt.Errorf("LockInvestment: %w", domain.ErrCurrencyMismatch)
	}
	if offering.Status != domain.OfferingStatusOpen {
		return nil, fmt.Errorf("LockInvestment: %w", domain.ErrOfferingClosed)
	}

	hash := hashRequest("investment", req.UserID.String(), req.OfferingID.String(), requested.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpInvestmentLock, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	} else if existing != nil {
		return s.replayInvestment(ctx, existing)
	}

	remaining := offering.Remaining()
	if !remaining.IsPositive() {
		intent, err := s.recordIntent(ctx, tx, req, requested, decimal.Zero, domain.IntentStatusRejected, nil)
		if err != nil {
			return nil, fmt.Errorf("LockInvestment: %w", err)
		}
		logging.FromContext(ctx).Info("investment rejected, offering at capacity",
			"intent_id", intent.ID,
			"offering_id", req.OfferingID,
			"requested", requested.String(),
		)
		return &InvestmentResult{Intent: intent, Allocated: decimal.Zero}, nil
	}

	allocated := decimal.Min(requested, remaining)

	available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	locked, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentLocked, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, available.ID, locked.ID); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	balance, err := s.entries.SumByAccountTx(ctx, tx, available.ID)
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	if balance.LessThan(allocated) {
		return nil, fmt.Errorf("LockInvestment: available balance %s: %w", balance.String(), domain.ErrInsufficientBalance)
	}

	req.TransactionID, err = s.ensureTransaction(ctx, tx, req.TransactionID, req.UserID, domain.TransactionTypeInvestment)
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	metadata, err := json.Marshal(map[string]string{
		"offering_id": req.OfferingID.String(),
		"requested":   requested.String(),
		"allocated":   allocated.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: marshal metadata: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpInvestmentLock,
		Entries: []ledger.EntryInput{
			{AccountID: available.ID, EntryType: domain.EntryTypeDebit, Amount: allocated.Neg(), Currency: req.Currency},
			{AccountID: locked.ID, EntryType: domain.EntryTypeCredit, Amount: allocated, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	if err := s.locks.Create(ctx, tx, &domain.WalletLock{
		ID:          uuid.New(),
		AccountID:   locked.ID,
		OperationID: op.ID,
		Reason:      domain.LockReasonInvestment,
		Amount:      allocated,
		Remaining:   allocated,
		Status:      domain.WalletLockStatusActive,
		CreatedAt:   s.now(),
	}); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	if err := s.offerings.AddAllocated(ctx, tx, req.OfferingID, allocated); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	intentStatus := domain.IntentStatusAllocated
	if allocated.LessThan(requested) {
		intentStatus = domain.IntentStatusPartial
	}
	intent, err := s.recordIntent(ctx, tx, req, requested, allocated, intentStatus, &op.ID)
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionInvestmentLocked, "operation", op.ID, "", nil, nil); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}

	logging.FromContext(ctx).Info("investment locked",
		"operation_id", op.ID,
		"offering_id", req.OfferingID,
		"requested", requested.String(),
		"allocated", allocated.String(),
		"intent_status", intentStatus,
	)
	return &InvestmentResult{Intent: intent, Operation: op, Allocated: allocated}, nil
}

func (s *Service) recordIntent(ctx context.Context, tx *sql.Tx, req InvestmentRequest, requested, allocated decimal.Decimal, status domain.IntentStatus, operationID *uuid.UUID) (*domain.InvestmentIntent, error) {
	intent := &domain.InvestmentIntent{
		ID:          uuid.New(),
		UserID:      req.UserID,
		OfferingID:  req.OfferingID,
		Requested:   requested,
		Allocated:   allocated,
		Status:      status,
		OperationID: operationID,
		CreatedAt:   s.now(),
	}
	if err := s.offerings.CreateIntent(ctx, tx, intent); err != nil {
		return nil, err
	}
	if status == domain.IntentStatusRejected {
		if err := s.audit(ctx, tx, domain.AuditActionInvestmentRejected, "investment_intent", intent.ID, "offering at capacity", nil, nil); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

// replayInvestment rebuilds the result of a previously executed request
// from its persisted operation and intent, without touching the ledger.
func (s *Service) replayInvestment(ctx context.Context, op *domain.Operation) (*InvestmentResult, error) {
	intent, err := s.offerings.GetIntentByOperationID(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("replayInvestment: %w", err)
	}
	return &InvestmentResult{Intent: intent, Operation: op, Allocated: intent.Allocated}, nil
}
