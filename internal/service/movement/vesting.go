package movement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type VestingLockRequest struct {
	UserID         uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	Term           time.Duration
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

// LockVesting moves funds from available to locked under a vesting wallet
// lock that matures after the term.
func (s *Service) LockVesting(ctx context.Context, tx *sql.Tx, req VestingLockRequest) (*domain.Operation, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	if req.Term <= 0 {
		return nil, fmt.Errorf("LockVesting: term: %w", domain.ErrInvalidAmount)
	}
	amount := req.Currency.Quantized(req.Amount)

	available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	locked, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentLocked, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, available.ID, locked.ID); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}

	hash := hashRequest("vesting_lock", req.UserID.String(), string(req.Currency), amount.String(), req.Term.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpVestingLock, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	balance, err := s.entries.SumByAccountTx(ctx, tx, available.ID)
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("LockVesting: available balance %s: %w", balance.String(), domain.ErrInsufficientBalance)
	}

	req.TransactionID, err = s.ensureTransaction(ctx, tx, req.TransactionID, req.UserID, domain.TransactionTypeVesting)
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpVestingLock,
		Entries: []ledger.EntryInput{
			{AccountID: available.ID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: req.Currency},
			{AccountID: locked.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}

	maturity := s.now().Add(req.Term)
	if err := s.locks.Create(ctx, tx, &domain.WalletLock{
		ID:          uuid.New(),
		AccountID:   locked.ID,
		OperationID: op.ID,
		Reason:      domain.LockReasonVesting,
		Amount:      amount,
		Remaining:   amount,
		MaturityAt:  &maturity,
		Status:      domain.WalletLockStatusActive,
		CreatedAt:   s.now(),
	}); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionVestingLocked, "operation", op.ID, "", nil, nil); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}

	logging.FromContext(ctx).Info("vesting locked",
		"operation_id", op.ID,
		"user_id", req.UserID,
		"amount", amount.String(),
		"maturity_at", maturity,
	)
	return op, nil
}

type VestingReleaseRequest struct {
	UserID         uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

// ReleaseVesting moves matured vesting funds from locked back to
// available. Only wallet locks with reason vesting and a passed maturity
// are consumed; investment locks sharing the compartment are never
// touched.
func (s *Service) ReleaseVesting(ctx context.Context, tx *sql.Tx, req VestingReleaseRequest) (*domain.Operation, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}
	amount := req.Currency.Quantized(req.Amount)

	locked, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentLocked, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}
	available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, locked.ID, available.ID); err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}

	// A retry of a release that already consumed its matured locks must
	// replay the stored operation, so the guard runs before coverage.
	hash := hashRequest("vesting_release", req.UserID.String(), string(req.Currency), amount.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpVestingRelease, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	now := s.now()
	matured, err := s.locks.MaturedForUpdate(ctx, tx, locked.ID, domain.LockReasonVesting, now)
	if err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}

	var coverage decimal.Decimal
	for _, l := range matured {
		coverage = coverage.Add(l.Remaining)
	}
	if coverage.LessThan(amount) {
		return nil, fmt.Errorf("ReleaseVesting: matured coverage %s: %w", coverage.String(), domain.ErrNoMaturedLocks)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpVestingRelease,
		Entries: []ledger.EntryInput{
			{AccountID: locked.ID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: req.Currency},
			{AccountID: available.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}

	// Consume matured locks oldest maturity first until the released
	// amount is covered.
	outstanding := amount
	for _, l := range matured {
		if !outstanding.IsPositive() {
			break
		}
		take := decimal.Min(outstanding, l.Remaining)
		if err := s.locks.Consume(ctx, tx, l.ID, l.Remaining.Sub(take), now); err != nil {
			return nil, fmt.Errorf("ReleaseVesting: %w", err)
		}
		outstanding = outstanding.Sub(take)
	}

	if err := s.audit(ctx, tx, domain.AuditActionVestingReleased, "operation", op.ID, "", nil, nil); err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}

	logging.FromContext(ctx).Info("vesting released",
		"operation_id", op.ID,
		"user_id", req.UserID,
		"amount", amount.String(),
	)
	return op, nil
}
