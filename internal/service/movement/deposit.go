package movement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type DepositRequest struct {
	UserID         uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

// RecordDeposit books an incoming deposit from the system clearing pool
// into the user's blocked compartment, where it waits for a compliance
// decision.
func (s *Service) RecordDeposit(ctx context.Context, tx *sql.Tx, req DepositRequest) (*domain.Operation, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	amount := req.Currency.Quantized(req.Amount)

	clearing, err := s.accounts.GetOrCreate(ctx, tx, domain.ClearingPoolRef(req.Currency))
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	blocked, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentBlocked, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}

	if _, err := s.lockAccountsInOrder(ctx, tx, clearing.ID, blocked.ID); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}

	hash := hashRequest("deposit", req.UserID.String(), string(req.Currency), amount.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpDepositRecorded, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	req.TransactionID, err = s.ensureTransaction(ctx, tx, req.TransactionID, req.UserID, domain.TransactionTypeDeposit)
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpDepositRecorded,
		Entries: []ledger.EntryInput{
			{AccountID: clearing.ID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: req.Currency},
			{AccountID: blocked.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionDepositRecorded, "operation", op.ID, "", nil, nil); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit recorded",
		"operation_id", op.ID,
		"user_id", req.UserID,
		"amount", amount.String(),
		"currency", req.Currency,
	)
	return op, nil
}

type ComplianceRequest struct {
	UserID         uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

// ReleaseDeposit moves compliance-approved funds from the user's blocked
// compartment to the available one.
func (s *Service) ReleaseDeposit(ctx context.Context, tx *sql.Tx, req ComplianceRequest) (*domain.Operation, error) {
	return s.decideDeposit(ctx, tx, req, true)
}

// RejectDeposit returns blocked funds to the clearing pool. A reason is
// mandatory: rejections are compliance actions.
func (s *Service) RejectDeposit(ctx context.Context, tx *sql.Tx, req ComplianceRequest) (*domain.Operation, error) {
	return s.decideDeposit(ctx, tx, req, false)
}

func (s *Service) decideDeposit(ctx context.Context, tx *sql.Tx, req ComplianceRequest, approve bool) (*domain.Operation, error) {
	name := "RejectDeposit"
	if approve {
		name = "ReleaseDeposit"
	}

	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	amount := req.Currency.Quantized(req.Amount)

	blocked, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentBlocked, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var counterpart *domain.Account
	if approve {
		counterpart, err = s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	} else {
		counterpart, err = s.accounts.GetOrCreate(ctx, tx, domain.ClearingPoolRef(req.Currency))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if _, err := s.lockAccountsInOrder(ctx, tx, blocked.ID, counterpart.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	opType := domain.OpComplianceReject
	action := domain.AuditActionDepositRejected
	if approve {
		opType = domain.OpComplianceRelease
		action = domain.AuditActionDepositReleased
	}

	// The replay check runs before the balance check: a retry of a
	// decision that already moved the blocked funds must return the
	// stored operation, not fail on the balance it consumed.
	hash := hashRequest(string(opType), req.UserID.String(), string(req.Currency), amount.String())
	if existing, err := s.checkIdempotency(ctx, tx, opType, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	} else if existing != nil {
		return existing, nil
	}

	balance, err := s.entries.SumByAccountTx(ctx, tx, blocked.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%s: blocked balance %s: %w", name, balance.String(), domain.ErrInsufficientBalance)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: opType,
		Entries: []ledger.EntryInput{
			{AccountID: blocked.ID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: req.Currency},
			{AccountID: counterpart.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if err := s.audit(ctx, tx, action, "operation", op.ID, req.Reason, nil, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	logging.FromContext(ctx).Info("compliance decision applied",
		"operation_id", op.ID,
		"operation_type", opType,
		"user_id", req.UserID,
		"amount", amount.String(),
	)
	return op, nil
}
