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

type VaultRequest struct {
	UserID         uuid.UUID
	PoolID         uuid.UUID
	Currency       domain.Currency
	Amount         decimal.Decimal
	IdempotencyKey *string
	TransactionID  *uuid.UUID
}

// DepositToVault moves funds from the user's available compartment into
// the pool's aggregated system account.
func (s *Service) DepositToVault(ctx context.Context, tx *sql.Tx, req VaultRequest) (*domain.Operation, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	amount := req.Currency.Quantized(req.Amount)

	pool, err := s.vaults.GetPoolForUpdate(ctx, tx, req.PoolID)
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	if pool.Currency != req.Currency {
		return nil, fmt.Errorf("DepositToVault: %w", domain.ErrCurrencyMismatch)
	}

	available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	poolAcct, err := s.accounts.GetOrCreate(ctx, tx, domain.VaultPoolRef(req.PoolID, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, available.ID, poolAcct.ID); err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}

	hash := hashRequest("vault_deposit", req.UserID.String(), req.PoolID.String(), amount.String())
	if existing, err := s.checkIdempotency(ctx, tx, domain.OpVaultDeposit, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	balance, err := s.entries.SumByAccountTx(ctx, tx, available.ID)
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("DepositToVault: available balance %s: %w", balance.String(), domain.ErrInsufficientBalance)
	}

	req.TransactionID, err = s.ensureTransaction(ctx, tx, req.TransactionID, req.UserID, domain.TransactionTypeVaultDeposit)
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}

	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpVaultDeposit,
		Entries: []ledger.EntryInput{
			{AccountID: available.ID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: req.Currency},
			{AccountID: poolAcct.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: req.Currency},
		},
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		TransactionID:  req.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}

	if err := s.audit(ctx, tx, domain.AuditActionVaultDeposited, "operation", op.ID, "", nil, nil); err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}

	logging.FromContext(ctx).Info("vault deposit completed",
		"operation_id", op.ID,
		"pool_id", req.PoolID,
		"amount", amount.String(),
	)
	return op, nil
}

// WithdrawalResult is either an executed withdrawal (Operation set) or a
// queued request waiting for liquidity (Queued set, no ledger entries).
type WithdrawalResult struct {
	Operation  *domain.Operation
	Withdrawal *domain.VaultWithdrawal
	Queued     bool
}

// WithdrawFromVault pays out from the pool account when it has the
// liquidity, otherwise it enqueues the request FIFO with no ledger write.
func (s *Service) WithdrawFromVault(ctx context.Context, tx *sql.Tx, req VaultRequest) (*WithdrawalResult, error) {
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}
	amount := req.Currency.Quantized(req.Amount)

	pool, err := s.vaults.GetPoolForUpdate(ctx, tx, req.PoolID)
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}
	if pool.Currency != req.Currency {
		return nil, fmt.Errorf("WithdrawFromVault: %w", domain.ErrCurrencyMismatch)
	}

	poolAcct, err := s.accounts.GetOrCreate(ctx, tx, domain.VaultPoolRef(req.PoolID, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}
	available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(req.UserID, domain.CompartmentAvailable, req.Currency))
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}
	if _, err := s.lockAccountsInOrder(ctx, tx, poolAcct.ID, available.ID); err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	hash := hashRequest("vault_withdraw", req.UserID.String(), req.PoolID.String(), amount.String())
	if prior, err := s.replayWithdrawal(ctx, tx, req.IdempotencyKey, hash); err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	} else if prior != nil {
		return prior, nil
	}

	poolBalance, err := s.entries.SumByAccountTx(ctx, tx, poolAcct.ID)
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	now := s.now()
	if poolBalance.LessThan(amount) {
		w := &domain.VaultWithdrawal{
			ID:             uuid.New(),
			PoolID:         req.PoolID,
			UserID:         req.UserID,
			Amount:         amount,
			Currency:       req.Currency,
			Status:         domain.WithdrawalStatusPending,
			IdempotencyKey: req.IdempotencyKey,
			RequestHash:    &hash,
			CreatedAt:      now,
		}
		if err := s.vaults.EnqueueWithdrawal(ctx, tx, w); err != nil {
			return nil, fmt.Errorf("WithdrawFromVault: %w", err)
		}
		if err := s.audit(ctx, tx, domain.AuditActionVaultQueued, "vault_withdrawal", w.ID, "", nil, nil); err != nil {
			return nil, fmt.Errorf("WithdrawFromVault: %w", err)
		}

		logging.FromContext(ctx).Info("vault withdrawal queued, insufficient liquidity",
			"withdrawal_id", w.ID,
			"pool_id", req.PoolID,
			"requested", amount.String(),
			"pool_balance", poolBalance.String(),
		)
		return &WithdrawalResult{Withdrawal: w, Queued: true}, nil
	}

	req.TransactionID, err = s.ensureTransaction(ctx, tx, req.TransactionID, req.UserID, domain.TransactionTypeVaultWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	op, err := s.executeWithdrawal(ctx, tx, poolAcct.ID, available.ID, amount, req.Currency, req.IdempotencyKey, &hash, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	w := &domain.VaultWithdrawal{
		ID:             uuid.New(),
		PoolID:         req.PoolID,
		UserID:         req.UserID,
		Amount:         amount,
		Currency:       req.Currency,
		Status:         domain.WithdrawalStatusCompleted,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    &hash,
		OperationID:    &op.ID,
		CreatedAt:      now,
		ProcessedAt:    &now,
	}
	if err := s.vaults.EnqueueWithdrawal(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	if err := s.recomputeStatus(ctx, tx, req.TransactionID); err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}

	logging.FromContext(ctx).Info("vault withdrawal executed",
		"operation_id", op.ID,
		"pool_id", req.PoolID,
		"amount", amount.String(),
	)
	return &WithdrawalResult{Operation: op, Withdrawal: w}, nil
}

// ProcessPendingWithdrawals drains the pool's pending queue in FIFO order
// while liquidity lasts. Rows claimed by a concurrent drainer are skipped;
// the first request the pool cannot cover stops the drain so the queue
// stays strictly FIFO.
func (s *Service) ProcessPendingWithdrawals(ctx context.Context, tx *sql.Tx, poolID uuid.UUID, limit int) ([]domain.VaultWithdrawal, error) {
	pool, err := s.vaults.GetPoolForUpdate(ctx, tx, poolID)
	if err != nil {
		return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
	}

	poolAcct, err := s.accounts.GetOrCreate(ctx, tx, domain.VaultPoolRef(poolID, pool.Currency))
	if err != nil {
		return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
	}

	claimed, err := s.vaults.ClaimPending(ctx, tx, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
	}

	balance, err := s.entries.SumByAccountTx(ctx, tx, poolAcct.ID)
	if err != nil {
		return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
	}

	var processed []domain.VaultWithdrawal
	for _, w := range claimed {
		if balance.LessThan(w.Amount) {
			break
		}

		available, err := s.accounts.GetOrCreate(ctx, tx, domain.UserAccountRef(w.UserID, domain.CompartmentAvailable, w.Currency))
		if err != nil {
			return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
		}

		op, err := s.executeWithdrawal(ctx, tx, poolAcct.ID, available.ID, w.Amount, w.Currency, nil, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
		}

		now := s.now()
		if err := s.vaults.MarkWithdrawal(ctx, tx, w.ID, domain.WithdrawalStatusCompleted, &op.ID, now); err != nil {
			return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
		}

		balance = balance.Sub(w.Amount)
		w.Status = domain.WithdrawalStatusCompleted
		w.OperationID = &op.ID
		w.ProcessedAt = &now
		processed = append(processed, w)
	}

	if len(processed) > 0 {
		logging.FromContext(ctx).Info("pending withdrawals drained",
			"pool_id", poolID,
			"processed", len(processed),
			"remaining_balance", balance.String(),
		)
	}
	return processed, nil
}

// replayWithdrawal rebuilds the result a withdrawal key already produced:
// the pending row while it waits in the queue, or the executed operation
// once liquidity (immediate or drained) paid it out.
func (s *Service) replayWithdrawal(ctx context.Context, tx *sql.Tx, key *string, requestHash string) (*WithdrawalResult, error) {
	if key == nil || *key == "" {
		return nil, nil
	}

	prior, err := s.vaults.GetWithdrawalByKey(ctx, tx, *key)
	if err != nil {
		return nil, fmt.Errorf("replayWithdrawal: %w", err)
	}
	if prior == nil {
		return nil, nil
	}

	if prior.RequestHash == nil || *prior.RequestHash != requestHash {
		return nil, fmt.Errorf("replayWithdrawal: %w", domain.ErrIdempotencyConflict)
	}

	if prior.Status == domain.WithdrawalStatusPending {
		return &WithdrawalResult{Withdrawal: prior, Queued: true}, nil
	}

	var op *domain.Operation
	if prior.OperationID != nil {
		op, err = s.operations.GetByID(ctx, *prior.OperationID)
		if err != nil {
			return nil, fmt.Errorf("replayWithdrawal: %w", err)
		}
	}
	return &WithdrawalResult{Operation: op, Withdrawal: prior}, nil
}

func (s *Service) executeWithdrawal(ctx context.Context, tx *sql.Tx, poolAcctID, userAcctID uuid.UUID, amount decimal.Decimal, currency domain.Currency, key *string, hash *string, transactionID *uuid.UUID) (*domain.Operation, error) {
	op, err := s.writer.Execute(ctx, tx, ledger.WriteRequest{
		Type: domain.OpVaultWithdraw,
		Entries: []ledger.EntryInput{
			{AccountID: poolAcctID, EntryType: domain.EntryTypeDebit, Amount: amount.Neg(), Currency: currency},
			{AccountID: userAcctID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: currency},
		},
		IdempotencyKey: key,
		RequestHash:    hash,
		TransactionID:  transactionID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.audit(ctx, tx, domain.AuditActionVaultWithdrawn, "operation", op.ID, "", nil, nil); err != nil {
		return nil, err
	}
	return op, nil
}
