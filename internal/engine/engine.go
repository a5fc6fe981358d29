package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/repository"
	"github.com/tamra-invest/ledger-engine/internal/service/movement"
	"github.com/tamra-invest/ledger-engine/internal/service/status"
)

// Engine is the saga orchestrator and the only component that commits.
// Each exported method is one unit of work: everything inside either
// commits together or leaves no trace.
type Engine struct {
	db           *repository.DB
	movements    *movement.Service
	status       *status.Engine
	reader       *ledger.Reader
	accounts     *repository.AccountRepository
	operations   *repository.OperationRepository
	entries      *repository.LedgerRepository
	transactions *repository.TransactionRepository
	vaults       *repository.VaultRepository
	offerings    *repository.OfferingRepository
	locks        *repository.WalletLockRepository
	audits       *repository.AuditRepository
	now          func() time.Time
}

// New wires the engine on top of one *sql.DB. Pass nil for now to use the
// wall clock; tests inject a fixed clock for maturity comparisons.
func New(pool *sql.DB, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	db := repository.NewDB(pool)
	accounts := repository.NewAccountRepository(pool)
	operations := repository.NewOperationRepository(pool)
	entries := repository.NewLedgerRepository(pool)
	transactions := repository.NewTransactionRepository(pool)
	locks := repository.NewWalletLockRepository(pool)
	offerings := repository.NewOfferingRepository(pool)
	vaults := repository.NewVaultRepository(pool)
	audits := repository.NewAuditRepository(pool)

	writer := ledger.NewWriter(operations, entries, now)
	statusEngine := status.NewEngine(operations, transactions, now)
	movements := movement.NewService(
		accounts, operations, entries, locks, offerings, vaults, transactions,
		audits, writer, statusEngine, now,
	)

	return &Engine{
		db:           db,
		movements:    movements,
		status:       statusEngine,
		reader:       ledger.NewReader(entries),
		accounts:     accounts,
		operations:   operations,
		entries:      entries,
		transactions: transactions,
		vaults:       vaults,
		offerings:    offerings,
		locks:        locks,
		audits:       audits,
		now:          now,
	}
}

// Movements exposes the tx-scoped services for callers composing their
// own multi-step sagas inside a single unit of work.
func (e *Engine) Movements() *movement.Service {
	return e.movements
}

func (e *Engine) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return e.db.RunInTx(ctx, fn)
}

func (e *Engine) EnsureAccount(ctx context.Context, ref domain.AccountRef) (*domain.Account, error) {
	if !ref.Compartment.IsValid() {
		return nil, fmt.Errorf("EnsureAccount: %w", domain.ErrInvalidCompartment)
	}
	if !ref.Currency.IsValid() {
		return nil, fmt.Errorf("EnsureAccount: %w", domain.ErrInvalidCurrency)
	}

	var account *domain.Account
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		account, err = e.accounts.GetOrCreate(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("EnsureAccount: %w", err)
	}
	return account, nil
}

func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return e.reader.Balance(ctx, accountID)
}

// RecordDeposit opens the deposit saga: the movement mints the saga
// transaction, books the deposit into the blocked compartment, and both
// commit together.
func (e *Engine) RecordDeposit(ctx context.Context, req movement.DepositRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.RecordDeposit(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("RecordDeposit: %w", err)
	}
	return op, nil
}

func (e *Engine) ReleaseDeposit(ctx context.Context, req movement.ComplianceRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.ReleaseDeposit(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ReleaseDeposit: %w", err)
	}
	return op, nil
}

func (e *Engine) RejectDeposit(ctx context.Context, req movement.ComplianceRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.RejectDeposit(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("RejectDeposit: %w", err)
	}
	return op, nil
}

func (e *Engine) LockInvestment(ctx context.Context, req movement.InvestmentRequest) (*movement.InvestmentResult, error) {
	var result *movement.InvestmentResult
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = e.movements.LockInvestment(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("LockInvestment: %w", err)
	}
	return result, nil
}

func (e *Engine) DepositToVault(ctx context.Context, req movement.VaultRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.DepositToVault(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("DepositToVault: %w", err)
	}
	return op, nil
}

func (e *Engine) WithdrawFromVault(ctx context.Context, req movement.VaultRequest) (*movement.WithdrawalResult, error) {
	var result *movement.WithdrawalResult
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = e.movements.WithdrawFromVault(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("WithdrawFromVault: %w", err)
	}
	return result, nil
}

func (e *Engine) ProcessPendingWithdrawals(ctx context.Context, poolID uuid.UUID, limit int) ([]domain.VaultWithdrawal, error) {
	var processed []domain.VaultWithdrawal
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		processed, err = e.movements.ProcessPendingWithdrawals(ctx, tx, poolID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ProcessPendingWithdrawals: %w", err)
	}
	return processed, nil
}

func (e *Engine) LockVesting(ctx context.Context, req movement.VestingLockRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.LockVesting(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("LockVesting: %w", err)
	}
	return op, nil
}

func (e *Engine) ReleaseVesting(ctx context.Context, req movement.VestingReleaseRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.ReleaseVesting(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ReleaseVesting: %w", err)
	}
	return op, nil
}

func (e *Engine) ReverseOperation(ctx context.Context, req movement.ReversalRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.ReverseOperation(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ReverseOperation: %w", err)
	}
	return op, nil
}

func (e *Engine) AdjustOperation(ctx context.Context, req movement.AdjustmentRequest) (*domain.Operation, error) {
	var op *domain.Operation
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		op, err = e.movements.AdjustOperation(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("AdjustOperation: %w", err)
	}
	return op, nil
}

func (e *Engine) RecomputeStatus(ctx context.Context, transactionID uuid.UUID) (domain.TransactionStatus, error) {
	var result domain.TransactionStatus
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = e.status.Recompute(ctx, tx, transactionID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("RecomputeStatus: %w", err)
	}
	return result, nil
}

func (e *Engine) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return e.transactions.GetByID(ctx, id)
}

func (e *Engine) GetOperation(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	return e.operations.GetByID(ctx, id)
}

func (e *Engine) ListTransactionOperations(ctx context.Context, transactionID uuid.UUID) ([]domain.Operation, error) {
	return e.operations.ListByTransaction(ctx, transactionID)
}

func (e *Engine) ListOperationEntries(ctx context.Context, operationID uuid.UUID) ([]domain.LedgerEntry, error) {
	return e.entries.GetByOperationID(ctx, operationID)
}

func (e *Engine) ListVaultPools(ctx context.Context) ([]domain.VaultPool, error) {
	return e.vaults.ListPools(ctx)
}

func (e *Engine) ListAuditRecords(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditRecord, error) {
	return e.audits.GetByEntity(ctx, entityType, entityID)
}

func (e *Engine) CreateOffering(ctx context.Context, name string, currency domain.Currency, capacity decimal.Decimal) (*domain.Offering, error) {
	if !currency.IsValid() {
		return nil, fmt.Errorf("CreateOffering: %w", domain.ErrInvalidCurrency)
	}
	if !capacity.IsPositive() {
		return nil, fmt.Errorf("CreateOffering: capacity: %w", domain.ErrInvalidAmount)
	}

	offering := &domain.Offering{
		ID:        uuid.New(),
		Name:      name,
		Currency:  currency,
		Capacity:  currency.Quantized(capacity),
		Allocated: decimal.Zero,
		Status:    domain.OfferingStatusOpen,
		CreatedAt: e.now(),
	}
	if err := e.offerings.Create(ctx, offering); err != nil {
		return nil, fmt.Errorf("CreateOffering: %w", err)
	}
	return offering, nil
}

func (e *Engine) GetOffering(ctx context.Context, id uuid.UUID) (*domain.Offering, error) {
	return e.offerings.GetByID(ctx, id)
}

func (e *Engine) GetInvestmentIntent(ctx context.Context, id uuid.UUID) (*domain.InvestmentIntent, error) {
	return e.offerings.GetIntentByID(ctx, id)
}

func (e *Engine) CreateVaultPool(ctx context.Context, name string, currency domain.Currency) (*domain.VaultPool, error) {
	if !currency.IsValid() {
		return nil, fmt.Errorf("CreateVaultPool: %w", domain.ErrInvalidCurrency)
	}

	pool := &domain.VaultPool{
		ID:        uuid.New(),
		Name:      name,
		Currency:  currency,
		CreatedAt: e.now(),
	}
	if err := e.vaults.CreatePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("CreateVaultPool: %w", err)
	}
	return pool, nil
}

func (e *Engine) GetVaultPool(ctx context.Context, id uuid.UUID) (*domain.VaultPool, error) {
	return e.vaults.GetPool(ctx, id)
}

func (e *Engine) GetVaultWithdrawal(ctx context.Context, id uuid.UUID) (*domain.VaultWithdrawal, error) {
	return e.vaults.GetWithdrawal(ctx, id)
}

func (e *Engine) ListWalletLocks(ctx context.Context, accountID uuid.UUID) ([]domain.WalletLock, error) {
	return e.locks.GetByAccountID(ctx, accountID)
}

func (e *Engine) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return e.accounts.GetByID(ctx, id)
}

func (e *Engine) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	return e.entries.GetByAccountID(ctx, accountID, limit, offset)
}
