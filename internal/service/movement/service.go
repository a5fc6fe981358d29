package movement

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/auth"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
)

type accountRepo interface {
	GetOrCreate(ctx context.Context, tx *sql.Tx, ref domain.AccountRef) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
}

type operationRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Operation, error)
	GetByTypeAndKey(ctx context.Context, tx *sql.Tx, opType domain.OperationType, key string) (*domain.Operation, error)
}

type entryRepo interface {
	SumByAccountTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (decimal.Decimal, error)
	GetByOperationID(ctx context.Context, operationID uuid.UUID) ([]domain.LedgerEntry, error)
}

type walletLockRepo interface {
	Create(ctx context.Context, tx *sql.Tx, lock *domain.WalletLock) error
	MaturedForUpdate(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, reason domain.LockReason, asOf time.Time) ([]domain.WalletLock, error)
	Consume(ctx context.Context, tx *sql.Tx, id uuid.UUID, remaining decimal.Decimal, releasedAt time.Time) error
}

type offeringRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Offering, error)
	AddAllocated(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta decimal.Decimal) error
	CreateIntent(ctx context.Context, tx *sql.Tx, intent *domain.InvestmentIntent) error
	GetIntentByOperationID(ctx context.Context, operationID uuid.UUID) (*domain.InvestmentIntent, error)
}

type vaultRepo interface {
	GetPoolForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.VaultPool, error)
	EnqueueWithdrawal(ctx context.Context, tx *sql.Tx, w *domain.VaultWithdrawal) error
	GetWithdrawalByKey(ctx context.Context, tx *sql.Tx, key string) (*domain.VaultWithdrawal, error)
	ClaimPending(ctx context.Context, tx *sql.Tx, poolID uuid.UUID, limit int) ([]domain.VaultWithdrawal, error)
	MarkWithdrawal(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, operationID *uuid.UUID, processedAt time.Time) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) error
}

type auditRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rec *domain.AuditRecord) error
}

type ledgerWriter interface {
	Execute(ctx context.Context, tx *sql.Tx, req ledger.WriteRequest) (*domain.Operation, error)
}

type statusEngine interface {
	Recompute(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) (domain.TransactionStatus, error)
}

// Service holds the fund-movement recipes. Every method takes the
// caller's *sql.Tx and never commits: the saga orchestrator owns the
// unit-of-work boundary.
type Service struct {
	accounts     accountRepo
	operations   operationRepo
	entries      entryRepo
	locks        walletLockRepo
	offerings    offeringRepo
	vaults       vaultRepo
	transactions transactionRepo
	audits       auditRepo
	writer       ledgerWriter
	status       statusEngine
	now          func() time.Time
}

func NewService(
	accounts accountRepo,
	operations operationRepo,
	entries entryRepo,
	locks walletLockRepo,
	offerings offeringRepo,
	vaults vaultRepo,
	transactions transactionRepo,
	audits auditRepo,
	writer ledgerWriter,
	status statusEngine,
	now func() time.Time,
) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		accounts:     accounts,
		operations:   operations,
		entries:      entries,
		locks:        locks,
		offerings:    offerings,
		vaults:       vaults,
		transactions: transactions,
		audits:       audits,
		writer:       writer,
		status:       status,
		now:          now,
	}
}

func validateAmount(amount decimal.Decimal, currency domain.Currency) error {
	if !currency.IsValid() {
		return domain.ErrInvalidCurrency
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	return nil
}

// lockAccountsInOrder acquires row locks on the given accounts in UUID
// order, so two movements touching the same pair cannot deadlock. Parent
// rows (offering, vault pool) must already be locked before calling this.
func (s *Service) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := s.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

// checkIdempotency returns the previously completed operation when the
// caller retries with the same key and payload. The same key with a
// different payload is a conflict, never a silent replay.
func (s *Service) checkIdempotency(ctx context.Context, tx *sql.Tx, opType domain.OperationType, key *string, requestHash string) (*domain.Operation, error) {
	if key == nil || *key == "" {
		return nil, nil
	}

	existing, err := s.operations.GetByTypeAndKey(ctx, tx, opType, *key)
	if err != nil {
		return nil, fmt.Errorf("checkIdempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	if existing.RequestHash == nil || *existing.RequestHash != requestHash {
		return nil, fmt.Errorf("checkIdempotency: %w", domain.ErrIdempotencyConflict)
	}
	return existing, nil
}

// ensureTransaction mints the saga transaction for a movement that starts
// one. It runs only after the idempotency guard misses, so a replayed
// request never leaves an extra transaction stuck at initiated.
func (s *Service) ensureTransaction(ctx context.Context, tx *sql.Tx, existing *uuid.UUID, userID uuid.UUID, txType domain.TransactionType) (*uuid.UUID, error) {
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      txType,
		Status:    domain.TransactionStatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("ensureTransaction: %w", err)
	}
	return &txn.ID, nil
}

func hashRequest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// audit appends the immutable record of who moved what. Sensitive actions
// refuse to proceed without a reason.
func (s *Service) audit(ctx context.Context, tx *sql.Tx, action domain.AuditAction, entityType string, entityID uuid.UUID, reason string, before, after []byte) error {
	if action.RequiresReason() && reason == "" {
		return fmt.Errorf("audit: %s: %w", action, domain.ErrMissingReason)
	}

	rec := &domain.AuditRecord{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
		Before:     before,
		After:      after,
		CreatedAt:  s.now(),
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		rec.ActorID = &actor.ID
		rec.ActorRole = actor.Role
	}

	if err := s.audits.Create(ctx, tx, rec); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (s *Service) recomputeStatus(ctx context.Context, tx *sql.Tx, transactionID *uuid.UUID) error {
	if transactionID == nil {
		return nil
	}
	if _, err := s.status.Recompute(ctx, tx, *transactionID); err != nil {
		return fmt.Errorf("recomputeStatus: %w", err)
	}
	return nil
}
