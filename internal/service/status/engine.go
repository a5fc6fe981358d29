package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

type operationRepo interface {
	CompletedTypes(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) ([]domain.OperationType, error)
}

type transactionRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.TransactionStatus, updatedAt time.Time) error
}

// Engine derives a transaction's saga status from its completed
// operations. Recompute is idempotent: re-running it against unchanged
// operations is a no-op.
type Engine struct {
	operations   operationRepo
	transactions transactionRepo
	now          func() time.Time
}

func NewEngine(operations operationRepo, transactions transactionRepo, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{operations: operations, transactions: transactions, now: now}
}

// StatusFor maps the set of completed operation types to a saga status.
// Pure function of its input; precedence runs from terminal corrections
// down to the initial state.
func StatusFor(completed []domain.OperationType) domain.TransactionStatus {
	seen := make(map[domain.OperationType]bool, len(completed))
	for _, t := range completed {
		seen[t] = true
	}

	switch {
	case seen[domain.OpReversal]:
		return domain.TransactionStatusReversed
	case seen[domain.OpComplianceReject]:
		return domain.TransactionStatusFailed
	case seen[domain.OpComplianceRelease]:
		return domain.TransactionStatusAvailable
	case seen[domain.OpInvestmentLock], seen[domain.OpVestingLock]:
		return domain.TransactionStatusLocked
	case seen[domain.OpVaultDeposit], seen[domain.OpVaultWithdraw], seen[domain.OpVestingRelease]:
		return domain.TransactionStatusCompleted
	case seen[domain.OpDepositRecorded]:
		return domain.TransactionStatusUnderReview
	default:
		return domain.TransactionStatusInitiated
	}
}

// Recompute rereads the transaction's completed operations and rewrites
// the status column if it changed. The only side effect is that single
// column write.
func (e *Engine) Recompute(ctx context.Context, tx *sql.Tx, transactionID uuid.UUID) (domain.TransactionStatus, error) {
	txn, err := e.transactions.GetForUpdate(ctx, tx, transactionID)
	if err != nil {
		return "", fmt.Errorf("Recompute: %w", err)
	}

	types, err := e.operations.CompletedTypes(ctx, tx, transactionID)
	if err != nil {
		return "", fmt.Errorf("Recompute: %w", err)
	}

	next := StatusFor(types)
	if next == txn.Status {
		return next, nil
	}

	if err := e.transactions.UpdateStatus(ctx, tx, transactionID, next, e.now()); err != nil {
		return "", fmt.Errorf("Recompute: %w", err)
	}
	return next, nil
}
