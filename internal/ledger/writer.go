package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/logging"
)

type operationRepo interface {
	Create(ctx context.Context, tx *sql.Tx, op *domain.Operation) error
	Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, completedAt time.Time) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

// EntryInput is one leg of a double-entry write. Amounts are signed:
// credits positive, debits negative.
type EntryInput struct {
	AccountID uuid.UUID
	EntryType domain.EntryType
	Amount    decimal.Decimal
	Currency  domain.Currency
}

// WriteRequest describes one operation and its balanced set of entries.
type WriteRequest struct {
	Type           domain.OperationType
	Entries        []EntryInput
	IdempotencyKey *string
	RequestHash    *string
	TransactionID  *uuid.UUID
	Metadata       []byte
}

// Writer persists an operation plus its ledger entries atomically inside
// the caller's transaction, enforcing the double-entry invariant before
// the operation is marked completed.
type Writer struct {
	operations operationRepo
	entries    entryRepo
	now        func() time.Time
}

func NewWriter(operations operationRepo, entries entryRepo, now func() time.Time) *Writer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Writer{operations: operations, entries: entries, now: now}
}

// Execute persists the pending operation, appends all entries, validates
// the zero-sum invariant, and completes the operation. A non-zero sum is a
// caller bug: it fails loudly with ErrUnbalancedOperation and the whole
// unit of work must be rolled back by the caller.
func (w *Writer) Execute(ctx context.Context, tx *sql.Tx, req WriteRequest) (*domain.Operation, error) {
	if err := validateEntries(req.Entries); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	if err := validateBalanced(req.Entries); err != nil {
		logUnbalanced(ctx, req)
		return nil, fmt.Errorf("Execute: %w", err)
	}

	now := w.now()
	op := &domain.Operation{
		ID:             uuid.New(),
		Type:           req.Type,
		Status:         domain.OperationStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    req.RequestHash,
		TransactionID:  req.TransactionID,
		Metadata:       req.Metadata,
		CreatedAt:      now,
	}
	if err := w.operations.Create(ctx, tx, op); err != nil {
		return nil, fmt.Errorf("Execute: create operation: %w", err)
	}

	for _, in := range req.Entries {
		entry := &domain.LedgerEntry{
			ID:          uuid.New(),
			OperationID: op.ID,
			AccountID:   in.AccountID,
			EntryType:   in.EntryType,
			Amount:      in.Currency.Quantized(in.Amount),
			Currency:    in.Currency,
			CreatedAt:   now,
		}
		if err := w.entries.Create(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("Execute: create entry: %w", err)
		}
	}

	if err := w.operations.Complete(ctx, tx, op.ID, now); err != nil {
		return nil, fmt.Errorf("Execute: complete operation: %w", err)
	}

	op.Status = domain.OperationStatusCompleted
	op.CompletedAt = &now
	return op, nil
}

func validateEntries(entries []EntryInput) error {
	if len(entries) < 2 {
		return fmt.Errorf("operation needs at least two entries: %w", domain.ErrUnbalancedOperation)
	}
	for _, e := range entries {
		if !e.Currency.IsValid() {
			return domain.ErrInvalidCurrency
		}
		if e.Amount.IsZero() {
			return domain.ErrInvalidAmount
		}
		switch e.EntryType {
		case domain.EntryTypeCredit:
			if e.Amount.IsNegative() {
				return fmt.Errorf("credit entry with negative amount: %w", domain.ErrInvalidAmount)
			}
		case domain.EntryTypeDebit:
			if e.Amount.IsPositive() {
				return fmt.Errorf("debit entry with positive amount: %w", domain.ErrInvalidAmount)
			}
		default:
			return fmt.Errorf("unknown entry type %q: %w", e.EntryType, domain.ErrInvalidAmount)
		}
	}
	return nil
}

// validateBalanced checks that the signed amounts sum to zero per
// currency, at the currency's precision.
func validateBalanced(entries []EntryInput) error {
	sums := make(map[domain.Currency]decimal.Decimal)
	for _, e := range entries {
		sums[e.Currency] = sums[e.Currency].Add(e.Currency.Quantized(e.Amount))
	}
	for currency, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("%s sums to %s: %w", currency, sum.String(), domain.ErrUnbalancedOperation)
		}
	}
	return nil
}

func logUnbalanced(ctx context.Context, req WriteRequest) {
	log := logging.FromContext(ctx)
	attrs := []any{"operation_type", req.Type}
	for i, e := range req.Entries {
		attrs = append(attrs,
			fmt.Sprintf("entry_%d_account", i), e.AccountID,
			fmt.Sprintf("entry_%d_amount", i), e.Amount.String(),
		)
	}
	log.Error("unbalanced operation rejected", attrs...)
}
