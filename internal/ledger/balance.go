package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type balanceSource interface {
	SumByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	SumByAccountTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (decimal.Decimal, error)
}

// Reader derives balances by summing ledger entries. There is no stored
// balance anywhere to drift from this.
type Reader struct {
	entries balanceSource
}

func NewReader(entries balanceSource) *Reader {
	return &Reader{entries: entries}
}

// Balance returns the account's balance as seen by the latest committed
// writes. Accounts with no entries (or unknown ids) read as zero.
func (r *Reader) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	sum, err := r.entries.SumByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return sum, nil
}

// BalanceTx returns the balance as seen inside the caller's transaction,
// including uncommitted entries written earlier in the same unit of work.
func (r *Reader) BalanceTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (decimal.Decimal, error) {
	sum, err := r.entries.SumByAccountTx(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("BalanceTx: %w", err)
	}
	return sum, nil
}
