package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

func entry(entryType domain.EntryType, amount string, currency domain.Currency) EntryInput {
	return EntryInput{
		AccountID: uuid.New(),
		EntryType: entryType,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
	}
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []EntryInput
		wantErr error
	}{
		{
			name: "valid pair",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyAED),
				entry(domain.EntryTypeCredit, "100", domain.CurrencyAED),
			},
		},
		{
			name: "single entry rejected",
			entries: []EntryInput{
				entry(domain.EntryTypeCredit, "100", domain.CurrencyAED),
			},
			wantErr: domain.ErrUnbalancedOperation,
		},
		{
			name: "zero amount rejected",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "0", domain.CurrencyAED),
				entry(domain.EntryTypeCredit, "0", domain.CurrencyAED),
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "credit must be positive",
			entries: []EntryInput{
				entry(domain.EntryTypeCredit, "-100", domain.CurrencyAED),
				entry(domain.EntryTypeDebit, "100", domain.CurrencyAED),
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "debit must be negative",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "100", domain.CurrencyAED),
				entry(domain.EntryTypeCredit, "-100", domain.CurrencyAED),
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "unknown currency rejected",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.Currency("XXX")),
				entry(domain.EntryTypeCredit, "100", domain.Currency("XXX")),
			},
			wantErr: domain.ErrInvalidCurrency,
		},
		{
			name: "unknown entry type rejected",
			entries: []EntryInput{
				entry(domain.EntryType("transfer"), "100", domain.CurrencyAED),
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyAED),
			},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEntries(tt.entries)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBalanced(t *testing.T) {
	tests := []struct {
		name    string
		entries []EntryInput
		wantErr error
	}{
		{
			name: "balanced pair",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-250.50", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "250.50", domain.CurrencyUSD),
			},
		},
		{
			name: "balanced three legs",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "60", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "40", domain.CurrencyUSD),
			},
		},
		{
			name: "balanced per currency",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "100", domain.CurrencyUSD),
				entry(domain.EntryTypeDebit, "-50", domain.CurrencyAED),
				entry(domain.EntryTypeCredit, "50", domain.CurrencyAED),
			},
		},
		{
			name: "unbalanced sum rejected",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "99.99", domain.CurrencyUSD),
			},
			wantErr: domain.ErrUnbalancedOperation,
		},
		{
			name: "unbalanced in one of two currencies rejected",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "100", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "50", domain.CurrencyAED),
			},
			wantErr: domain.ErrUnbalancedOperation,
		},
		{
			name: "sub-cent residue quantized away",
			entries: []EntryInput{
				entry(domain.EntryTypeDebit, "-100.001", domain.CurrencyUSD),
				entry(domain.EntryTypeCredit, "100.004", domain.CurrencyUSD),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBalanced(tt.entries)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
