package movement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency domain.Currency
		wantErr  error
	}{
		{name: "positive amount", amount: "100.50", currency: domain.CurrencyAED},
		{name: "zero rejected", amount: "0", currency: domain.CurrencyAED, wantErr: domain.ErrInvalidAmount},
		{name: "negative rejected", amount: "-1", currency: domain.CurrencyAED, wantErr: domain.ErrInvalidAmount},
		{name: "unknown currency rejected", amount: "100", currency: domain.Currency("XYZ"), wantErr: domain.ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAmount(decimal.RequireFromString(tt.amount), tt.currency)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestHashRequest(t *testing.T) {
	base := hashRequest("deposit", "user-1", "AED", "100")

	assert.Equal(t, base, hashRequest("deposit", "user-1", "AED", "100"),
		"same parts must hash identically")
	assert.NotEqual(t, base, hashRequest("deposit", "user-1", "AED", "101"),
		"different amount must change the hash")
	assert.NotEqual(t, base, hashRequest("deposit", "user-1", "AED100", ""),
		"part boundaries must be preserved")
	assert.Len(t, base, 64)
}
