package domain

import "github.com/shopspring/decimal"

type Currency string

const (
	CurrencyAED Currency = "AED"
	CurrencyUSD Currency = "USD"
	CurrencySAR Currency = "SAR"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyAED, CurrencyUSD, CurrencySAR:
		return true
	}
	return false
}

// Exponent is the number of minor-unit digits for the currency. All
// currently supported currencies use two.
func (c Currency) Exponent() int32 {
	return 2
}

// Quantized returns the amount rounded to the currency's precision.
func (c Currency) Quantized(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Exponent())
}
