package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitsPerMajor fixes two decimal places for every supported
// currency, matching how balances are held in the accounts ledger.
var minorUnitsPerMajor = decimal.NewFromInt(100)

// Money is a non-negative amount in minor currency units.
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("amount cannot be negative")
	}
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if len(normalized) != 3 {
		return Money{}, fmt.Errorf("currency must be a 3-letter code")
	}
	return Money{Amount: amount, Currency: normalized}, nil
}

// MoneyFromDecimal converts a major-unit decimal amount, as carried on
// the wire, into minor units. Amounts with more than two decimal places
// are rejected rather than rounded.
func MoneyFromDecimal(value decimal.Decimal, currency string) (Money, error) {
	minor := value.Mul(minorUnitsPerMajor)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("amount %s has more than two decimal places", value.String())
	}
	return NewMoney(minor.IntPart(), currency)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(minorUnitsPerMajor)
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2) + " " + m.Currency
}
