// README: Money helpers; amounts travel as decimal strings at rest and decimal.Decimal in memory.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseMoney parses a stored money string. Missing or unparseable input is zero.
func ParseMoney(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseMoneyPtr is ParseMoney for nullable columns.
func ParseMoneyPtr(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return ParseMoney(*s)
}

// PercentOf returns amount × pct / 100.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// Prorate returns the share of amount that part represents of whole.
// A zero whole prorates to zero.
func Prorate(amount decimal.Decimal, part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(part)).Div(decimal.NewFromInt(whole))
}

// SafeDiv returns nil when den is zero, so callers can surface "no value" instead of NaN.
func SafeDiv(num, den decimal.Decimal) *decimal.Decimal {
	if den.IsZero() {
		return nil
	}
	q := num.Div(den)
	return &q
}

// SafeDivInt is SafeDiv over an integer denominator (counts of trucks, trips, cars).
func SafeDivInt(num decimal.Decimal, den int64) *decimal.Decimal {
	return SafeDiv(num, decimal.NewFromInt(den))
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Round2 rounds half away from zero to cents, the precision of every stored money column.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
