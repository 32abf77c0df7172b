package shared

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MinorUnitEpsilon returns one smallest representable unit of the currency,
// e.g. 0.01 for NGN or USD, 1 for JPY. Balance comparisons tolerate at most
// this much rounding drift; anything larger is an integrity failure.
func MinorUnitEpsilon(code string) decimal.Decimal {
	cur := money.GetCurrency(code)
	if cur == nil {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -int32(cur.Fraction))
}

// SameMagnitude reports whether a and b differ by no more than the currency's
// minor-unit epsilon.
func SameMagnitude(a, b decimal.Decimal, currency string) bool {
	return a.Sub(b).Abs().Cmp(MinorUnitEpsilon(currency)) <= 0
}
