// Package detection classifies normalized transactions and price
// observations into surge, large-swap and whale events.
package detection

import (
	"github.com/shopspring/decimal"

	"blinkstream/internal/domain"
)

// humanAmount returns AmountRaw / 10^Decimals exactly.
func humanAmount(t domain.Transfer) decimal.Decimal {
	return decimal.NewFromBigInt(t.AmountBig(), -int32(t.Decimals))
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}
