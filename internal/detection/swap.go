package detection

import (
	"time"

	"github.com/shopspring/decimal"

	"blinkstream/internal/domain"
)

// Large swap defaults.
const (
	DefaultLargeSwapUSDThreshold = 10000.0
	DefaultReferenceAsset        = "SOL"
)

// SwapOptions configures SwapDetector.
type SwapOptions struct {
	USDThreshold float64 // inclusive, default 10000
	Token        string  // asset label on emitted events, default SOL
}

// SwapDetector reports the first transfer of a transaction whose USD value
// reaches the threshold. Later transfers in the same transaction are not
// reported, so one transaction yields at most one event.
type SwapDetector struct {
	threshold decimal.Decimal
	token     string
}

// NewSwapDetector creates a detector.
func NewSwapDetector(opts SwapOptions) *SwapDetector {
	if opts.USDThreshold <= 0 || !isFinite(opts.USDThreshold) {
		opts.USDThreshold = DefaultLargeSwapUSDThreshold
	}
	if opts.Token == "" {
		opts.Token = DefaultReferenceAsset
	}
	return &SwapDetector{
		threshold: decimal.NewFromFloat(opts.USDThreshold),
		token:     opts.Token,
	}
}

// Evaluate values each transfer at referencePrice USD per unit.
func (d *SwapDetector) Evaluate(tx *domain.ParsedTransaction, referencePrice float64, now time.Time) *domain.LargeSwapEvent {
	if tx == nil || !isFinite(referencePrice) || referencePrice <= 0 {
		return nil
	}
	price := decimal.NewFromFloat(referencePrice)

	for _, t := range tx.Transfers {
		usd := humanAmount(t).Mul(price)
		if usd.LessThan(d.threshold) {
			continue
		}
		return &domain.LargeSwapEvent{
			Type:          domain.TypeLargeSwap,
			Token:         d.token,
			ChangePercent: 0,
			USDValue:      round(usd, 2),
			Signature:     tx.Signature,
			Slot:          tx.Slot,
			Timestamp:     now.UnixMilli(),
		}
	}
	return nil
}
