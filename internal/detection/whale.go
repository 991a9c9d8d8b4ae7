package detection

import (
	"sync"
	"time"

	"github.com/AlekSi/pointer"
	sol "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"blinkstream/internal/domain"
)

// Whale defaults.
const (
	DefaultWhaleQuantityThreshold = 100.0
	DefaultWhaleUSDThreshold      = 25000.0
	DefaultWhaleHistorySize       = 200

	megaTierUSD  = 200000
	largeTierUSD = 75000
)

// WrappedSOLMint is the native asset mint, used when a transfer has none.
var WrappedSOLMint = sol.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

var knownSymbols = map[string]string{
	WrappedSOLMint.String():                        "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
}

// WhaleOptions configures WhaleClassifier. Zero values select defaults.
type WhaleOptions struct {
	QuantityThreshold float64 // native asset units
	USDThreshold      float64
	HistorySize       int
}

// WhaleStats summarizes classifier activity.
type WhaleStats struct {
	DetectedCount     int64   `json:"detectedCount"`
	QuantityThreshold float64 `json:"quantityThreshold"`
	USDThreshold      float64 `json:"usdThreshold"`
	HistorySize       int     `json:"historySize"`
}

// WhaleClassifier tags the first qualifying transfer of a transaction into
// a severity tier. Either threshold qualifies; the quantity threshold only
// applies to native asset transfers. At most one alert per transaction.
type WhaleClassifier struct {
	qtyThreshold decimal.Decimal
	usdThreshold decimal.Decimal
	opts         WhaleOptions

	mu       sync.RWMutex
	history  []domain.WhaleAlert // newest first
	detected int64
}

// NewWhaleClassifier creates a classifier.
func NewWhaleClassifier(opts WhaleOptions) *WhaleClassifier {
	if opts.QuantityThreshold <= 0 || !isFinite(opts.QuantityThreshold) {
		opts.QuantityThreshold = DefaultWhaleQuantityThreshold
	}
	if opts.USDThreshold <= 0 || !isFinite(opts.USDThreshold) {
		opts.USDThreshold = DefaultWhaleUSDThreshold
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultWhaleHistorySize
	}
	return &WhaleClassifier{
		qtyThreshold: decimal.NewFromFloat(opts.QuantityThreshold),
		usdThreshold: decimal.NewFromFloat(opts.USDThreshold),
		opts:         opts,
	}
}

// Evaluate returns an alert for the first qualifying transfer, if any.
func (w *WhaleClassifier) Evaluate(tx *domain.ParsedTransaction, referencePrice float64, now time.Time) *domain.WhaleAlert {
	if tx == nil {
		return nil
	}
	price := decimal.Zero
	if isFinite(referencePrice) && referencePrice > 0 {
		price = decimal.NewFromFloat(referencePrice)
	}

	for _, t := range tx.Transfers {
		amount := humanAmount(t)
		usd := amount.Mul(price)
		mint := pointer.GetString(t.Mint)
		native := mint == "" || mint == WrappedSOLMint.String()

		passesQty := native && amount.GreaterThanOrEqual(w.qtyThreshold)
		passesUSD := usd.GreaterThanOrEqual(w.usdThreshold)
		if !passesQty && !passesUSD {
			continue
		}

		if mint == "" {
			mint = WrappedSOLMint.String()
		}
		usdValue := round(usd, 2)
		alert := domain.WhaleAlert{
			ID:          tx.Signature + "_" + mint,
			Signature:   tx.Signature,
			Slot:        tx.Slot,
			Timestamp:   now.UnixMilli(),
			Direction:   Tier(usdValue),
			Symbol:      symbolFor(mint),
			Mint:        mint,
			Amount:      round(amount, 4),
			USDValue:    usdValue,
			From:        orUnknown(t.Source),
			To:          orUnknown(t.Destination),
			ExplorerURL: "https://solscan.io/tx/" + tx.Signature,
		}
		w.record(alert)
		return &alert
	}
	return nil
}

func (w *WhaleClassifier) record(alert domain.WhaleAlert) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.detected++
	w.history = append([]domain.WhaleAlert{alert}, w.history...)
	if len(w.history) > w.opts.HistorySize {
		w.history = w.history[:w.opts.HistorySize]
	}
}

// Recent returns up to limit alerts, newest first. limit <= 0 returns all.
func (w *WhaleClassifier) Recent(limit int) []domain.WhaleAlert {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := len(w.history)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]domain.WhaleAlert(nil), w.history[:n]...)
}

// Stats returns counters and thresholds.
func (w *WhaleClassifier) Stats() WhaleStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WhaleStats{
		DetectedCount:     w.detected,
		QuantityThreshold: w.opts.QuantityThreshold,
		USDThreshold:      w.opts.USDThreshold,
		HistorySize:       len(w.history),
	}
}

// Tier maps a USD value to its severity band.
func Tier(usd float64) domain.WhaleTier {
	switch {
	case usd > megaTierUSD:
		return domain.WhaleTierMega
	case usd > largeTierUSD:
		return domain.WhaleTierLarge
	default:
		return domain.WhaleTierBig
	}
}

func symbolFor(mint string) string {
	if s, ok := knownSymbols[mint]; ok {
		return s
	}
	if len(mint) > 4 {
		return mint[:4] + "..."
	}
	return mint
}

func orUnknown(s *string) string {
	if v := pointer.GetString(s); v != "" {
		return v
	}
	return "unknown"
}
