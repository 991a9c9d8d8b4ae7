package detection

import (
	"time"

	"blinkstream/internal/domain"
)

// Engine bundles the three classifiers shared by the live and backfill paths.
type Engine struct {
	Surge *SurgeDetector
	Swap  *SwapDetector
	Whale *WhaleClassifier
}

// NewEngine builds an engine with the given options.
func NewEngine(surge SurgeOptions, swap SwapOptions, whale WhaleOptions) *Engine {
	return &Engine{
		Surge: NewSurgeDetector(surge),
		Swap:  NewSwapDetector(swap),
		Whale: NewWhaleClassifier(whale),
	}
}

// ClassifyTransaction runs the whale and large-swap classifiers on tx and
// returns the resulting events in dispatch order.
func (e *Engine) ClassifyTransaction(tx *domain.ParsedTransaction, referencePrice float64, now time.Time) []domain.Event {
	var events []domain.Event
	if alert := e.Whale.Evaluate(tx, referencePrice, now); alert != nil {
		events = append(events, *alert)
	}
	if swap := e.Swap.Evaluate(tx, referencePrice, now); swap != nil {
		events = append(events, *swap)
	}
	return events
}
