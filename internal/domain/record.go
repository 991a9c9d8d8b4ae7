package domain

import "encoding/json"

// EventRecord is the persisted form of a dispatched event.
type EventRecord struct {
	ID        string          `json:"id"`        // deterministic hash, see idhash.ComputeEventID
	Name      string          `json:"name"`      // surge, large-swap, whale-alert
	Token     string          `json:"token"`     // asset symbol or mint
	Signature string          `json:"signature"` // empty for surge events
	Slot      int64           `json:"slot"`
	USDValue  float64         `json:"usdValue"`
	Payload   json.RawMessage `json:"payload"`   // event JSON as dispatched
	Timestamp int64           `json:"timestamp"` // Unix ms
}

// PriceObservation is a single reference price sample.
type PriceObservation struct {
	Token     string  `json:"token"`
	Price     float64 `json:"price"`
	Slot      int64   `json:"slot"`
	Timestamp int64   `json:"timestamp"` // Unix ms
}
