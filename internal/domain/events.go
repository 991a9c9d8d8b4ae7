package domain

// Event names used on the notification boundary.
const (
	EventSurge      = "surge"
	EventLargeSwap  = "large-swap"
	EventWhaleAlert = "whale-alert"
)

// Event type tags carried in event payloads.
const (
	TypeSurge     = "SURGE"
	TypeLargeSwap = "LARGE_SWAP"
	TypeWhale     = "WHALE"
)

// WhaleTier is the severity band of a whale alert.
type WhaleTier string

const (
	WhaleTierMega  WhaleTier = "MEGA"
	WhaleTierLarge WhaleTier = "LARGE"
	WhaleTierBig   WhaleTier = "BIG"
)

// Event is any classified event that can be dispatched.
type Event interface {
	// EventName returns the fixed notification name for the event kind.
	EventName() string
}

// SurgeEvent is emitted when an asset price moves past the surge threshold.
type SurgeEvent struct {
	Type          string  `json:"type"`
	Token         string  `json:"token"`
	ChangePercent float64 `json:"changePercent"`
	USDValue      float64 `json:"usdValue"`
	PreviousPrice float64 `json:"previousPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	Slot          int64   `json:"slot"`
	Timestamp     int64   `json:"timestamp"` // Unix ms
}

// EventName implements Event.
func (SurgeEvent) EventName() string { return EventSurge }

// LargeSwapEvent is emitted for the first transfer of a transaction whose
// USD value reaches the large-swap threshold.
type LargeSwapEvent struct {
	Type          string  `json:"type"`
	Token         string  `json:"token"`
	ChangePercent float64 `json:"changePercent"`
	USDValue      float64 `json:"usdValue"`
	Signature     string  `json:"signature"`
	Slot          int64   `json:"slot"`
	Timestamp     int64   `json:"timestamp"` // Unix ms
}

// EventName implements Event.
func (LargeSwapEvent) EventName() string { return EventLargeSwap }

// WhaleAlert is a tiered classification of a large transfer.
type WhaleAlert struct {
	ID          string    `json:"id"`
	Signature   string    `json:"signature"`
	Slot        int64     `json:"slot"`
	Timestamp   int64     `json:"timestamp"` // Unix ms
	Direction   WhaleTier `json:"direction"`
	Symbol      string    `json:"symbol"`
	Mint        string    `json:"mint"`
	Amount      float64   `json:"amount"`
	USDValue    float64   `json:"usdValue"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ExplorerURL string    `json:"explorerUrl"`
}

// EventName implements Event.
func (WhaleAlert) EventName() string { return EventWhaleAlert }
