package domain

// FilterMode selects how narrowly the live subscription is filtered.
type FilterMode string

const (
	FilterScoped FilterMode = "scoped"
	FilterBroad  FilterMode = "broad"
)

// StreamState is the supervisor lifecycle state.
type StreamState string

const (
	StateStopped    StreamState = "STOPPED"
	StateConnecting StreamState = "CONNECTING"
	StateStreaming  StreamState = "STREAMING"
	StateBackingOff StreamState = "BACKING_OFF"
)

// StreamStatus is the supervisor's view of the live subscription.
// Timestamps are Unix milliseconds; nil means never.
type StreamStatus struct {
	State              StreamState    `json:"state"`
	Running            bool           `json:"running"`
	Connected          bool           `json:"connected"`
	FilterMode         FilterMode     `json:"filterMode"`
	ReconnectBackoffMs int64          `json:"reconnectBackoffMs"`
	ReconnectCount     int64          `json:"reconnectCount"`
	LastConnectedAt    *int64         `json:"lastConnectedAt"`
	LastDisconnectedAt *int64         `json:"lastDisconnectedAt"`
	LastMessageAt      *int64         `json:"lastMessageAt"`
	LastError          string         `json:"lastError,omitempty"`
	Backfill           BackfillStatus `json:"backfill"`
}

// BackfillStatus accumulates gap recovery counters across runs.
type BackfillStatus struct {
	Enabled             bool   `json:"enabled"`
	InProgress          bool   `json:"inProgress"`
	Runs                int64  `json:"runs"`
	ProcessedSignatures int64  `json:"processedSignatures"`
	EmittedEvents       int64  `json:"emittedEvents"`
	LastRunAt           *int64 `json:"lastRunAt"`
	LastDurationMs      int64  `json:"lastDurationMs"`
	LastRecoveredCount  int64  `json:"lastRecoveredCount"`
	LastError           string `json:"lastError,omitempty"`
}

// StatusSnapshot is the read-only health view exposed to observers.
type StatusSnapshot struct {
	StreamStatus
	DedupCacheSize int `json:"dedupCacheSize"`
}
