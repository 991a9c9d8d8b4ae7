package dispatch

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format shared by the Kafka and Redis notifiers.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func encodeEnvelope(name string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: name, TS: now.UnixMilli(), Data: data})
}
