package idhash

import "testing"

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		signature string
		token     string
		slot      int64
		index     int
	}{
		{"large swap", "large-swap", "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb", "SOL", 250000000, 0},
		{"whale alert", "whale-alert", "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb", "SOL", 250000000, 0},
		{"surge", "surge", "1700000000000", "SOL", 250000001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.event, tt.signature, tt.token, tt.slot, tt.index)
			if len(got) != 64 {
				t.Errorf("ComputeEventID() length = %d, want 64", len(got))
			}
			if again := ComputeEventID(tt.event, tt.signature, tt.token, tt.slot, tt.index); got != again {
				t.Errorf("ComputeEventID() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeEventID_Distinct(t *testing.T) {
	base := ComputeEventID("large-swap", "sig", "SOL", 100, 0)

	variants := map[string]string{
		"event":     ComputeEventID("whale-alert", "sig", "SOL", 100, 0),
		"signature": ComputeEventID("large-swap", "sig2", "SOL", 100, 0),
		"token":     ComputeEventID("large-swap", "sig", "USDC", 100, 0),
		"slot":      ComputeEventID("large-swap", "sig", "SOL", 101, 0),
		"index":     ComputeEventID("large-swap", "sig", "SOL", 100, 1),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}
