package ingestion

import (
	"sort"

	"blinkstream/internal/solana"
)

// mergeSignatures de-duplicates signature records from several addresses,
// keeping the entry with the higher slot (tie: newer block time), and
// orders the result by (slot ASC, blockTime ASC, signature ASC).
func mergeSignatures(lists ...[]solana.SignatureInfo) []solana.SignatureInfo {
	best := make(map[string]solana.SignatureInfo)
	for _, list := range lists {
		for _, s := range list {
			if s.Signature == "" {
				continue
			}
			cur, ok := best[s.Signature]
			if !ok || compareSignatures(s, cur) > 0 {
				best[s.Signature] = s
			}
		}
	}

	out := make([]solana.SignatureInfo, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareSignatures(out[i], out[j]); c != 0 {
			return c < 0
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// compareSignatures orders by slot, then block time. A missing block time
// sorts first.
func compareSignatures(a, b solana.SignatureInfo) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	at, bt := blockTime(a), blockTime(b)
	if at != bt {
		if at < bt {
			return -1
		}
		return 1
	}
	return 0
}

func blockTime(s solana.SignatureInfo) int64 {
	if s.BlockTime == nil {
		return 0
	}
	return *s.BlockTime
}
