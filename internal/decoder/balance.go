package decoder

import "encoding/json"

type balanceInfo struct {
	mint     string
	decimals int
}

// balanceIndex maps token account addresses to mint and decimals taken
// from the pre/post token balance snapshots.
type balanceIndex map[string]balanceInfo

func newBalanceIndex(keys []string, meta *txMeta) balanceIndex {
	idx := make(balanceIndex)
	if meta == nil {
		return idx
	}

	add := func(balances []json.RawMessage) {
		for _, raw := range balances {
			var b tokenBalance
			if json.Unmarshal(raw, &b) != nil {
				continue
			}
			addr := keyAt(keys, b.AccountIndex)
			if addr == "" {
				continue
			}
			if _, ok := idx[addr]; ok {
				continue
			}
			if b.UITokenAmount == nil || b.UITokenAmount.Decimals == nil || !validDecimals(*b.UITokenAmount.Decimals) {
				continue
			}
			idx[addr] = balanceInfo{mint: b.Mint, decimals: *b.UITokenAmount.Decimals}
		}
	}
	add(meta.PreTokenBalances)
	add(meta.PostTokenBalances)
	return idx
}

// lookup returns the first snapshot found for any of the addresses.
func (b balanceIndex) lookup(addrs ...string) (balanceInfo, bool) {
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if info, ok := b[a]; ok {
			return info, true
		}
	}
	return balanceInfo{}, false
}
