package domain

import "math/big"

// DefaultDecimals is assumed when a transfer carries no decimals information.
const DefaultDecimals = 9

// ParsedTransaction is the normalized form of one feed message or one historical lookup.
type ParsedTransaction struct {
	Signature string
	Slot      int64
	Transfers []Transfer
}

// Transfer is a single token movement within a transaction.
// AmountRaw / 10^Decimals is the human-readable quantity.
type Transfer struct {
	AmountRaw   uint64
	Decimals    int
	Source      *string // nullable
	Destination *string // nullable
	Mint        *string // nullable
}

// AmountBig returns the raw amount as a big.Int.
func (t Transfer) AmountBig() *big.Int {
	return new(big.Int).SetUint64(t.AmountRaw)
}
