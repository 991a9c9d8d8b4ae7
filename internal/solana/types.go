package solana

import "encoding/json"

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// Transaction is a historical transaction body as returned by getTransaction
// with jsonParsed encoding. Raw holds the untouched result object so the
// decoder can read instructions and balance snapshots.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Raw       json.RawMessage
}
