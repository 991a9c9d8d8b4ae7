package solana

import "context"

// RPCClient defines the historical lookup capability used by backfill and
// the price poller.
type RPCClient interface {
	// GetSignaturesForAddress retrieves recent signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetTransactions retrieves several transactions in one round trip.
	// The result is index-aligned with signatures; missing or failed entries are nil.
	GetTransactions(ctx context.Context, signatures []string) ([]*Transaction, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
