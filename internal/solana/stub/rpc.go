package stub

import (
	"context"
	"errors"
	"sync"

	"blinkstream/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing. Calls are recorded.
type RPCClient struct {
	mu sync.Mutex

	Transactions  map[string]*solana.Transaction
	Signatures    map[string][]solana.SignatureInfo
	SignatureErrs map[string]error
	BatchErr      error
	Slot          int64

	SignatureCalls []string
	BatchCalls     [][]string
	SingleCalls    []string
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		SignatureErrs: make(map[string]error),
	}
}

// GetSignaturesForAddress returns the configured signatures for address.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SignatureCalls = append(c.SignatureCalls, address)
	if err := c.SignatureErrs[address]; err != nil {
		return nil, err
	}

	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SingleCalls = append(c.SingleCalls, signature)
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetTransactions returns BatchErr if set, otherwise index-aligned results.
func (c *RPCClient) GetTransactions(_ context.Context, signatures []string) ([]*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.BatchCalls = append(c.BatchCalls, append([]string(nil), signatures...))
	if c.BatchErr != nil {
		return nil, c.BatchErr
	}

	out := make([]*solana.Transaction, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Transactions[sig]
	}
	return out, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// FetchedSignatures returns every signature requested through batch or single calls.
func (c *RPCClient) FetchedSignatures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, batch := range c.BatchCalls {
		out = append(out, batch...)
	}
	return out
}
