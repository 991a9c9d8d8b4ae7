package solana

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	sol "github.com/gagliardetto/solana-go"
)

// ErrFilterRejected is returned when the feed provider refuses the
// program-scoped subscription filter.
var ErrFilterRejected = errors.New("subscription filter rejected")

// ErrStreamClosed is returned by TransactionStream.Next once the stream has
// been closed locally or ended by the server.
var ErrStreamClosed = errors.New("stream closed")

// invalidParamsCode is the JSON-RPC "invalid params" error code.
const invalidParamsCode = -32602

// TransactionFeed opens filtered live transaction subscriptions.
// Each Open call owns a fresh connection.
type TransactionFeed interface {
	Open(ctx context.Context, filter TransactionFilter) (TransactionStream, error)
}

// TransactionStream yields raw transaction notifications one at a time.
type TransactionStream interface {
	// Next blocks until the next notification payload arrives.
	Next() (json.RawMessage, error)

	// Close releases the connection. Safe to call more than once and
	// concurrently with Next.
	Close() error
}

// TransactionFilter selects which transactions the provider streams.
type TransactionFilter struct {
	// AccountInclude limits the feed to transactions touching any of these
	// accounts. Empty means all transactions.
	AccountInclude []string
	Vote           bool
	Failed         bool
}

// TokenProgramIDs returns the SPL Token and Token-2022 program ids.
func TokenProgramIDs() []string {
	return []string{sol.TokenProgramID.String(), sol.Token2022ProgramID.String()}
}

// ScopedFilter subscribes only to token program transactions.
func ScopedFilter() TransactionFilter {
	return TransactionFilter{AccountInclude: TokenProgramIDs()}
}

// BroadFilter subscribes to every non-vote, successful transaction.
func BroadFilter() TransactionFilter {
	return TransactionFilter{}
}

// IsScoped reports whether the filter restricts accounts.
func (f TransactionFilter) IsScoped() bool {
	return len(f.AccountInclude) > 0
}

func (f TransactionFilter) params() map[string]interface{} {
	p := map[string]interface{}{
		"vote":   f.Vote,
		"failed": f.Failed,
	}
	if f.IsScoped() {
		p["accountInclude"] = f.AccountInclude
	}
	return p
}

// IsFilterRejection reports whether a provider error means the account
// filter is unsupported.
func IsFilterRejection(code int, message string) bool {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "failed to create filter"),
		strings.Contains(msg, "in filters is not allowed"):
		return true
	case strings.Contains(msg, "invalid_argument") && strings.Contains(msg, "filter"):
		return true
	case code == invalidParamsCode && strings.Contains(msg, "filter"):
		return true
	}
	return false
}
