package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// post sends body and returns the response payload, retrying transport
// failures, 429 and non-200 responses with exponential backoff.
func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call performs a single JSON-RPC call. RPC errors are returned as *RPCError and not retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// callBatch sends one JSON-RPC batch request and returns the responses
// index-aligned with params. Entries with no matching response are nil.
func (c *HTTPClient) callBatch(ctx context.Context, method string, params [][]interface{}) ([]*rpcResponse, error) {
	reqs := make([]rpcRequest, len(params))
	index := make(map[uint64]int, len(params))
	for i, p := range params {
		id := c.requestID.Add(1)
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: p}
		index[id] = i
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resps []rpcResponse
	if err := json.Unmarshal(respBody, &resps); err != nil {
		// Providers without batch support answer with a single error object.
		var single rpcResponse
		if json.Unmarshal(respBody, &single) == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("unmarshal batch response: %w", err)
	}

	out := make([]*rpcResponse, len(params))
	for i := range resps {
		if pos, ok := index[resps[i].ID]; ok {
			out[pos] = &resps[i]
		}
	}
	return out, nil
}

func transactionParams(signature string) []interface{} {
	return []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}
}

// transactionHeader is the subset of a getTransaction result read here;
// the full object is kept raw for the decoder.
type transactionHeader struct {
	Slot      int64  `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
}

func newTransaction(signature string, raw json.RawMessage) (*Transaction, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var hdr transactionHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("unmarshal transaction %s: %w", signature, err)
	}
	return &Transaction{
		Signature: signature,
		Slot:      hdr.Slot,
		BlockTime: hdr.BlockTime,
		Raw:       raw,
	}, nil
}

// GetTransaction retrieves a transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "getTransaction", transactionParams(signature), &raw); err != nil {
		return nil, err
	}
	return newTransaction(signature, raw)
}

// GetTransactions retrieves transactions with a single batched request.
func (c *HTTPClient) GetTransactions(ctx context.Context, signatures []string) ([]*Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	params := make([][]interface{}, len(signatures))
	for i, sig := range signatures {
		params[i] = transactionParams(sig)
	}

	resps, err := c.callBatch(ctx, "getTransaction", params)
	if err != nil {
		return nil, err
	}

	txs := make([]*Transaction, len(signatures))
	for i, resp := range resps {
		if resp == nil || resp.Error != nil {
			continue
		}
		tx, err := newTransaction(signatures[i], resp.Result)
		if err != nil {
			continue
		}
		txs[i] = tx
	}
	return txs, nil
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := map[string]interface{}{"commitment": "confirmed"}
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, config}, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}
	return sigs, nil
}

type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}
