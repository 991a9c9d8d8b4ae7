package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", req.Method)
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "jsonParsed" {
			t.Errorf("expected jsonParsed encoding, got %v", cfg["encoding"])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"slot":      int64(123456),
				"blockTime": int64(1700000000),
				"meta":      map[string]interface{}{"err": nil},
				"transaction": map[string]interface{}{
					"signatures": []string{"testsig123"},
					"message": map[string]interface{}{
						"accountKeys": []string{"addr1", "addr2"},
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	tx, err := client.GetTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.Slot != 123456 {
		t.Errorf("expected slot 123456, got %d", tx.Slot)
	}
	if tx.BlockTime == nil || *tx.BlockTime != 1700000000 {
		t.Errorf("expected blockTime 1700000000, got %v", tx.BlockTime)
	}
	if len(tx.Raw) == 0 {
		t.Error("expected raw body to be kept")
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  nil,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	tx, err := client.GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_GetTransactions_Batch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Fatalf("decode batch request: %v", err)
		}
		if len(reqs) != 3 {
			t.Errorf("expected 3 requests in batch, got %d", len(reqs))
		}

		// Answer out of order, with one not-found and one error entry.
		resps := []map[string]interface{}{
			{"jsonrpc": "2.0", "id": reqs[2].ID, "error": map[string]interface{}{"code": -32000, "message": "boom"}},
			{"jsonrpc": "2.0", "id": reqs[1].ID, "result": nil},
			{"jsonrpc": "2.0", "id": reqs[0].ID, "result": map[string]interface{}{"slot": 7}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resps)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	txs, err := client.GetTransactions(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(txs))
	}
	if txs[0] == nil || txs[0].Signature != "a" || txs[0].Slot != 7 {
		t.Errorf("unexpected first result: %+v", txs[0])
	}
	if txs[1] != nil {
		t.Errorf("expected nil for not found, got %+v", txs[1])
	}
	if txs[2] != nil {
		t.Errorf("expected nil for failed entry, got %+v", txs[2])
	}
}

func TestHTTPClient_GetTransactions_BatchUnsupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"batch requests are not supported"}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetTransactions(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for unsupported batch")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "getSignaturesForAddress" {
			t.Errorf("expected method getSignaturesForAddress, got %s", req.Method)
		}
		if req.Params[0] != "watched" {
			t.Errorf("expected address watched, got %v", req.Params[0])
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["limit"] != float64(25) {
			t.Errorf("expected limit 25, got %v", cfg["limit"])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": []map[string]interface{}{
				{"signature": "sig2", "slot": 200, "blockTime": 1700000200, "err": nil},
				{"signature": "sig1", "slot": 100, "blockTime": nil, "err": nil},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	sigs, err := client.GetSignaturesForAddress(context.Background(), "watched", &SignaturesOpts{Limit: 25})
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(sigs))
	}
	if sigs[0].Signature != "sig2" || sigs[0].Slot != 200 {
		t.Errorf("unexpected first signature: %+v", sigs[0])
	}
	if sigs[1].BlockTime != nil {
		t.Errorf("expected nil blockTime, got %v", *sigs[1].BlockTime)
	}
}

func TestHTTPClient_GetSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 987654})
	}))
	defer server.Close()

	slot, err := NewHTTPClient(server.URL).GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 987654 {
		t.Errorf("expected slot 987654, got %d", slot)
	}
}

func TestHTTPClient_RetryOn429(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))

	if _, err := client.GetSlot(context.Background()); err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid params"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))

	_, err := client.GetSlot(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetSlot(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if ctx.Err() == nil {
		t.Error("expected context to be done")
	}
}
