package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testWSConfig() *WSClientConfig {
	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.PingInterval = 0
	return &cfg
}

// feedServer answers the subscribe request via respond and then runs after.
func feedServer(t *testing.T, respond func(req wsRequest) interface{}, after func(c *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if err := c.WriteJSON(respond(req)); err != nil {
			return
		}
		if after != nil {
			after(c)
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSFeed_OpenAndNext(t *testing.T) {
	var gotFilter map[string]interface{}

	server := feedServer(t,
		func(req wsRequest) interface{} {
			if req.Method != "transactionSubscribe" {
				t.Errorf("expected transactionSubscribe, got %s", req.Method)
			}
			gotFilter, _ = req.Params[0].(map[string]interface{})
			return map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42}
		},
		func(c *websocket.Conn) {
			// Unrelated subscription is skipped.
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "transactionNotification",
				"params":  map[string]interface{}{"subscription": 7, "result": map[string]interface{}{"signature": "other"}},
			})
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "transactionNotification",
				"params":  map[string]interface{}{"subscription": 42, "result": map[string]interface{}{"signature": "sig1", "slot": 10}},
			})
		})
	defer server.Close()

	feed := NewWSFeed(wsURL(server), testWSConfig())
	stream, err := feed.Open(context.Background(), ScopedFilter())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	include, _ := gotFilter["accountInclude"].([]interface{})
	if len(include) != 2 {
		t.Errorf("expected 2 accountInclude entries, got %v", gotFilter["accountInclude"])
	}

	raw, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	var payload struct {
		Signature string `json:"signature"`
		Slot      int64  `json:"slot"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Signature != "sig1" || payload.Slot != 10 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestWSFeed_BroadFilterOmitsAccountInclude(t *testing.T) {
	var gotFilter map[string]interface{}

	server := feedServer(t, func(req wsRequest) interface{} {
		gotFilter, _ = req.Params[0].(map[string]interface{})
		return map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1}
	}, nil)
	defer server.Close()

	stream, err := NewWSFeed(wsURL(server), testWSConfig()).Open(context.Background(), BroadFilter())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if _, ok := gotFilter["accountInclude"]; ok {
		t.Error("broad filter should not send accountInclude")
	}
	if gotFilter["vote"] != false || gotFilter["failed"] != false {
		t.Errorf("expected vote/failed false, got %v", gotFilter)
	}
}

func TestWSFeed_FilterRejected(t *testing.T) {
	server := feedServer(t, func(req wsRequest) interface{} {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid params: accountInclude in filters is not allowed"},
		}
	}, nil)
	defer server.Close()

	_, err := NewWSFeed(wsURL(server), testWSConfig()).Open(context.Background(), ScopedFilter())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrFilterRejected) {
		t.Errorf("expected ErrFilterRejected, got %v", err)
	}
}

func TestWSFeed_OtherSubscribeErrorNotFilterRejection(t *testing.T) {
	server := feedServer(t, func(req wsRequest) interface{} {
		return map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32000, "message": "too many subscriptions"},
		}
	}, nil)
	defer server.Close()

	_, err := NewWSFeed(wsURL(server), testWSConfig()).Open(context.Background(), ScopedFilter())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrFilterRejected) {
		t.Errorf("unexpected filter rejection: %v", err)
	}
}

func TestWSFeed_CloseUnblocksNext(t *testing.T) {
	server := feedServer(t, func(req wsRequest) interface{} {
		return map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 5}
	}, nil)
	defer server.Close()

	stream, err := NewWSFeed(wsURL(server), testWSConfig()).Open(context.Background(), ScopedFilter())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	stream.Close()
	stream.Close() // idempotent

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestWSFeed_ServerCloseEndsStream(t *testing.T) {
	server := feedServer(t,
		func(req wsRequest) interface{} {
			return map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 5}
		},
		func(c *websocket.Conn) {
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		})
	defer server.Close()

	stream, err := NewWSFeed(wsURL(server), testWSConfig()).Open(context.Background(), ScopedFilter())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err == nil {
		t.Fatal("expected error after server close")
	}
}

func TestWSFeed_DialError(t *testing.T) {
	_, err := NewWSFeed("ws://127.0.0.1:1", testWSConfig()).Open(context.Background(), BroadFilter())
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestIsFilterRejection(t *testing.T) {
	tests := []struct {
		code int
		msg  string
		want bool
	}{
		{0, "Failed to create filter: unsupported", true},
		{0, "accountInclude in filters is not allowed", true},
		{0, "INVALID_ARGUMENT: bad filter", true},
		{-32602, "Invalid params: filter too large", true},
		{-32602, "Invalid params: missing commitment", false},
		{-32000, "internal error", false},
		{0, "invalid_argument: bad commitment", false},
	}

	for _, tt := range tests {
		if got := IsFilterRejection(tt.code, tt.msg); got != tt.want {
			t.Errorf("IsFilterRejection(%d, %q) = %v, want %v", tt.code, tt.msg, got, tt.want)
		}
	}
}
