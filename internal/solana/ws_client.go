package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures the websocket transaction feed.
type WSClientConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription confirmation.
	SubscribeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the maximum silence tolerated between frames.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Commitment is the commitment level requested for notifications.
	Commitment string
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		Commitment:       "confirmed",
	}
}

// WSFeed implements TransactionFeed over the transactionSubscribe
// websocket method.
type WSFeed struct {
	endpoint  string
	config    WSClientConfig
	requestID atomic.Uint64
}

var _ TransactionFeed = (*WSFeed)(nil)

// NewWSFeed creates a feed for the given websocket endpoint.
func NewWSFeed(endpoint string, config *WSClientConfig) *WSFeed {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSFeed{endpoint: endpoint, config: cfg}
}

// Open dials the endpoint, subscribes with filter and waits for the
// subscription to be confirmed.
func (f *WSFeed) Open(ctx context.Context, filter TransactionFilter) (TransactionStream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: f.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &wsStream{
		conn:   conn,
		config: f.config,
		done:   make(chan struct{}),
	}

	// Unblock reads if the caller gives up while subscribing.
	stopWatch := context.AfterFunc(ctx, func() { s.Close() })
	subID, err := s.subscribe(f.requestID.Add(1), filter)
	stopWatch()
	if err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	s.subID = subID

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	config WSClientConfig
	subID  int64

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func (s *wsStream) subscribe(reqID uint64, filter TransactionFilter) (int64, error) {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			filter.params(),
			map[string]interface{}{
				"commitment":                     s.config.Commitment,
				"encoding":                       "jsonParsed",
				"transactionDetails":             "full",
				"showRewards":                    false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	err := s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(s.config.SubscribeTimeout)
	for {
		s.conn.SetReadDeadline(deadline)
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("await subscription: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.ID != reqID {
			continue
		}
		if msg.Error != nil {
			return 0, classifyRPCError(msg.Error)
		}

		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return 0, fmt.Errorf("unmarshal subscription id: %w", err)
		}
		return subID, nil
	}
}

// Next returns the next transactionNotification result payload.
func (s *wsStream) Next() (json.RawMessage, error) {
	for {
		if s.closed.Load() {
			return nil, ErrStreamClosed
		}

		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return nil, ErrStreamClosed
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, fmt.Errorf("%w: %s", ErrStreamClosed, closeErr.Error())
			}
			return nil, fmt.Errorf("read message: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Error != nil {
			return nil, classifyRPCError(msg.Error)
		}
		if msg.Method != "transactionNotification" || msg.Params == nil {
			continue
		}
		if s.subID != 0 && msg.Params.Subscription != s.subID {
			continue
		}
		return msg.Params.Result, nil
	}
}

// Close closes the websocket connection.
func (s *wsStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.config.WriteTimeout))
	err := s.conn.Close()

	s.wg.Wait()
	return err
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *wsStream) pingLoop() {
	defer s.wg.Done()

	if s.config.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// A failed ping surfaces as a read error in Next.
			s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
		}
	}
}

func classifyRPCError(e *RPCError) error {
	if IsFilterRejection(e.Code, e.Message) {
		return fmt.Errorf("%w: %s", ErrFilterRejected, e.Message)
	}
	return e
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage covers responses, errors and notifications.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
