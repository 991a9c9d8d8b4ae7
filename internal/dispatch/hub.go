package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"blinkstream/internal/observability"
)

// HubOptions configures Hub.
type HubOptions struct {
	Logger       logrus.FieldLogger
	SendBuffer   int           // per client queue, default 64
	WriteTimeout time.Duration // default 10s
	PingInterval time.Duration // default 30s, 0 disables
	CheckOrigin  func(r *http.Request) bool
}

// Hub pushes events to connected websocket clients as {event, data}
// frames. Clients that fall behind are disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	opts     HubOptions
	logger   logrus.FieldLogger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

var _ Notifier = (*Hub)(nil)

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

type hubMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewHub creates a hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval < 0 {
		opts.PingInterval = 0
	} else if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		opts:     opts,
		logger:   opts.Logger,
		clients:  make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Inbound frames are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &hubClient{
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.opts.WriteTimeout))
		conn.Close()
		return
	}
	defer h.unregister(c)

	go h.writePump(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Notify broadcasts one event to every client.
func (h *Hub) Notify(_ context.Context, name string, payload any) error {
	b, err := json.Marshal(hubMessage{Event: name, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client")
		h.unregister(c)
	}
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.opts.WriteTimeout))
		c.close()
	}
	observability.SetWSClients(0)
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	observability.SetWSClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	observability.SetWSClients(n)
	c.close()
}

func (h *Hub) writePump(c *hubClient) {
	var tick <-chan time.Time
	if h.opts.PingInterval > 0 {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}
