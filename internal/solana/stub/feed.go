package stub

import (
	"context"
	"encoding/json"
	"sync"

	"blinkstream/internal/solana"
)

// Session scripts one Open call on Feed.
type Session struct {
	// Err is returned from Open instead of a stream.
	Err error
	// Messages are returned by Next in order.
	Messages []json.RawMessage
	// EndErr is returned by Next after Messages. Nil blocks until Close.
	EndErr error
}

// Feed implements solana.TransactionFeed from a fixed script of sessions.
// Once the script is exhausted every Open yields an idle stream.
type Feed struct {
	mu       sync.Mutex
	sessions []Session
	filters  []solana.TransactionFilter
	idle     chan struct{}
	idleOnce sync.Once
}

var _ solana.TransactionFeed = (*Feed)(nil)

// NewFeed creates a scripted feed.
func NewFeed(sessions ...Session) *Feed {
	return &Feed{sessions: sessions, idle: make(chan struct{})}
}

// Open consumes the next scripted session.
func (f *Feed) Open(ctx context.Context, filter solana.TransactionFilter) (solana.TransactionStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.filters = append(f.filters, filter)
	if len(f.sessions) == 0 {
		f.mu.Unlock()
		f.idleOnce.Do(func() { close(f.idle) })
		return newStream(Session{}), nil
	}
	s := f.sessions[0]
	f.sessions = f.sessions[1:]
	f.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return newStream(s), nil
}

// Filters returns the filters passed to Open, in call order.
func (f *Feed) Filters() []solana.TransactionFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]solana.TransactionFilter(nil), f.filters...)
}

// Idle is closed once the script is exhausted and an idle stream was opened.
func (f *Feed) Idle() <-chan struct{} {
	return f.idle
}

type stream struct {
	mu       sync.Mutex
	messages []json.RawMessage
	endErr   error
	closed   chan struct{}
	once     sync.Once
}

func newStream(s Session) *stream {
	return &stream{
		messages: append([]json.RawMessage(nil), s.Messages...),
		endErr:   s.EndErr,
		closed:   make(chan struct{}),
	}
}

func (s *stream) Next() (json.RawMessage, error) {
	s.mu.Lock()
	if len(s.messages) > 0 {
		msg := s.messages[0]
		s.messages = s.messages[1:]
		s.mu.Unlock()
		return msg, nil
	}
	endErr := s.endErr
	s.mu.Unlock()

	if endErr != nil {
		return nil, endErr
	}
	<-s.closed
	return nil, solana.ErrStreamClosed
}

func (s *stream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
