package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"blinkstream/internal/decoder"
	"blinkstream/internal/dedup"
	"blinkstream/internal/domain"
	"blinkstream/internal/observability"
	"blinkstream/internal/solana"
)

// Reconnect backoff bounds.
const (
	InitialBackoff = time.Second
	MaxBackoff     = 15 * time.Second
)

// ErrStreamEnded is reported when the feed ends a stream that was not
// stopped locally.
var ErrStreamEnded = errors.New("stream ended unexpectedly")

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SupervisorOptions contains configuration for creating a Supervisor.
type SupervisorOptions struct {
	Feed      solana.TransactionFeed
	Processor *Processor
	Dedup     *dedup.Cache // evicted in the background while running
	Backfill  *Backfiller  // optional
	// FilterMode is the initial subscription scope, default scoped.
	FilterMode domain.FilterMode
	Logger     logrus.FieldLogger
	Now        func() time.Time
	Wait       WaitFunc
}

// Supervisor owns the live subscription: it connects, consumes messages one
// at a time, reconnects with exponential backoff, degrades the filter once
// when the provider rejects it, and runs a backfill after every reconnect
// that follows a successful session.
type Supervisor struct {
	feed        solana.TransactionFeed
	processor   *Processor
	dedup       *dedup.Cache
	backfill    *Backfiller
	initialMode domain.FilterMode
	logger      logrus.FieldLogger
	now         func() time.Time
	wait        WaitFunc

	mu       sync.Mutex
	status   domain.StreamStatus
	stream   solana.TransactionStream
	cancel   context.CancelFunc
	done     chan struct{}
	sessions int
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	mode := opts.FilterMode
	if mode != domain.FilterBroad {
		mode = domain.FilterScoped
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	wait := opts.Wait
	if wait == nil {
		wait = sleepContext
	}

	return &Supervisor{
		feed:        opts.Feed,
		processor:   opts.Processor,
		dedup:       opts.Dedup,
		backfill:    opts.Backfill,
		initialMode: mode,
		logger:      logger.WithField("component", "stream"),
		now:         now,
		wait:        wait,
		status: domain.StreamStatus{
			State:              domain.StateStopped,
			FilterMode:         mode,
			ReconnectBackoffMs: InitialBackoff.Milliseconds(),
		},
	}
}

// Start launches the supervision loop. It is a no-op while running.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.sessions = 0
	s.status = domain.StreamStatus{
		State:              domain.StateConnecting,
		Running:            true,
		FilterMode:         s.initialMode,
		ReconnectBackoffMs: InitialBackoff.Milliseconds(),
	}

	var wg sync.WaitGroup
	if s.dedup != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dedup.Run(runCtx)
		}()
	}

	done := s.done
	go func() {
		defer close(done)
		s.loop(runCtx)
		cancel()
		wg.Wait()
	}()
}

// Stop requests shutdown, closes the active stream and waits for the loop to
// exit. The message being processed, if any, is finished first. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done, stream := s.cancel, s.done, s.stream
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if stream != nil {
		stream.Close()
	}
	<-done
}

// Run starts the supervisor and blocks until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Status returns a snapshot of stream, backfill and dedup state.
func (s *Supervisor) Status() domain.StatusSnapshot {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	if s.backfill != nil {
		st.Backfill = s.backfill.Status()
	}
	return domain.StatusSnapshot{
		StreamStatus:   st,
		DedupCacheSize: s.processor.DedupSize(),
	}
}

func (s *Supervisor) loop(ctx context.Context) {
	backoff := InitialBackoff
	mode := s.initialMode

	defer s.markStopped()

	for ctx.Err() == nil {
		s.update(func(st *domain.StreamStatus) {
			st.State = domain.StateConnecting
			st.FilterMode = mode
			st.ReconnectBackoffMs = backoff.Milliseconds()
		})

		err := s.session(ctx, mode, &backoff)
		if ctx.Err() != nil {
			return
		}

		s.markDisconnected(err)

		if mode == domain.FilterScoped && errors.Is(err, solana.ErrFilterRejected) {
			mode = domain.FilterBroad
			observability.RecordFilterFallback()
			s.logger.WithError(err).Warn("scoped filter rejected, falling back to broad subscription")
			continue
		}

		s.logger.WithError(err).WithField("backoffMs", backoff.Milliseconds()).Warn("stream disconnected, retrying")
		if err := s.wait(ctx, backoff); err != nil {
			return
		}
		backoff = min(backoff*2, MaxBackoff)
	}
}

// session opens one subscription and consumes it until it fails.
func (s *Supervisor) session(ctx context.Context, mode domain.FilterMode, backoff *time.Duration) error {
	filter := solana.ScopedFilter()
	if mode == domain.FilterBroad {
		filter = solana.BroadFilter()
	}

	stream, err := s.feed.Open(ctx, filter)
	if err != nil {
		return fmt.Errorf("open %s subscription: %w", mode, err)
	}
	defer s.clearStream(stream)

	if !s.setStream(ctx, stream) {
		return ctx.Err()
	}
	*backoff = InitialBackoff

	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	s.status.State = domain.StateStreaming
	s.status.Connected = true
	s.status.LastConnectedAt = &nowMs
	s.status.LastError = ""
	s.status.ReconnectBackoffMs = InitialBackoff.Milliseconds()
	reconnect := s.sessions > 0
	s.sessions++
	s.mu.Unlock()

	observability.SetConnected(true)
	s.logger.WithField("filter", mode).Info("stream connected")

	if reconnect && s.backfill != nil && s.backfill.Enabled() {
		if _, err := s.backfill.Run(ctx); err != nil {
			s.logger.WithError(err).Warn("backfill completed with errors")
		}
	}

	return s.consume(ctx, stream)
}

func (s *Supervisor) consume(ctx context.Context, stream solana.TransactionStream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, solana.ErrStreamClosed) {
				return fmt.Errorf("%w: %v", ErrStreamEnded, err)
			}
			return err
		}
		// A stop request lets the current message finish.
		s.handleMessage(context.WithoutCancel(ctx), raw)
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, raw json.RawMessage) {
	start := time.Now()
	nowMs := s.now().UnixMilli()
	s.update(func(st *domain.StreamStatus) { st.LastMessageAt = &nowMs })
	observability.RecordMessage()

	tx := decoder.Decode(decoder.LiveMessage(raw))
	if tx == nil {
		s.logger.Debug("message without token transfers skipped")
		return
	}
	observability.RecordDecoded(tx.Slot)

	if _, err := s.processor.Process(ctx, tx, 0); err != nil {
		s.logger.WithError(err).WithField("signature", tx.Signature).Warn("transaction not processed")
	}
	observability.SetDedupCacheSize(s.processor.DedupSize())
	observability.RecordProcessingLatency(time.Since(start).Seconds())
}

// setStream publishes the active stream so Stop can close it. It reports
// false when a stop raced the open.
func (s *Supervisor) setStream(ctx context.Context, stream solana.TransactionStream) bool {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	return ctx.Err() == nil
}

func (s *Supervisor) clearStream(stream solana.TransactionStream) {
	stream.Close()
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
	}
	s.mu.Unlock()
}

func (s *Supervisor) markDisconnected(err error) {
	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	if s.status.Connected {
		s.status.LastDisconnectedAt = &nowMs
	}
	s.status.Connected = false
	s.status.State = domain.StateBackingOff
	s.status.ReconnectCount++
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	observability.SetConnected(false)
	observability.RecordReconnect()
}

func (s *Supervisor) markStopped() {
	nowMs := s.now().UnixMilli()
	s.mu.Lock()
	if s.status.Connected {
		s.status.LastDisconnectedAt = &nowMs
	}
	s.status.Connected = false
	s.status.Running = false
	s.status.State = domain.StateStopped
	s.cancel = nil
	s.mu.Unlock()

	observability.SetConnected(false)
	s.logger.Info("stream stopped")
}

func (s *Supervisor) update(fn func(st *domain.StreamStatus)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
