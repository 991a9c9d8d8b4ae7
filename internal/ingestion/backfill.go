package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"blinkstream/internal/decoder"
	"blinkstream/internal/domain"
	"blinkstream/internal/observability"
	"blinkstream/internal/solana"
)

// Backfill defaults and bounds.
const (
	DefaultBackfillLimit         = 25
	DefaultBackfillBatchSize     = 8
	DefaultBackfillLookupTimeout = 4 * time.Second
	DefaultBackfillBatchTimeout  = 5 * time.Second
	MaxBackfillLimit             = 100
	MaxBackfillBatchSize         = 25
)

// Backfiller recovers transactions missed while the live feed was down by
// replaying recent signatures of a fixed watch list through the Processor.
type Backfiller struct {
	rpc           solana.RPCClient
	processor     *Processor
	addresses     []string
	limit         int
	batchSize     int
	lookupTimeout time.Duration
	batchTimeout  time.Duration
	logger        logrus.FieldLogger
	now           func() time.Time

	mu     sync.Mutex
	status domain.BackfillStatus
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC           solana.RPCClient
	Processor     *Processor
	Addresses     []string
	Limit         int           // signatures per address, default 25
	BatchSize     int           // bodies per batch, default 8
	LookupTimeout time.Duration // per address lookup, default 4s
	BatchTimeout  time.Duration // per batch fetch, default 5s
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

// NewBackfiller creates a new gap recovery backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	if limit > MaxBackfillLimit {
		limit = MaxBackfillLimit
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	if batchSize > MaxBackfillBatchSize {
		batchSize = MaxBackfillBatchSize
	}

	lookupTimeout := opts.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultBackfillLookupTimeout
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = DefaultBackfillBatchTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Backfiller{
		rpc:           opts.RPC,
		processor:     opts.Processor,
		addresses:     append([]string(nil), opts.Addresses...),
		limit:         limit,
		batchSize:     batchSize,
		lookupTimeout: lookupTimeout,
		batchTimeout:  batchTimeout,
		logger:        logger.WithField("component", "backfill"),
		now:           now,
		status:        domain.BackfillStatus{Enabled: opts.RPC != nil && len(opts.Addresses) > 0},
	}
}

// BackfillResult contains statistics from one recovery sweep.
type BackfillResult struct {
	Candidates int // signatures left after merge and dedup filtering
	Processed  int // signatures that were part of an attempted batch
	Emitted    int // events dispatched
	Errors     int // failed lookups and batches
	Duration   time.Duration
}

// Enabled reports whether the backfiller has something to do.
func (b *Backfiller) Enabled() bool {
	return b.status.Enabled
}

// Status returns a copy of the accumulated backfill status.
func (b *Backfiller) Status() domain.BackfillStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Run performs one recovery sweep. Failures of single lookups or batches are
// logged and recorded but do not stop the sweep; the last one is returned.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}
	if !b.Enabled() {
		return result, nil
	}

	start := b.now()
	b.mu.Lock()
	b.status.InProgress = true
	b.status.Runs++
	startMs := start.UnixMilli()
	b.status.LastRunAt = &startMs
	b.mu.Unlock()

	lastErr := b.sweep(ctx, result)

	result.Duration = b.now().Sub(start)
	b.finish(result, lastErr)
	return result, lastErr
}

func (b *Backfiller) sweep(ctx context.Context, result *BackfillResult) error {
	var lastErr error

	lists := make([][]solana.SignatureInfo, 0, len(b.addresses))
	for _, addr := range b.addresses {
		if err := ctx.Err(); err != nil {
			return err
		}
		sigs, err := b.lookup(ctx, addr)
		if err != nil {
			result.Errors++
			lastErr = fmt.Errorf("lookup %s: %w", addr, err)
			b.logger.WithError(err).WithField("address", addr).Warn("signature lookup failed")
			continue
		}
		lists = append(lists, sigs)
	}

	var pending []string
	for _, s := range mergeSignatures(lists...) {
		if s.Err != nil || b.processor.Known(s.Signature) {
			continue
		}
		pending = append(pending, s.Signature)
	}
	result.Candidates = len(pending)
	if len(pending) == 0 {
		return lastErr
	}

	referencePrice, err := b.processor.ReferencePrice(ctx)
	if err != nil {
		result.Errors++
		b.logger.WithError(err).Warn("reference price unavailable, sweep skipped")
		return err
	}

	for start := 0; start < len(pending); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+b.batchSize, len(pending))
		chunk := pending[start:end]
		result.Processed += len(chunk)

		txs, err := b.fetchBatch(ctx, chunk)
		if err != nil {
			result.Errors++
			lastErr = fmt.Errorf("fetch batch: %w", err)
			b.logger.WithError(err).WithField("size", len(chunk)).Warn("batch fetch failed")
			continue
		}

		for i, tx := range txs {
			if tx == nil {
				continue
			}
			parsed := decoder.Decode(decoder.HistoricalTransaction{Signature: chunk[i], Raw: tx.Raw})
			if parsed == nil {
				continue
			}
			n, err := b.processor.Process(ctx, parsed, referencePrice)
			if err != nil {
				b.logger.WithError(err).WithField("signature", parsed.Signature).Warn("recovered transaction not processed")
				continue
			}
			result.Emitted += n
		}
	}
	return lastErr
}

func (b *Backfiller) lookup(ctx context.Context, addr string) ([]solana.SignatureInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.lookupTimeout)
	defer cancel()

	start := time.Now()
	sigs, err := b.rpc.GetSignaturesForAddress(ctx, addr, &solana.SignaturesOpts{Limit: b.limit})
	observability.RecordRPCLatency("getSignaturesForAddress", time.Since(start).Seconds())
	return sigs, err
}

// fetchBatch loads bodies for sigs, index-aligned. A rejected batched call
// falls back to concurrent single lookups bounded by the batch size.
func (b *Backfiller) fetchBatch(ctx context.Context, sigs []string) ([]*solana.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, b.batchTimeout)
	defer cancel()

	start := time.Now()
	txs, err := b.rpc.GetTransactions(ctx, sigs)
	observability.RecordRPCLatency("getTransactionBatch", time.Since(start).Seconds())
	if err == nil {
		return txs, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	b.logger.WithError(err).Debug("batched fetch rejected, falling back to single lookups")

	txs = make([]*solana.Transaction, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.batchSize)
	for i, sig := range sigs {
		g.Go(func() error {
			start := time.Now()
			tx, err := b.rpc.GetTransaction(gctx, sig)
			observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
			if err != nil {
				// A single missing body does not fail the batch.
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			txs[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (b *Backfiller) finish(result *BackfillResult, err error) {
	b.mu.Lock()
	b.status.InProgress = false
	b.status.ProcessedSignatures += int64(result.Processed)
	b.status.EmittedEvents += int64(result.Emitted)
	b.status.LastRecoveredCount = int64(result.Emitted)
	b.status.LastDurationMs = result.Duration.Milliseconds()
	if err != nil {
		b.status.LastError = err.Error()
	} else {
		b.status.LastError = ""
	}
	b.mu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordBackfill(status, result.Emitted, result.Duration.Seconds())

	b.logger.WithFields(logrus.Fields{
		"candidates": result.Candidates,
		"processed":  result.Processed,
		"emitted":    result.Emitted,
		"errors":     result.Errors,
		"durationMs": result.Duration.Milliseconds(),
	}).Info("backfill finished")
}
