package ingestion

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"blinkstream/internal/detection"
	"blinkstream/internal/domain"
	"blinkstream/internal/observability"
	"blinkstream/internal/price"
	"blinkstream/internal/solana"
	"blinkstream/internal/storage"
)

// DefaultPollInterval is the price polling period.
const DefaultPollInterval = 5 * time.Second

// PricePollerOptions contains configuration for creating a PricePoller.
type PricePollerOptions struct {
	Prices       price.Source
	Surge        *detection.SurgeDetector
	Sink         EventSink
	RPC          solana.RPCClient              // optional, slot lookup
	Observations storage.PriceObservationStore // optional
	Assets       []string
	Interval     time.Duration
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// PricePoller periodically samples asset prices, records them and feeds
// them to the surge detector.
type PricePoller struct {
	prices       price.Source
	surge        *detection.SurgeDetector
	sink         EventSink
	rpc          solana.RPCClient
	observations storage.PriceObservationStore
	assets       []string
	interval     time.Duration
	logger       logrus.FieldLogger
	now          func() time.Time
}

// NewPricePoller creates a poller.
func NewPricePoller(opts PricePollerOptions) *PricePoller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	assets := opts.Assets
	if len(assets) == 0 {
		assets = []string{detection.DefaultReferenceAsset}
	}

	return &PricePoller{
		prices:       opts.Prices,
		surge:        opts.Surge,
		sink:         opts.Sink,
		rpc:          opts.RPC,
		observations: opts.Observations,
		assets:       assets,
		interval:     interval,
		logger:       logger.WithField("component", "price-poller"),
		now:          now,
	}
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *PricePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll samples every asset once and returns the surge events dispatched.
func (p *PricePoller) Poll(ctx context.Context) []domain.SurgeEvent {
	now := p.now()
	slot := p.currentSlot(ctx)

	var (
		observations []*domain.PriceObservation
		events       []domain.SurgeEvent
	)
	for _, asset := range p.assets {
		if ctx.Err() != nil {
			return events
		}
		v, err := p.prices.Price(ctx, asset)
		if err != nil || !price.Valid(v) {
			observability.RecordPriceError(asset)
			p.logger.WithError(err).WithField("asset", asset).Warn("price unavailable")
			continue
		}

		observations = append(observations, &domain.PriceObservation{
			Token:     detection.NormalizeAsset(asset),
			Price:     v,
			Slot:      slot,
			Timestamp: now.UnixMilli(),
		})

		if ev := p.surge.Evaluate(asset, v, slot, now); ev != nil {
			p.sink.Dispatch(ctx, *ev)
			events = append(events, *ev)
		}
	}

	if p.observations != nil && len(observations) > 0 {
		if err := p.observations.InsertBulk(ctx, observations); err != nil {
			p.logger.WithError(err).Warn("store price observations")
		}
	}
	return events
}

func (p *PricePoller) currentSlot(ctx context.Context) int64 {
	if p.rpc == nil {
		return 0
	}
	start := time.Now()
	slot, err := p.rpc.GetSlot(ctx)
	observability.RecordRPCLatency("getSlot", time.Since(start).Seconds())
	if err != nil {
		p.logger.WithError(err).Debug("slot lookup failed")
		return 0
	}
	return slot
}
