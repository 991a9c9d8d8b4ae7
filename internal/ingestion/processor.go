package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"blinkstream/internal/dedup"
	"blinkstream/internal/detection"
	"blinkstream/internal/domain"
	"blinkstream/internal/observability"
	"blinkstream/internal/price"
)

// EventSink receives classified events in order.
type EventSink interface {
	Dispatch(ctx context.Context, ev domain.Event)
}

// ProcessorOptions contains configuration for creating a Processor.
type ProcessorOptions struct {
	Dedup          *dedup.Cache
	Engine         *detection.Engine
	Prices         price.Source
	Sink           EventSink
	ReferenceAsset string // default SOL
	Logger         logrus.FieldLogger
	Now            func() time.Time
}

// Processor is the path shared by live and recovered transactions:
// dedup check, reference price lookup, classification, dispatch.
type Processor struct {
	dedup          *dedup.Cache
	engine         *detection.Engine
	prices         price.Source
	sink           EventSink
	referenceAsset string
	logger         logrus.FieldLogger
	now            func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.ReferenceAsset == "" {
		opts.ReferenceAsset = detection.DefaultReferenceAsset
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{
		dedup:          opts.Dedup,
		engine:         opts.Engine,
		prices:         opts.Prices,
		sink:           opts.Sink,
		referenceAsset: opts.ReferenceAsset,
		logger:         opts.Logger,
		now:            opts.Now,
	}
}

// Process classifies tx and dispatches the resulting events. The price is
// looked up when referencePrice is not a valid price. Returns the number of
// dispatched events. A duplicate signature yields zero events and no error.
func (p *Processor) Process(ctx context.Context, tx *domain.ParsedTransaction, referencePrice float64) (int, error) {
	if tx == nil {
		return 0, nil
	}
	if p.dedup.Seen(tx.Signature) {
		observability.RecordDuplicate()
		p.logger.WithField("signature", tx.Signature).Debug("skipped duplicate signature")
		return 0, nil
	}

	if !price.Valid(referencePrice) {
		var err error
		referencePrice, err = p.ReferencePrice(ctx)
		if err != nil {
			return 0, err
		}
	}

	events := p.engine.ClassifyTransaction(tx, referencePrice, p.now())
	for _, ev := range events {
		p.sink.Dispatch(ctx, ev)
	}
	return len(events), nil
}

// ReferencePrice returns the current price of the reference asset.
func (p *Processor) ReferencePrice(ctx context.Context) (float64, error) {
	v, err := p.prices.Price(ctx, p.referenceAsset)
	if err != nil {
		observability.RecordPriceError(p.referenceAsset)
		return 0, fmt.Errorf("reference price %s: %w", p.referenceAsset, err)
	}
	if !price.Valid(v) {
		observability.RecordPriceError(p.referenceAsset)
		return 0, fmt.Errorf("reference price %s: invalid value %v", p.referenceAsset, v)
	}
	return v, nil
}

// DedupSize returns the number of signatures held by the dedup cache.
func (p *Processor) DedupSize() int {
	return p.dedup.Len()
}

// Known reports whether sig was already processed within the dedup window.
func (p *Processor) Known(sig string) bool {
	return p.dedup.Contains(sig)
}
