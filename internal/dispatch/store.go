package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"blinkstream/internal/domain"
	"blinkstream/internal/idhash"
	"blinkstream/internal/storage"
)

// StoreNotifier persists every event it receives. Records carry a
// deterministic id, so a replayed event is a no-op.
type StoreNotifier struct {
	store storage.EventStore
}

var _ Notifier = (*StoreNotifier)(nil)

// NewStoreNotifier creates a store notifier.
func NewStoreNotifier(store storage.EventStore) *StoreNotifier {
	return &StoreNotifier{store: store}
}

// Notify stores payload if it is a known event.
func (s *StoreNotifier) Notify(ctx context.Context, name string, payload any) error {
	rec, err := Record(name, payload)
	if err != nil {
		return err
	}
	if err := s.store.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

// Record converts an event into its persisted form.
func Record(name string, payload any) (*domain.EventRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	rec := &domain.EventRecord{Name: name, Payload: data}
	switch ev := payload.(type) {
	case domain.SurgeEvent:
		rec.Token, rec.Slot, rec.USDValue, rec.Timestamp = ev.Token, ev.Slot, ev.USDValue, ev.Timestamp
		rec.ID = idhash.ComputeEventID(name, strconv.FormatInt(ev.Timestamp, 10), ev.Token, ev.Slot, 0)
	case domain.LargeSwapEvent:
		rec.Token, rec.Signature, rec.Slot, rec.USDValue, rec.Timestamp = ev.Token, ev.Signature, ev.Slot, ev.USDValue, ev.Timestamp
		rec.ID = idhash.ComputeEventID(name, ev.Signature, ev.Token, ev.Slot, 0)
	case domain.WhaleAlert:
		rec.Token, rec.Signature, rec.Slot, rec.USDValue, rec.Timestamp = ev.Mint, ev.Signature, ev.Slot, ev.USDValue, ev.Timestamp
		rec.ID = idhash.ComputeEventID(name, ev.Signature, ev.Mint, ev.Slot, 0)
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", storage.ErrInvalidInput, payload)
	}
	return rec, nil
}
