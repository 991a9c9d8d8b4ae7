package memory

import (
	"context"
	"sort"
	"sync"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
)

type observationKey struct {
	token       string
	timestampMs int64
}

// PriceObservationStore is an in-memory implementation of storage.PriceObservationStore.
type PriceObservationStore struct {
	mu   sync.RWMutex
	data map[observationKey]*domain.PriceObservation
}

// NewPriceObservationStore creates a new in-memory price observation store.
func NewPriceObservationStore() *PriceObservationStore {
	return &PriceObservationStore{data: make(map[observationKey]*domain.PriceObservation)}
}

var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)

// InsertBulk adds observations. Fails entire batch on duplicate.
func (s *PriceObservationStore) InsertBulk(_ context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[observationKey]struct{}, len(obs))
	for _, o := range obs {
		if o == nil || o.Token == "" {
			return storage.ErrInvalidInput
		}
		k := observationKey{o.Token, o.Timestamp}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, o := range obs {
		cp := *o
		s.data[observationKey{o.Token, o.Timestamp}] = &cp
	}
	return nil
}

// GetByTimeRange retrieves observations within [start, end).
func (s *PriceObservationStore) GetByTimeRange(_ context.Context, token string, start, end int64) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PriceObservation
	for k, o := range s.data {
		if k.token == token && o.Timestamp >= start && o.Timestamp < end {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
