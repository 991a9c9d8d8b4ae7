package memory

import (
	"context"
	"sort"
	"sync"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.EventRecord
	ids  map[string]int
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{ids: make(map[string]int)}
}

var _ storage.EventStore = (*EventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if the id exists.
func (s *EventStore) Insert(_ context.Context, r *domain.EventRecord) error {
	if r == nil || r.ID == "" || r.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *r
	rec.Payload = append([]byte(nil), r.Payload...)
	s.ids[r.ID] = len(s.data)
	s.data = append(s.data, &rec)
	return nil
}

// GetByID retrieves an event by id.
func (s *EventStore) GetByID(_ context.Context, id string) (*domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.ids[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := *s.data[i]
	return &rec, nil
}

// ListRecent returns up to limit events, newest first.
func (s *EventStore) ListRecent(_ context.Context, name string, limit int) ([]*domain.EventRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	var out []*domain.EventRecord
	for _, r := range s.data {
		if name != "" && r.Name != name {
			continue
		}
		rec := *r
		out = append(out, &rec)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
