package storage

import (
	"context"

	"blinkstream/internal/domain"
)

// EventStore persists dispatched events.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.EventRecord) error

	// GetByID retrieves an event by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.EventRecord, error)

	// ListRecent returns up to limit events, newest first. An empty name
	// matches every event kind.
	ListRecent(ctx context.Context, name string, limit int) ([]*domain.EventRecord, error)
}

// PriceObservationStore persists reference price samples.
type PriceObservationStore interface {
	// InsertBulk adds observations. Fails entire batch on duplicate (token, timestamp).
	InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error

	// GetByTimeRange retrieves observations for token within [start, end), ordered by timestamp.
	GetByTimeRange(ctx context.Context, token string, start, end int64) ([]*domain.PriceObservation, error)
}
