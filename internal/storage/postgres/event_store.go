package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `id, name, token, signature, slot, usd_value, payload, timestamp_ms`

// Insert adds a new event. Returns ErrDuplicateKey if the id exists.
func (s *EventStore) Insert(ctx context.Context, r *domain.EventRecord) error {
	if r == nil || r.ID == "" || r.Name == "" {
		return storage.ErrInvalidInput
	}

	payload := r.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.Name, r.Token, r.Signature, r.Slot, r.USDValue, string(payload), r.Timestamp)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by id.
func (s *EventStore) GetByID(ctx context.Context, id string) (*domain.EventRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	r, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return r, nil
}

// ListRecent returns up to limit events, newest first.
func (s *EventStore) ListRecent(ctx context.Context, name string, limit int) ([]*domain.EventRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	var (
		rows pgx.Rows
		err  error
	)
	if name == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT `+eventColumns+` FROM events
			ORDER BY timestamp_ms DESC, id
			LIMIT $1
		`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+eventColumns+` FROM events
			WHERE name = $1
			ORDER BY timestamp_ms DESC, id
			LIMIT $2
		`, name, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*domain.EventRecord
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.EventRecord, error) {
	var (
		r       domain.EventRecord
		payload []byte
	)
	err := row.Scan(&r.ID, &r.Name, &r.Token, &r.Signature, &r.Slot, &r.USDValue, &payload, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	r.Payload = payload
	return &r, nil
}
