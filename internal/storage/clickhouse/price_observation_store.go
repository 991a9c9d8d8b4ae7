package clickhouse

import (
	"context"
	"fmt"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
)

// PriceObservationStore implements storage.PriceObservationStore using ClickHouse.
type PriceObservationStore struct {
	conn *Conn
}

// NewPriceObservationStore creates a new PriceObservationStore.
func NewPriceObservationStore(conn *Conn) *PriceObservationStore {
	return &PriceObservationStore{conn: conn}
}

var _ storage.PriceObservationStore = (*PriceObservationStore)(nil)

// InsertBulk adds observations. MergeTree does not enforce keys, so duplicates
// are checked against the batch and the table before sending.
func (s *PriceObservationStore) InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	type key struct {
		token       string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(obs))
	for _, o := range obs {
		if o == nil || o.Token == "" || o.Timestamp < 0 {
			return storage.ErrInvalidInput
		}
		k := key{o.Token, o.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, o := range obs {
		exists, err := s.exists(ctx, o.Token, o.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_observations (token, timestamp_ms, slot, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		if err := batch.Append(o.Token, uint64(o.Timestamp), uint64(max(o.Slot, 0)), o.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves observations within [start, end), ordered by timestamp.
func (s *PriceObservationStore) GetByTimeRange(ctx context.Context, token string, start, end int64) ([]*domain.PriceObservation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT token, timestamp_ms, slot, price
		FROM price_observations
		WHERE token = ? AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC
	`, token, uint64(max(start, 0)), uint64(max(end, 0)))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []*domain.PriceObservation
	for rows.Next() {
		var (
			o           domain.PriceObservation
			timestampMs uint64
			slot        uint64
		)
		if err := rows.Scan(&o.Token, &timestampMs, &slot, &o.Price); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Timestamp = int64(timestampMs)
		o.Slot = int64(slot)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *PriceObservationStore) exists(ctx context.Context, token string, timestampMs int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM price_observations
		WHERE token = ? AND timestamp_ms = ?
	`, token, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
