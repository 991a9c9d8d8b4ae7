package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
	"blinkstream/internal/storage/postgres"
)

func TestEventStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewEventStore(pool)
	ctx := context.Background()

	newRecord := func(id, name string, ts int64) *domain.EventRecord {
		return &domain.EventRecord{
			ID:        id,
			Name:      name,
			Token:     "SOL",
			Signature: "sig-" + id,
			Slot:      250000000 + ts,
			USDValue:  15000,
			Payload:   json.RawMessage(`{"token":"SOL","usdValue":15000}`),
			Timestamp: ts,
		}
	}

	t.Run("insert and get", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, newRecord("e1", domain.EventLargeSwap, 1000)))

		got, err := store.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, domain.EventLargeSwap, got.Name)
		assert.Equal(t, "sig-e1", got.Signature)
		assert.Equal(t, int64(1000), got.Timestamp)
		assert.JSONEq(t, `{"token":"SOL","usdValue":15000}`, string(got.Payload))
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := store.Insert(ctx, newRecord("e1", domain.EventLargeSwap, 1000))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
		_, err := store.ListRecent(ctx, "", 0)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("list recent", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, newRecord("e2", domain.EventWhaleAlert, 3000)))
		require.NoError(t, store.Insert(ctx, newRecord("e3", domain.EventLargeSwap, 2000)))

		all, err := store.ListRecent(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "e2", all[0].ID)
		assert.Equal(t, "e3", all[1].ID)
		assert.Equal(t, "e1", all[2].ID)

		swaps, err := store.ListRecent(ctx, domain.EventLargeSwap, 1)
		require.NoError(t, err)
		require.Len(t, swaps, 1)
		assert.Equal(t, "e3", swaps[0].ID)
	})
}
