package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinkstream/internal/domain"
	"blinkstream/internal/storage"
	"blinkstream/internal/storage/memory"
)

func TestStoreNotifier_PersistsAndIgnoresReplays(t *testing.T) {
	store := memory.NewEventStore()
	n := NewStoreNotifier(store)
	ctx := context.Background()

	alert := domain.WhaleAlert{
		ID:        "sig_So11111111111111111111111111111111111111112",
		Signature: "sig",
		Slot:      42,
		Timestamp: 1000,
		Mint:      "So11111111111111111111111111111111111111112",
		USDValue:  30000,
	}

	require.NoError(t, n.Notify(ctx, domain.EventWhaleAlert, alert))
	require.NoError(t, n.Notify(ctx, domain.EventWhaleAlert, alert))
	assert.Equal(t, 1, store.Len())

	recs, err := store.ListRecent(ctx, domain.EventWhaleAlert, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sig", recs[0].Signature)
	assert.Equal(t, alert.Mint, recs[0].Token)
	assert.Equal(t, 30000.0, recs[0].USDValue)
	assert.Contains(t, string(recs[0].Payload), `"explorerUrl"`)
}

func TestRecord_IDs(t *testing.T) {
	swap := domain.LargeSwapEvent{Token: "SOL", Signature: "sig", Slot: 7, Timestamp: 1}
	whale := domain.WhaleAlert{Signature: "sig", Mint: "mint", Slot: 7, Timestamp: 1}

	a, err := Record(domain.EventLargeSwap, swap)
	require.NoError(t, err)
	b, err := Record(domain.EventWhaleAlert, whale)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID, "same transaction, different kinds")

	s1, err := Record(domain.EventSurge, domain.SurgeEvent{Token: "SOL", Slot: 9, Timestamp: 1000})
	require.NoError(t, err)
	s2, err := Record(domain.EventSurge, domain.SurgeEvent{Token: "SOL", Slot: 9, Timestamp: 40000})
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Empty(t, s1.Signature)
}

func TestRecord_UnsupportedPayload(t *testing.T) {
	_, err := Record("other", map[string]int{"x": 1})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
