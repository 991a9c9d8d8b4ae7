package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinkstream/internal/domain"
)

type recorder struct {
	names    []string
	payloads []any
	err      error
}

func (r *recorder) Notify(_ context.Context, name string, payload any) error {
	r.names = append(r.names, name)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func TestDispatcher_UsesFixedEventNames(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, Options{})

	d.Dispatch(context.Background(), domain.SurgeEvent{Type: domain.TypeSurge, Token: "SOL"})
	d.Dispatch(context.Background(), domain.LargeSwapEvent{Type: domain.TypeLargeSwap, Signature: "sig"})
	d.Dispatch(context.Background(), domain.WhaleAlert{ID: "sig_mint"})

	assert.Equal(t, []string{"surge", "large-swap", "whale-alert"}, rec.names)
	swap, ok := rec.payloads[1].(domain.LargeSwapEvent)
	require.True(t, ok)
	assert.Equal(t, "sig", swap.Signature)
}

func TestDispatcher_FailureIsLoggedNotReturned(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recorder{err: errors.New("transport down")}
	d := NewDispatcher(rec, Options{Logger: logger})

	d.Dispatch(context.Background(), domain.SurgeEvent{Token: "SOL"})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "surge", entry.Data["event"])
}

func TestMulti_AttemptsAll(t *testing.T) {
	first := &recorder{err: errors.New("first")}
	second := &recorder{}
	third := &recorder{err: errors.New("third")}

	err := Multi{first, second, third}.Notify(context.Background(), "surge", domain.SurgeEvent{})

	assert.Len(t, second.names, 1)
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "third")
}

func TestNotifierFunc(t *testing.T) {
	var got string
	n := NotifierFunc(func(_ context.Context, name string, _ any) error {
		got = name
		return nil
	})
	require.NoError(t, n.Notify(context.Background(), "whale-alert", nil))
	assert.Equal(t, "whale-alert", got)
}
