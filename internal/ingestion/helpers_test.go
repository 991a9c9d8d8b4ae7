package ingestion

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"blinkstream/internal/dedup"
	"blinkstream/internal/detection"
	"blinkstream/internal/domain"
	"blinkstream/internal/price"
	"blinkstream/internal/solana"
)

const (
	tokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	wsolMint     = "So11111111111111111111111111111111111111112"

	// 60 SOL at 200 USD clears the large swap threshold but not the whale ones.
	swapAmountRaw = 60_000_000_000
	solPrice      = 200.0
)

// recordingSink collects dispatched events.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Dispatch(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

type pipeline struct {
	processor *Processor
	dedup     *dedup.Cache
	prices    *price.StaticSource
	sink      *recordingSink
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	cache := dedup.New(dedup.Options{})
	prices := price.NewStaticSource(map[string]float64{"SOL": solPrice})
	sink := &recordingSink{}
	engine := detection.NewEngine(detection.SurgeOptions{}, detection.SwapOptions{}, detection.WhaleOptions{})

	return &pipeline{
		processor: NewProcessor(ProcessorOptions{
			Dedup:  cache,
			Engine: engine,
			Prices: prices,
			Sink:   sink,
			Logger: quietLogger(),
			Now:    func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		}),
		dedup:  cache,
		prices: prices,
		sink:   sink,
	}
}

func transferInstruction(amountRaw uint64) map[string]interface{} {
	return map[string]interface{}{
		"program":   "spl-token",
		"programId": tokenProgram,
		"parsed": map[string]interface{}{
			"type": "transferChecked",
			"info": map[string]interface{}{
				"source":      "srcAcct",
				"destination": "dstAcct",
				"mint":        wsolMint,
				"tokenAmount": map[string]interface{}{"amount": strconv.FormatUint(amountRaw, 10), "decimals": 9},
			},
		},
	}
}

func txMessage(sig string, amountRaw uint64) map[string]interface{} {
	return map[string]interface{}{
		"signatures": []string{sig},
		"message": map[string]interface{}{
			"accountKeys":  []interface{}{map[string]interface{}{"pubkey": "owner", "signer": true}},
			"instructions": []interface{}{transferInstruction(amountRaw)},
		},
	}
}

// liveTransfer builds a feed notification carrying one token transfer.
func liveTransfer(t *testing.T, sig string, slot int64, amountRaw uint64) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"signature": sig,
		"slot":      slot,
		"transaction": map[string]interface{}{
			"transaction": txMessage(sig, amountRaw),
			"meta":        map[string]interface{}{"err": nil},
		},
	})
	require.NoError(t, err)
	return b
}

// historicalTransfer builds a getTransaction body carrying one token transfer.
func historicalTransfer(t *testing.T, sig string, slot int64, amountRaw uint64) *solana.Transaction {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"slot":        slot,
		"transaction": txMessage(sig, amountRaw),
		"meta":        map[string]interface{}{"err": nil},
	})
	require.NoError(t, err)
	return &solana.Transaction{Signature: sig, Slot: slot, Raw: b}
}

func parsedTransfer(sig string, slot int64, amountRaw uint64) *domain.ParsedTransaction {
	mint := wsolMint
	return &domain.ParsedTransaction{
		Signature: sig,
		Slot:      slot,
		Transfers: []domain.Transfer{{AmountRaw: amountRaw, Decimals: 9, Mint: &mint}},
	}
}
