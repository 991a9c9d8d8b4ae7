// Package price provides reference USD prices for detection.
package price

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
)

// ErrUnsupportedAsset is returned for assets without a configured feed.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Source returns the current USD price of an asset.
type Source interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// NormalizeSymbol upper-cases and trims an asset symbol.
func NormalizeSymbol(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Valid reports whether p is usable as a reference price.
func Valid(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// StaticSource serves fixed prices. Safe for concurrent use.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]float64
	err    error
}

// NewStaticSource creates a source from symbol to price.
func NewStaticSource(prices map[string]float64) *StaticSource {
	s := &StaticSource{prices: make(map[string]float64, len(prices))}
	for k, v := range prices {
		s.prices[NormalizeSymbol(k)] = v
	}
	return s
}

// Set changes the price of asset.
func (s *StaticSource) Set(asset string, p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[NormalizeSymbol(asset)] = p
}

// SetError makes every lookup fail with err until cleared with nil.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Price returns the configured price.
func (s *StaticSource) Price(_ context.Context, asset string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return 0, s.err
	}
	p, ok := s.prices[NormalizeSymbol(asset)]
	if !ok {
		return 0, ErrUnsupportedAsset
	}
	return p, nil
}
