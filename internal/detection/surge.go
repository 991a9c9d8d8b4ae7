package detection

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"blinkstream/internal/domain"
)

// Surge setting bounds and defaults.
const (
	MinSurgeThresholdPercent     = 0.1
	MaxSurgeThresholdPercent     = 100.0
	MinSurgeCooldownMs           = 1000
	MaxSurgeCooldownMs           = 3_600_000
	DefaultSurgeThresholdPercent = 3.0
	DefaultSurgeCooldownMs       = 30_000
	DefaultSurgeUSDMultiplier    = 4000.0
)

// ErrInvalidSetting is returned for non-finite setting values.
var ErrInvalidSetting = errors.New("invalid setting")

// SurgeSettings are the runtime-adjustable surge parameters.
type SurgeSettings struct {
	ThresholdPercent float64 `json:"thresholdPercent"`
	CooldownMs       int64   `json:"cooldownMs"`
}

// SurgeSettingsUpdate is a partial settings change. Nil fields are kept.
type SurgeSettingsUpdate struct {
	ThresholdPercent *float64 `json:"thresholdPercent,omitempty"`
	CooldownMs       *float64 `json:"cooldownMs,omitempty"`
}

// SurgeOptions configures SurgeDetector. Zero values select defaults.
type SurgeOptions struct {
	ThresholdPercent float64
	CooldownMs       int64
	USDMultiplier    float64 // usdValue = |changePercent| * USDMultiplier
}

type surgeState struct {
	lastPrice   float64
	lastSurgeAt time.Time
	hasSurged   bool
}

// SurgeDetector tracks per-asset price baselines and fires when the move
// from the previous observation crosses the threshold outside cooldown.
// It is safe for concurrent use.
type SurgeDetector struct {
	mu            sync.Mutex
	settings      SurgeSettings
	usdMultiplier float64
	states        map[string]*surgeState
}

// NewSurgeDetector creates a detector. Configured values are clamped.
func NewSurgeDetector(opts SurgeOptions) *SurgeDetector {
	threshold := opts.ThresholdPercent
	if threshold == 0 || !isFinite(threshold) {
		threshold = DefaultSurgeThresholdPercent
	}
	cooldown := opts.CooldownMs
	if cooldown == 0 {
		cooldown = DefaultSurgeCooldownMs
	}
	if opts.USDMultiplier <= 0 || !isFinite(opts.USDMultiplier) {
		opts.USDMultiplier = DefaultSurgeUSDMultiplier
	}

	return &SurgeDetector{
		settings: SurgeSettings{
			ThresholdPercent: clampThreshold(threshold),
			CooldownMs:       clampCooldown(float64(cooldown)),
		},
		usdMultiplier: opts.USDMultiplier,
		states:        make(map[string]*surgeState),
	}
}

// Settings returns the current settings.
func (d *SurgeDetector) Settings() SurgeSettings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// UpdateSettings applies u after clamping to the allowed bounds. The change
// applies immediately to all assets.
func (d *SurgeDetector) UpdateSettings(u SurgeSettingsUpdate) (SurgeSettings, error) {
	if u.ThresholdPercent != nil && !isFinite(*u.ThresholdPercent) {
		return d.Settings(), fmt.Errorf("%w: thresholdPercent must be finite", ErrInvalidSetting)
	}
	if u.CooldownMs != nil && !isFinite(*u.CooldownMs) {
		return d.Settings(), fmt.Errorf("%w: cooldownMs must be finite", ErrInvalidSetting)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ThresholdPercent != nil {
		d.settings.ThresholdPercent = clampThreshold(*u.ThresholdPercent)
	}
	if u.CooldownMs != nil {
		d.settings.CooldownMs = clampCooldown(*u.CooldownMs)
	}
	return d.settings, nil
}

// Evaluate records price for asset at now and returns a SurgeEvent when the
// move qualifies. The first observation of an asset only sets the baseline.
// Non-finite and non-positive prices are ignored.
func (d *SurgeDetector) Evaluate(asset string, price float64, slot int64, now time.Time) *domain.SurgeEvent {
	if !isFinite(price) || price <= 0 {
		return nil
	}
	key := NormalizeAsset(asset)
	if key == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[key]
	if !ok {
		d.states[key] = &surgeState{lastPrice: price}
		return nil
	}

	previous := st.lastPrice
	change := (price - previous) / previous * 100
	st.lastPrice = price

	if math.Abs(change) < d.settings.ThresholdPercent {
		return nil
	}
	cooldown := time.Duration(d.settings.CooldownMs) * time.Millisecond
	if st.hasSurged && now.Sub(st.lastSurgeAt) < cooldown {
		return nil
	}

	st.lastSurgeAt = now
	st.hasSurged = true

	changeDec := decimal.NewFromFloat(change)
	return &domain.SurgeEvent{
		Type:          domain.TypeSurge,
		Token:         key,
		ChangePercent: round(changeDec, 4),
		USDValue:      round(changeDec.Abs().Mul(decimal.NewFromFloat(d.usdMultiplier)), 2),
		PreviousPrice: previous,
		CurrentPrice:  price,
		Slot:          slot,
		Timestamp:     now.UnixMilli(),
	}
}

// LastPrice returns the current baseline for asset.
func (d *SurgeDetector) LastPrice(asset string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[NormalizeAsset(asset)]
	if !ok {
		return 0, false
	}
	return st.lastPrice, true
}

// NormalizeAsset keeps mint addresses verbatim and upper-cases symbols.
func NormalizeAsset(asset string) string {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return ""
	}
	if _, err := sol.PublicKeyFromBase58(asset); err == nil {
		return asset
	}
	return strings.ToUpper(asset)
}

func clampThreshold(v float64) float64 {
	return math.Min(MaxSurgeThresholdPercent, math.Max(MinSurgeThresholdPercent, v))
}

func clampCooldown(v float64) int64 {
	return int64(math.Round(math.Min(MaxSurgeCooldownMs, math.Max(MinSurgeCooldownMs, v))))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
