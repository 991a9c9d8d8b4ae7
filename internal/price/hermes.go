package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HermesClient reads latest prices from a Pyth Hermes endpoint.
type HermesClient struct {
	baseURL    string
	feedIDs    map[string]string // symbol -> feed id without 0x
	httpClient *http.Client
}

var _ Source = (*HermesClient)(nil)

// HermesOption configures HermesClient.
type HermesOption func(*HermesClient)

// WithHTTPClient sets a custom http client.
func WithHTTPClient(c *http.Client) HermesOption {
	return func(h *HermesClient) {
		h.httpClient = c
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) HermesOption {
	return func(h *HermesClient) {
		h.httpClient.Timeout = d
	}
}

// NewHermesClient creates a client for the given symbol to feed id map.
func NewHermesClient(baseURL string, feedIDs map[string]string, opts ...HermesOption) *HermesClient {
	h := &HermesClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		feedIDs:    make(map[string]string, len(feedIDs)),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for sym, id := range feedIDs {
		h.feedIDs[NormalizeSymbol(sym)] = normalizeFeedID(id)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Price fetches the latest parsed update for asset.
func (h *HermesClient) Price(ctx context.Context, asset string) (float64, error) {
	symbol := NormalizeSymbol(asset)
	id, ok := h.feedIDs[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}

	q := url.Values{}
	q.Add("ids[]", id)
	q.Set("parsed", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v2/updates/price/latest?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hermes request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("hermes status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode hermes response: %w", err)
	}
	if len(payload.Parsed) == 0 {
		return 0, fmt.Errorf("no price feed returned for %s", symbol)
	}

	update := payload.Parsed[0]
	for _, p := range payload.Parsed {
		if normalizeFeedID(p.ID) == id {
			update = p
			break
		}
	}

	p, err := update.Price.value()
	if err != nil {
		return 0, fmt.Errorf("invalid hermes price for %s: %w", symbol, err)
	}
	if !Valid(p) {
		return 0, fmt.Errorf("invalid hermes price for %s: %v", symbol, p)
	}
	return p, nil
}

func normalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

type hermesResponse struct {
	Parsed []hermesUpdate `json:"parsed"`
}

type hermesUpdate struct {
	ID    string      `json:"id"`
	Price hermesPrice `json:"price"`
}

type hermesPrice struct {
	Price       string `json:"price"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// value returns price * 10^expo.
func (p hermesPrice) value() (float64, error) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return 0, err
	}
	return d.Shift(p.Expo).InexactFloat64(), nil
}
