// Package hyperliquid is a small client for the Hyperliquid perpetuals
// API: the info REST endpoint for historical candles, funding history
// and asset contexts, plus a websocket stream for live candle updates.
//
// Usage:
//
//	hl := hyperliquid.NewClient(hyperliquid.Config{})
//	candles, err := hl.CandleSnapshot(ctx, "BTC", "1m", 300)
//	if err != nil { ... }
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"
	MainnetWSURL  = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL  = "wss://api.hyperliquid-testnet.xyz/ws"
)

// intervalSeconds lists the candle intervals the API serves.
var intervalSeconds = map[string]int64{
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"8h":  28800,
	"12h": 43200,
	"1d":  86400,
}

// IntervalSeconds returns the length of a named candle interval and
// whether the API serves that interval.
func IntervalSeconds(interval string) (int64, bool) {
	s, ok := intervalSeconds[interval]
	return s, ok
}

type Config struct {
	BaseURL    string        // default MainnetAPIURL
	Timeout    time.Duration // default 10s, ignored when HTTPClient is set
	HTTPClient *http.Client  // optional override
}

// Client talks to the info REST endpoint. All requests are POSTs to
// {base}/info with a JSON body whose "type" field selects the query.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MainnetAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: hc}
}

// Candle is one OHLCV bar as the API encodes it, shared by the REST
// snapshot and the websocket candle channel. Prices and volume arrive
// as decimal strings.
type Candle struct {
	OpenTime  int64  `json:"t"` // ms
	CloseTime int64  `json:"T"` // ms
	Coin      string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
}

// FundingEntry is one settled funding payment from fundingHistory.
type FundingEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Premium     string `json:"premium"`
	Time        int64  `json:"time"` // ms
}

// AssetCtx is the live per-asset market context from metaAndAssetCtxs.
type AssetCtx struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	PrevDayPx    string `json:"prevDayPx"`
	DayNtlVlm    string `json:"dayNtlVlm"`
	Premium      string `json:"premium"`
	OraclePx     string `json:"oraclePx"`
	MarkPx       string `json:"markPx"`
	MidPx        string `json:"midPx"`
}

func (c *Client) info(ctx context.Context, reqType string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hyperliquid: encode %s request: %w", reqType, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("hyperliquid: %s: %w", reqType, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hyperliquid: %s: %w", reqType, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hyperliquid: %s: read response: %w", reqType, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hyperliquid: %s: status %d: %s", reqType, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("hyperliquid: %s: decode response: %w", reqType, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// CandleSnapshot fetches up to count recent candles for coin at the
// given interval, oldest first. The request window is padded 10% so a
// short feed gap still yields count bars; any surplus is trimmed from
// the oldest end.
func (c *Client) CandleSnapshot(ctx context.Context, coin, interval string, count int) ([]Candle, error) {
	secs, ok := intervalSeconds[interval]
	if !ok {
		return nil, fmt.Errorf("hyperliquid: unknown candle interval %q", interval)
	}
	if count <= 0 {
		return nil, fmt.Errorf("hyperliquid: candle count must be positive, got %d", count)
	}
	end := time.Now().UnixMilli()
	start := end - secs*int64(count)*1100

	body := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      coin,
			"interval":  interval,
			"startTime": start,
			"endTime":   end,
		},
	}
	var out []Candle
	if err := c.info(ctx, "candleSnapshot", body, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseTime < out[j].CloseTime })
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

// FundingHistory returns funding settlements for coin between start and
// end, oldest first. A zero end defaults to now, a zero start to 24h
// before end.
func (c *Client) FundingHistory(ctx context.Context, coin string, start, end time.Time) ([]FundingEntry, error) {
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}
	body := map[string]any{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": start.UnixMilli(),
		"endTime":   end.UnixMilli(),
	}
	var out []FundingEntry
	if err := c.info(ctx, "fundingHistory", body, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// LatestFunding returns the most recent funding settlement for coin, or
// nil when none settled in the last 25 hours. The extra hour over the
// hourly schedule absorbs delayed settlements.
func (c *Client) LatestFunding(ctx context.Context, coin string) (*FundingEntry, error) {
	end := time.Now()
	entries, err := c.FundingHistory(ctx, coin, end.Add(-25*time.Hour), end)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

// AssetContexts returns the current market context for every listed
// perp, keyed by coin name. The wire format is a two element array,
// universe metadata first and the context list second, aligned by
// index.
func (c *Client) AssetContexts(ctx context.Context) (map[string]AssetCtx, error) {
	var out []json.RawMessage
	if err := c.info(ctx, "metaAndAssetCtxs", map[string]any{"type": "metaAndAssetCtxs"}, &out); err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("hyperliquid: metaAndAssetCtxs: want 2 elements, got %d", len(out))
	}
	var meta struct {
		Universe []struct {
			Name string `json:"name"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(out[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid: metaAndAssetCtxs: decode universe: %w", err)
	}
	var ctxs []AssetCtx
	if err := json.Unmarshal(out[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid: metaAndAssetCtxs: decode contexts: %w", err)
	}
	if len(ctxs) != len(meta.Universe) {
		return nil, fmt.Errorf("hyperliquid: metaAndAssetCtxs: %d assets but %d contexts", len(meta.Universe), len(ctxs))
	}
	m := make(map[string]AssetCtx, len(ctxs))
	for i, a := range meta.Universe {
		m[a.Name] = ctxs[i]
	}
	return m, nil
}
