// Package binance adapts Binance USDⓈ-M futures REST to the
// CandleSource port. Klines are fetched per call; funding comes from
// the settled funding-rate history plus the live premium index, and
// open interest from a sample log built out of current-value polls,
// since the public API serves no OI history at candle granularity.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"perpsignals/internal/model"
)

// Config holds configuration for the futures REST provider. Key and
// secret may stay empty, market data endpoints are public.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Interval  string // default "1m"
}

var intervalDur = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

type sample struct {
	ts time.Time
	v  float64
}

const maxSamples = 4096

// Provider implements model.CandleSource backed by Binance futures.
type Provider struct {
	cfg    Config
	client *futures.Client

	mu sync.Mutex
	oi map[string][]sample
}

func New(cfg Config) (*Provider, error) {
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if _, ok := intervalDur[cfg.Interval]; !ok {
		return nil, fmt.Errorf("binance provider: unsupported interval %q", cfg.Interval)
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		client.UseTestnet = true
	}
	return &Provider{cfg: cfg, client: client, oi: make(map[string][]sample)}, nil
}

// Name implements model.CandleSource.
func (p *Provider) Name() string { return "binance" }

// History implements model.CandleSource. Every call polls current open
// interest, so the sample log grows with the service's own cadence.
func (p *Provider) History(ctx context.Context, symbol string, bars int) ([]model.Candle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(p.cfg.Interval).
		Limit(bars).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	fund := p.fundingStaircase(ctx, symbol, bars)
	p.sampleOI(ctx, symbol)
	p.mu.Lock()
	oiLog := p.oi[symbol]
	p.mu.Unlock()

	return assemble(symbol, klines, fund, oiLog), nil
}

// assemble converts klines to candles, drops malformed or out-of-order
// entries and stamps each bar with the funding rate and open interest
// in effect at its close.
func assemble(symbol string, klines []*futures.Kline, fund, oiLog []sample) []model.Candle {
	out := make([]model.Candle, 0, len(klines))
	var prev time.Time
	for _, k := range klines {
		c, err := toCandle(symbol, k)
		if err != nil {
			slog.Warn("skipping malformed kline",
				"provider", "binance", "symbol", symbol, "err", err)
			continue
		}
		if !prev.IsZero() && !c.TS.After(prev) {
			continue
		}
		prev = c.TS
		if v, ok := lastAt(fund, c.TS); ok {
			c.FundingRate = &v
		}
		if v, ok := lastAt(oiLog, c.TS); ok {
			c.OpenInterest = &v
		}
		out = append(out, c)
	}
	return out
}

// fundingStaircase merges settled funding history with the live
// premium-index rate into an ordered sample log for stamping.
func (p *Provider) fundingStaircase(ctx context.Context, symbol string, bars int) []sample {
	var fund []sample
	rates, err := p.client.NewFundingRateService().
		Symbol(symbol).
		Limit(fundingLimit(p.cfg.Interval, bars)).
		Do(ctx)
	if err != nil {
		slog.Warn("funding history unavailable",
			"provider", "binance", "symbol", symbol, "err", err)
	}
	for _, r := range rates {
		v, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			continue
		}
		fund = append(fund, sample{ts: time.UnixMilli(r.FundingTime).UTC(), v: v})
	}
	if v, ok := p.liveFunding(ctx, symbol); ok {
		fund = append(fund, sample{ts: time.Now().UTC(), v: v})
	}
	sort.Slice(fund, func(i, j int) bool { return fund[i].ts.Before(fund[j].ts) })
	return fund
}

// fundingLimit sizes the history request so the settlements cover the
// requested candle span. The endpoint caps limit at 1000.
func fundingLimit(interval string, bars int) int {
	span := intervalDur[interval] * time.Duration(bars)
	n := int(span/(8*time.Hour)) + 4
	if n > 1000 {
		n = 1000
	}
	return n
}

// liveFunding returns the current (not yet settled) funding rate.
func (p *Provider) liveFunding(ctx context.Context, symbol string) (float64, bool) {
	idx, err := p.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		slog.Warn("premium index poll failed",
			"provider", "binance", "symbol", symbol, "err", err)
		return 0, false
	}
	if len(idx) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(idx[0].LastFundingRate, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p *Provider) sampleOI(ctx context.Context, symbol string) {
	oi, err := p.client.NewOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		slog.Warn("open interest poll failed",
			"provider", "binance", "symbol", symbol, "err", err)
		return
	}
	v, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return
	}
	p.mu.Lock()
	s := append(p.oi[symbol], sample{ts: time.Now().UTC(), v: v})
	if len(s) > maxSamples {
		s = s[len(s)-maxSamples:]
	}
	p.oi[symbol] = s
	p.mu.Unlock()
}

// lastAt returns the most recent sample taken at or before ts.
func lastAt(s []sample, ts time.Time) (float64, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].ts.After(ts) })
	if i == 0 {
		return 0, false
	}
	return s[i-1].v, true
}

// toCandle converts one kline. CloseTime is the bar's last
// millisecond; +1ms lands on the boundary so timestamps match the
// close-time convention of the other providers.
func toCandle(symbol string, k *futures.Kline) (model.Candle, error) {
	var vals [5]float64
	for i, s := range [5]string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse kline field %q: %w", s, err)
		}
		vals[i] = f
	}
	return model.Candle{
		Symbol: symbol,
		TS:     time.UnixMilli(k.CloseTime + 1).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
