// Package hyperliquid adapts the Hyperliquid exchange client to the
// CandleSource port: REST warm-up into a ring-buffer window kept live
// by the websocket candle stream, with funding and open-interest
// stamped onto candles as they arrive.
//
// Hyperliquid has no open-interest history endpoint, so the provider
// samples metaAndAssetCtxs on a timer and builds its own sample log.
// Candles that closed before the first sample keep a nil OpenInterest
// rather than a back-dated value.
package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"perpsignals/internal/model"
	"perpsignals/internal/ringbuf"
	hl "perpsignals/pkg/hyperliquid"
)

// Config holds configuration for the live provider.
type Config struct {
	// APIURL and WSURL default to the mainnet endpoints.
	APIURL string
	WSURL  string

	// Interval is the candle interval, e.g. "1m". Defaults to "1m".
	Interval string

	// Window is the ring-buffer capacity in bars. Defaults to 1000.
	Window int

	// SamplePeriod is how often asset contexts are polled for
	// open-interest and live funding. Defaults to 60s.
	SamplePeriod time.Duration
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.Window == 0 {
		c.Window = 1000
	}
	if c.SamplePeriod == 0 {
		c.SamplePeriod = time.Minute
	}
}

type sample struct {
	ts time.Time
	v  float64
}

const maxSamples = 4096

// Provider implements model.CandleSource backed by Hyperliquid.
type Provider struct {
	cfg    Config
	rest   *hl.Client
	stream *hl.Stream

	mu      sync.Mutex
	rings   map[string]*ringbuf.Ring
	symbols map[string]struct{}
	fund    map[string][]sample // funding settlements + live samples, oldest first
	oi      map[string][]sample // sampled open interest, oldest first
}

// New creates a Provider. Call Start to warm up and go live.
func New(cfg Config) (*Provider, error) {
	cfg.defaults()
	if _, ok := hl.IntervalSeconds(cfg.Interval); !ok {
		return nil, fmt.Errorf("hyperliquid provider: unsupported interval %q", cfg.Interval)
	}
	p := &Provider{
		cfg:     cfg,
		rest:    hl.NewClient(hl.Config{BaseURL: cfg.APIURL}),
		rings:   make(map[string]*ringbuf.Ring),
		symbols: make(map[string]struct{}),
		fund:    make(map[string][]sample),
		oi:      make(map[string][]sample),
	}
	p.stream = hl.NewStream(hl.StreamConfig{
		URL:      cfg.WSURL,
		OnCandle: p.onCandle,
		OnError: func(err error) {
			slog.Warn("candle stream error", "provider", "hyperliquid", "err", err)
		},
	})
	return p, nil
}

// Name implements model.CandleSource.
func (p *Provider) Name() string { return "hyperliquid" }

// Start warms up the given symbols and keeps their windows live until
// ctx is cancelled. Failed warm-ups are retried lazily on History.
func (p *Provider) Start(ctx context.Context, symbols []string) error {
	p.mu.Lock()
	for _, sym := range symbols {
		p.symbols[sym] = struct{}{}
	}
	p.mu.Unlock()

	p.sampleOnce(ctx)
	for _, sym := range symbols {
		if err := p.ensure(ctx, sym); err != nil {
			slog.Warn("warm-up failed, will retry on demand",
				"provider", "hyperliquid", "symbol", sym, "err", err)
		}
	}

	go p.sampleLoop(ctx)
	err := p.stream.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// History implements model.CandleSource. Unknown symbols are warmed up
// on demand.
func (p *Provider) History(ctx context.Context, symbol string, bars int) ([]model.Candle, error) {
	if err := p.ensure(ctx, symbol); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.rings[symbol].Window()
	if len(w) > bars {
		w = w[len(w)-bars:]
	}
	return w, nil
}

// ensure warms up symbol unless a window already exists.
func (p *Provider) ensure(ctx context.Context, symbol string) error {
	p.mu.Lock()
	_, ok := p.rings[symbol]
	p.symbols[symbol] = struct{}{}
	p.mu.Unlock()
	if ok {
		return nil
	}

	candles, err := p.rest.CandleSnapshot(ctx, symbol, p.cfg.Interval, p.cfg.Window)
	if err != nil {
		return fmt.Errorf("warm up %s: %w", symbol, err)
	}
	var funding []sample
	var fundStart time.Time
	if len(candles) > 0 {
		fundStart = time.UnixMilli(candles[0].CloseTime).Add(-time.Hour)
	}
	entries, err := p.rest.FundingHistory(ctx, symbol, fundStart, time.Time{})
	if err != nil {
		slog.Warn("funding history unavailable",
			"provider", "hyperliquid", "symbol", symbol, "err", err)
	}
	for _, e := range entries {
		rate, err := strconv.ParseFloat(e.FundingRate, 64)
		if err != nil {
			continue
		}
		funding = append(funding, sample{ts: time.UnixMilli(e.Time).UTC(), v: rate})
	}

	p.mu.Lock()
	// merge: settlements predate any live samples taken during warm-up
	p.fund[symbol] = mergeSamples(funding, p.fund[symbol])
	ring := ringbuf.New(p.cfg.Window)
	for _, wc := range candles {
		c, err := toCandle(symbol, wc)
		if err != nil {
			slog.Warn("skipping malformed candle",
				"provider", "hyperliquid", "symbol", symbol, "err", err)
			continue
		}
		p.stampLocked(symbol, &c)
		ring.Append(c)
	}
	p.rings[symbol] = ring
	p.mu.Unlock()

	if err := p.stream.Subscribe(symbol, p.cfg.Interval); err != nil {
		slog.Warn("subscribe failed, relying on reconnect replay",
			"provider", "hyperliquid", "symbol", symbol, "err", err)
	}
	slog.Info("symbol warmed up",
		"provider", "hyperliquid", "symbol", symbol, "bars", ring.Len())
	return nil
}

// onCandle folds a live update into the symbol's window. In-progress
// bars arrive repeatedly with the same close time and replace the last
// entry; stale bars are dropped so the window stays strictly ordered.
func (p *Provider) onCandle(wc hl.Candle) {
	if wc.Interval != p.cfg.Interval {
		return
	}
	c, err := toCandle(wc.Coin, wc)
	if err != nil {
		slog.Warn("dropping malformed candle",
			"provider", "hyperliquid", "symbol", wc.Coin, "err", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ring, ok := p.rings[wc.Coin]
	if !ok {
		return
	}
	p.stampLocked(wc.Coin, &c)
	last, ok := ring.Last()
	switch {
	case !ok || c.TS.After(last.TS):
		ring.Append(c)
	case c.TS.Equal(last.TS):
		ring.ReplaceLast(c)
	}
}

func (p *Provider) sampleLoop(ctx context.Context) {
	tick := time.NewTicker(p.cfg.SamplePeriod)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			p.sampleOnce(ctx)
		}
	}
}

// sampleOnce polls asset contexts once and appends open-interest and
// live funding samples for every tracked symbol.
func (p *Provider) sampleOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ctxs, err := p.rest.AssetContexts(cctx)
	if err != nil {
		slog.Warn("asset context sample failed", "provider", "hyperliquid", "err", err)
		return
	}
	now := time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	for sym := range p.symbols {
		ac, ok := ctxs[sym]
		if !ok {
			continue
		}
		if oi, err := strconv.ParseFloat(ac.OpenInterest, 64); err == nil {
			p.oi[sym] = appendSample(p.oi[sym], sample{ts: now, v: oi})
		}
		if fr, err := strconv.ParseFloat(ac.Funding, 64); err == nil {
			p.fund[sym] = appendSample(p.fund[sym], sample{ts: now, v: fr})
		}
	}
}

// stampLocked sets FundingRate and OpenInterest from the sample logs.
// Candles older than the first sample stay nil.
func (p *Provider) stampLocked(symbol string, c *model.Candle) {
	if v, ok := lastAt(p.fund[symbol], c.TS); ok {
		c.FundingRate = &v
	}
	if v, ok := lastAt(p.oi[symbol], c.TS); ok {
		c.OpenInterest = &v
	}
}

// lastAt returns the most recent sample taken at or before ts.
func lastAt(s []sample, ts time.Time) (float64, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].ts.After(ts) })
	if i == 0 {
		return 0, false
	}
	return s[i-1].v, true
}

func appendSample(s []sample, v sample) []sample {
	s = append(s, v)
	if len(s) > maxSamples {
		s = s[len(s)-maxSamples:]
	}
	return s
}

// mergeSamples interleaves two ordered logs, keeping order and the cap.
func mergeSamples(a, b []sample) []sample {
	out := make([]sample, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Slice(out, func(i, j int) bool { return out[i].ts.Before(out[j].ts) })
	if len(out) > maxSamples {
		out = out[len(out)-maxSamples:]
	}
	return out
}

// toCandle converts a wire candle. The close time T is the bar's
// timestamp, matching the REST snapshot convention.
func toCandle(symbol string, wc hl.Candle) (model.Candle, error) {
	var vals [5]float64
	for i, s := range [5]string{wc.Open, wc.High, wc.Low, wc.Close, wc.Volume} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse candle field %q: %w", s, err)
		}
		vals[i] = f
	}
	return model.Candle{
		Symbol: symbol,
		TS:     time.UnixMilli(wc.CloseTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
