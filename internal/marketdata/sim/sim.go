// Package sim generates deterministic candle series for development
// and testing without touching an exchange. Each scenario shapes a
// price path whose indicator response is known in advance, so engine
// behavior can be checked end to end offline.
package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"perpsignals/internal/model"
)

// Scenario selects the shape of the generated series.
type Scenario string

const (
	Uptrend   Scenario = "uptrend"
	Downtrend Scenario = "downtrend"
	Ranging   Scenario = "ranging"
	Volatile  Scenario = "volatile"
	Reversal  Scenario = "reversal"
)

// ParseScenario maps a config string to a Scenario. The empty string
// selects Uptrend so a bare "sim" provider produces visible signals.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	switch sc {
	case "":
		return Uptrend, nil
	case Uptrend, Downtrend, Ranging, Volatile, Reversal:
		return sc, nil
	}
	return "", fmt.Errorf("sim: unknown scenario %q", s)
}

// Config controls the generated series.
type Config struct {
	Scenario Scenario
	Base     float64       // price level of the first bar, default 1000
	Interval time.Duration // bar width, default one minute
	Anchor   time.Time     // close time of the newest bar, zero means now
}

func (c *Config) defaults() {
	if c.Scenario == "" {
		c.Scenario = Uptrend
	}
	if c.Base <= 0 {
		c.Base = 1000
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
}

// Provider implements model.CandleSource with synthetic data.
type Provider struct {
	cfg Config
}

func New(cfg Config) (*Provider, error) {
	cfg.defaults()
	switch cfg.Scenario {
	case Uptrend, Downtrend, Ranging, Volatile, Reversal:
	default:
		return nil, fmt.Errorf("sim: unknown scenario %q", cfg.Scenario)
	}
	return &Provider{cfg: cfg}, nil
}

// Name implements model.CandleSource.
func (p *Provider) Name() string { return "sim:" + string(p.cfg.Scenario) }

// History implements model.CandleSource. Bars are spaced one interval
// apart and the newest bar closes at the anchor, so repeated calls
// with a pinned anchor return identical series.
func (p *Provider) History(ctx context.Context, symbol string, bars int) ([]model.Candle, error) {
	if bars <= 0 {
		return nil, nil
	}
	anchor := p.cfg.Anchor
	if anchor.IsZero() {
		anchor = time.Now().UTC().Truncate(p.cfg.Interval)
	}
	out := make([]model.Candle, bars)
	for i := range out {
		c := p.bar(i, bars)
		c.Symbol = symbol
		c.TS = anchor.Add(-time.Duration(bars-1-i) * p.cfg.Interval)
		out[i] = c
	}
	return out, nil
}

// bar computes the i-th of count bars, oldest first.
func (p *Provider) bar(i, count int) model.Candle {
	fi := float64(i)
	switch p.cfg.Scenario {
	case Downtrend:
		base := p.cfg.Base - fi*0.5
		return candle(base, base+0.2, base-0.3, base-0.1, 1000+fi*10, 10_000+fi*80, -0.0006)
	case Ranging:
		// price cycles across a 10-point band with a 20-bar period
		cycle := float64(i%20) / 20
		price := p.cfg.Base - 5 + 10*cycle
		return candle(price, price+0.1, price-0.1, price, 1000, 9_500+float64(i%10)*20, 0)
	case Volatile:
		base := p.cfg.Base + fi*0.1
		vol := (float64(i%5) - 2.5) * 2
		fr := 0.0004
		if i%2 == 1 {
			fr = -0.0004
		}
		return candle(base, base+math.Abs(vol)+0.5, base-math.Abs(vol)-0.5, base+vol,
			1000+fi*50, 10_000+(float64(i%7)-3)*120, fr)
	case Reversal:
		mid := float64(count / 2)
		if fi < mid {
			base := p.cfg.Base + fi*0.5
			return candle(base, base+0.3, base-0.2, base+0.1, 1000+fi*10, 10_000+fi*60, 0.0003)
		}
		base := p.cfg.Base + mid*0.5 - (fi-mid)*0.5
		return candle(base, base+0.3, base-0.2, base-0.1, 1000+fi*10, 10_000+mid*60-(fi-mid)*70, -0.0003)
	default: // Uptrend
		base := p.cfg.Base + fi*0.5
		return candle(base, base+0.3, base-0.2, base+0.1, 1000+fi*10, 10_000+fi*50, 0.0002)
	}
}

func candle(o, h, l, c, v, oi, fr float64) model.Candle {
	return model.Candle{
		Open:         o,
		High:         h,
		Low:          l,
		Close:        c,
		Volume:       v,
		OpenInterest: &oi,
		FundingRate:  &fr,
	}
}
