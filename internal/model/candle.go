package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedSeries marks candle input the engine refuses to evaluate.
// The whole evaluation fails; no partial result is produced.
var ErrMalformedSeries = errors.New("malformed candle series")

// Candle represents one OHLCV bar of a perpetual-futures instrument.
// FundingRate and OpenInterest are nil when the venue did not report them
// for the bar; zero is a legitimate funding value, so absence is a pointer,
// not a sentinel.
type Candle struct {
	Symbol       string    `json:"symbol"`
	TS           time.Time `json:"ts"` // bar close time (UTC)
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	FundingRate  *float64  `json:"funding_rate,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ValidateSeries checks the ordering and field invariants the indicator
// engine assumes: strictly increasing timestamps, positive finite prices,
// non-negative finite volume, and sane perp fields where present.
// An empty series is valid (it simply computes nothing).
func ValidateSeries(candles []Candle) error {
	for i := range candles {
		c := &candles[i]
		if err := validateCandle(c); err != nil {
			return fmt.Errorf("%w: candle %d (%s): %v", ErrMalformedSeries, i, c.TS.Format(time.RFC3339), err)
		}
		if i > 0 && !candles[i-1].TS.Before(c.TS) {
			return fmt.Errorf("%w: candle %d: timestamp %s not after previous %s",
				ErrMalformedSeries, i, c.TS.Format(time.RFC3339), candles[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}

func validateCandle(c *Candle) error {
	for _, p := range [...]struct {
		name string
		v    float64
	}{
		{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close},
	} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return fmt.Errorf("non-finite %s %v", p.name, p.v)
		}
		if p.v <= 0 {
			return fmt.Errorf("non-positive %s %v", p.name, p.v)
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return fmt.Errorf("invalid volume %v", c.Volume)
	}
	if c.FundingRate != nil {
		if f := *c.FundingRate; math.IsNaN(f) || f < -1 || f > 1 {
			return fmt.Errorf("funding rate %v outside [-1, 1]", f)
		}
	}
	if c.OpenInterest != nil {
		if oi := *c.OpenInterest; math.IsNaN(oi) || oi < 0 {
			return fmt.Errorf("negative open interest %v", oi)
		}
	}
	return nil
}

// LastN returns the trailing n candles (the whole series when shorter).
// The returned slice aliases the input; callers must not mutate it.
func LastN(candles []Candle, n int) []Candle {
	if n <= 0 {
		return nil
	}
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// Volumes extracts the volume column.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Volume
	}
	return out
}
