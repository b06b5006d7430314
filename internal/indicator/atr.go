package indicator

import (
	"math"

	"perpsignals/internal/model"
)

// ATRRegime buckets current volatility against its own recent average.
type ATRRegime string

const (
	ATRHigh     ATRRegime = "High"
	ATRElevated ATRRegime = "Elevated"
	ATRNormal   ATRRegime = "Normal"
	ATRLow      ATRRegime = "Low"
)

// ATRValue holds the average true range and its volatility regime.
type ATRValue struct {
	Value  float64   `json:"value"`
	Period int       `json:"period"`
	Regime ATRRegime `json:"regime"`
}

// TrueRangeSeries computes the true range per candle. The first candle has
// no previous close, so its true range is just the high-low span.
func TrueRangeSeries(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATRSeries computes the SMA-seeded Wilder average true range, tail-aligned
// like SMASeries. Returns nil when the window is shorter than the period.
func ATRSeries(candles []model.Candle, period int) []float64 {
	return WilderSeries(TrueRangeSeries(candles), period)
}

// ATR computes the latest average true range and buckets it against the
// mean of the last regimeLookback ATR values (the current one included).
func ATR(candles []model.Candle, period, regimeLookback int) *ATRValue {
	atrS := ATRSeries(candles, period)
	if atrS == nil {
		return nil
	}
	last := atrS[len(atrS)-1]

	n := regimeLookback
	if n <= 0 || n > len(atrS) {
		n = len(atrS)
	}
	var sum float64
	for _, v := range atrS[len(atrS)-n:] {
		sum += v
	}
	avg := sum / float64(n)

	regime := ATRNormal
	if avg > 1e-12 {
		switch ratio := last / avg; {
		case ratio > 1.5:
			regime = ATRHigh
		case ratio > 1.0:
			regime = ATRElevated
		case ratio > 0.7:
			regime = ATRNormal
		default:
			regime = ATRLow
		}
	}
	return &ATRValue{Value: last, Period: period, Regime: regime}
}
