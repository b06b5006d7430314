package indicator

// RSIState classifies the RSI reading on the latest candle.
type RSIState string

const (
	RSINone              RSIState = "None"
	RSIOversold          RSIState = "Oversold"
	RSIOverbought        RSIState = "Overbought"
	RSIBullishDivergence RSIState = "BullishDivergence"
	RSIBearishDivergence RSIState = "BearishDivergence"
)

// RSIValue holds the Wilder RSI and its zone state.
type RSIValue struct {
	Value  float64  `json:"value"`
	Period int      `json:"period"`
	State  RSIState `json:"state"`
}

// RSISeries computes Wilder's RSI over closes: average gain and loss are
// seeded with an SMA of the first period changes, then Wilder-smoothed.
// When the average loss is zero RS saturates at 100, so the RSI tops out
// just above 99 instead of hitting 100 exactly. Tail-aligned: out[i]
// corresponds to closes[i+period]. Returns nil when fewer than period+1
// closes are provided.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	avgG := WilderSeries(gains, period)
	avgL := WilderSeries(losses, period)
	out := make([]float64, len(avgG))
	for i := range out {
		rs := 100.0
		if avgL[i] != 0 {
			rs = avgG[i] / avgL[i]
		}
		out[i] = 100.0 - 100.0/(1.0+rs)
	}
	return out
}

// RSI computes Wilder's RSI on the latest candle and classifies it.
// Divergence is swing-based: the divergence lookback window is split in
// half and the price/RSI extremes of the halves compared. A bullish
// divergence (price lower low, RSI higher low) only fires inside the
// oversold zone, a bearish one (price higher high, RSI lower high) inside
// the overbought zone; outside both zones divergence is not reported.
func RSI(closes []float64, period int, overbought, oversold float64, divLookback int) *RSIValue {
	series := RSISeries(closes, period)
	if series == nil {
		return nil
	}
	v := &RSIValue{
		Value:  series[len(series)-1],
		Period: period,
		State:  RSINone,
	}
	bull, bear := rsiDivergence(closes[len(closes)-len(series):], series, divLookback)
	switch {
	case v.Value < oversold:
		if bull {
			v.State = RSIBullishDivergence
		} else {
			v.State = RSIOversold
		}
	case v.Value > overbought:
		if bear {
			v.State = RSIBearishDivergence
		} else {
			v.State = RSIOverbought
		}
	}
	return v
}

// rsiDivergence compares price and RSI extremes between the two halves of
// the last lookback candles. closes and rsis must be aligned and of equal
// length. Windows under four candles report no divergence.
func rsiDivergence(closes, rsis []float64, lookback int) (bull, bear bool) {
	n := len(rsis)
	if lookback < n {
		n = lookback
	}
	if n < 4 {
		return false, false
	}
	c := closes[len(closes)-n:]
	r := rsis[len(rsis)-n:]
	mid := n / 2

	loA, hiA := extremes(c[:mid])
	loB, hiB := extremes(c[mid:])
	if c[loB+mid] < c[loA] && r[loB+mid] > r[loA] {
		bull = true
	}
	if c[hiB+mid] > c[hiA] && r[hiB+mid] < r[hiA] {
		bear = true
	}
	return bull, bear
}

// extremes returns the indexes of the smallest and largest values.
func extremes(vals []float64) (lo, hi int) {
	for i, v := range vals {
		if v < vals[lo] {
			lo = i
		}
		if v > vals[hi] {
			hi = i
		}
	}
	return lo, hi
}
