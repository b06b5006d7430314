package indicator

// MACDState classifies line/signal interaction on the latest candle.
type MACDState string

const (
	MACDNone            MACDState = "None"
	MACDBullishCross    MACDState = "BullishCross"
	MACDBearishCross    MACDState = "BearishCross"
	MACDBullishMomentum MACDState = "BullishMomentum"
	MACDBearishMomentum MACDState = "BearishMomentum"
)

// MACDValue holds the MACD line, signal line, and histogram.
type MACDValue struct {
	Line      float64   `json:"line"`
	Signal    float64   `json:"signal"`
	Histogram float64   `json:"histogram"`
	State     MACDState `json:"state"`
}

// MACD computes the fast/slow/signal MACD over closes. The line is the fast
// EMA minus the slow EMA, the signal line an EMA of the line, the histogram
// their difference. Crosses take priority over momentum; a momentum state
// needs the histogram to grow in magnitude on two consecutive candles
// without changing sign.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) *MACDValue {
	if fastPeriod >= slowPeriod {
		return nil
	}
	fastS := EMASeries(closes, fastPeriod)
	slowS := EMASeries(closes, slowPeriod)
	if fastS == nil || slowS == nil {
		return nil
	}
	// Both series are tail-aligned, so truncate the fast one to the slow
	// warm-up before subtracting.
	n := len(slowS)
	off := len(fastS) - n
	line := make([]float64, n)
	for i := range line {
		line[i] = fastS[i+off] - slowS[i]
	}
	sigS := EMASeries(line, signalPeriod)
	if sigS == nil {
		return nil
	}
	m := len(sigS)
	hist := make([]float64, m)
	for i := range hist {
		hist[i] = line[i+n-m] - sigS[i]
	}

	v := &MACDValue{
		Line:      line[n-1],
		Signal:    sigS[m-1],
		Histogram: hist[m-1],
		State:     MACDNone,
	}
	if m >= 2 {
		prevLine, prevSig := line[n-2], sigS[m-2]
		switch {
		case prevLine <= prevSig && v.Line > v.Signal:
			v.State = MACDBullishCross
			return v
		case prevLine >= prevSig && v.Line < v.Signal:
			v.State = MACDBearishCross
			return v
		}
	}
	if m >= 3 {
		h0, h1, h2 := hist[m-3], hist[m-2], hist[m-1]
		switch {
		case h0 > 0 && h1 > h0 && h2 > h1:
			v.State = MACDBullishMomentum
		case h0 < 0 && h1 < h0 && h2 < h1:
			v.State = MACDBearishMomentum
		}
	}
	return v
}
