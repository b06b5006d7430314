package indicator

// EMASeries computes the exponential moving average of values over period,
// seeded with the SMA of the first period values and smoothed with
// k = 2/(period+1) from there. Tail-aligned like SMASeries; returns nil
// when the input is shorter than the period.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values)-period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[0] = sum / float64(period)
	for i := period; i < len(values); i++ {
		out[i-period+1] = values[i]*k + out[i-period]*(1-k)
	}
	return out
}

// EMAState classifies the fast/slow EMA relationship on the latest candle.
type EMAState string

const (
	EMANone            EMAState = "None"
	EMABullishCross    EMAState = "BullishCross"
	EMABearishCross    EMAState = "BearishCross"
	EMAStrongUptrend   EMAState = "StrongUptrend"
	EMAStrongDowntrend EMAState = "StrongDowntrend"
)

// EMAValue holds the fast/slow EMA pair and its crossover state.
type EMAValue struct {
	Fast       float64  `json:"fast"`
	Slow       float64  `json:"slow"`
	FastPeriod int      `json:"fast_period"`
	SlowPeriod int      `json:"slow_period"`
	State      EMAState `json:"state"`
}

// EMACross computes the fast/slow EMA pair over closes and classifies the
// latest candle. A cross or trend reading needs one candle beyond the slow
// warm-up; at exactly the warm-up length the state stays None.
func EMACross(closes []float64, fastPeriod, slowPeriod int) *EMAValue {
	fastS := EMASeries(closes, fastPeriod)
	slowS := EMASeries(closes, slowPeriod)
	if fastS == nil || slowS == nil {
		return nil
	}
	v := &EMAValue{
		Fast:       fastS[len(fastS)-1],
		Slow:       slowS[len(slowS)-1],
		FastPeriod: fastPeriod,
		SlowPeriod: slowPeriod,
		State:      EMANone,
	}
	if len(fastS) < 2 || len(slowS) < 2 {
		return v
	}
	price := closes[len(closes)-1]
	prevFast := fastS[len(fastS)-2]
	prevSlow := slowS[len(slowS)-2]
	switch {
	case prevFast <= prevSlow && v.Fast > v.Slow:
		v.State = EMABullishCross
	case prevFast >= prevSlow && v.Fast < v.Slow:
		v.State = EMABearishCross
	case price > v.Fast && v.Fast > v.Slow && v.Fast > prevFast:
		v.State = EMAStrongUptrend
	case price < v.Fast && v.Fast < v.Slow && v.Fast < prevFast:
		v.State = EMAStrongDowntrend
	}
	return v
}
