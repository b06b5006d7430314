package indicator

import "perpsignals/internal/model"

// FundingState buckets the newest funding rate. Crowded positioning reads
// contrarian downstream: heavy long funding is a caution for longs.
type FundingState string

const (
	FundingNone             FundingState = "None"
	FundingExtremeLongBias  FundingState = "ExtremeLongBias"
	FundingExtremeShortBias FundingState = "ExtremeShortBias"
	FundingHighLongBias     FundingState = "HighLongBias"
	FundingHighShortBias    FundingState = "HighShortBias"
	FundingNeutralPositive  FundingState = "NeutralPositive"
	FundingNeutralNegative  FundingState = "NeutralNegative"
)

// FundingValue holds the newest funding rate and the window average.
type FundingValue struct {
	Current float64      `json:"current"`
	Avg     float64      `json:"avg"`
	State   FundingState `json:"state"`
}

// FundingRate reads funding off candles that carry it, keeping the last
// lookback samples. Candles without the field are skipped; no samples means
// no value. The state buckets the newest rate, Avg is the window mean.
func FundingRate(candles []model.Candle, lookback int, extreme, high float64) *FundingValue {
	var samples []float64
	for _, c := range candles {
		if c.FundingRate != nil {
			samples = append(samples, *c.FundingRate)
		}
	}
	if len(samples) == 0 {
		return nil
	}
	if lookback > 0 && len(samples) > lookback {
		samples = samples[len(samples)-lookback:]
	}
	var sum float64
	for _, r := range samples {
		sum += r
	}
	cur := samples[len(samples)-1]
	v := &FundingValue{Current: cur, Avg: sum / float64(len(samples)), State: FundingNone}
	switch {
	case cur > extreme:
		v.State = FundingExtremeLongBias
	case cur < -extreme:
		v.State = FundingExtremeShortBias
	case cur > high:
		v.State = FundingHighLongBias
	case cur < -high:
		v.State = FundingHighShortBias
	case cur > 0:
		v.State = FundingNeutralPositive
	case cur < 0:
		v.State = FundingNeutralNegative
	}
	return v
}

// OIState classifies open-interest expansion or contraction against the
// latest price move.
type OIState string

const (
	OINone             OIState = "None"
	OIBullishExpansion OIState = "BullishExpansion"
	OIBearishExpansion OIState = "BearishExpansion"
	OILongSqueeze      OIState = "LongSqueeze"
	OIShortSqueeze     OIState = "ShortSqueeze"
)

// OpenInterestValue holds the newest open interest, its percent change
// against the prior sample, and an EMA-smoothed track.
type OpenInterestValue struct {
	Value     float64 `json:"value"`
	ChangePct float64 `json:"change_pct"`
	Smoothed  float64 `json:"smoothed"`
	State     OIState `json:"state"`
}

// OpenInterest reads open interest off candles that carry it and compares
// the newest sample to the one before. Expanding OI past the threshold
// tells which side new money enters on from the price move; contracting OI
// with a price move marks a squeeze. Needs two samples.
func OpenInterest(candles []model.Candle, changePct, smoothing float64) *OpenInterestValue {
	type sample struct{ oi, close float64 }
	var samples []sample
	for _, c := range candles {
		if c.OpenInterest != nil {
			samples = append(samples, sample{*c.OpenInterest, c.Close})
		}
	}
	if len(samples) < 2 {
		return nil
	}
	sm := samples[0].oi
	for _, s := range samples[1:] {
		sm = sm*(1-smoothing) + s.oi*smoothing
	}
	last, prev := samples[len(samples)-1], samples[len(samples)-2]
	v := &OpenInterestValue{Value: last.oi, Smoothed: sm, State: OINone}
	if prev.oi > 0 {
		v.ChangePct = (last.oi - prev.oi) / prev.oi * 100
	}
	priceUp := last.close > prev.close
	priceDown := last.close < prev.close
	switch {
	case v.ChangePct > changePct && priceUp:
		v.State = OIBullishExpansion
	case v.ChangePct > changePct && priceDown:
		v.State = OIBearishExpansion
	case v.ChangePct < -changePct && priceDown:
		v.State = OILongSqueeze
	case v.ChangePct < -changePct && priceUp:
		v.State = OIShortSqueeze
	}
	return v
}
