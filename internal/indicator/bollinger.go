package indicator

import "math"

// BollingerState classifies price against the bands on the latest candle.
type BollingerState string

const (
	BollingerNone          BollingerState = "None"
	BollingerSqueeze       BollingerState = "Squeeze"
	BollingerUpperBreakout BollingerState = "UpperBreakout"
	BollingerLowerBreakout BollingerState = "LowerBreakout"
	BollingerMeanReversion BollingerState = "MeanReversion"
	BollingerWalkingBands  BollingerState = "WalkingBands"
)

// BollingerValue holds the band levels, the normalized bandwidth, and %B.
type BollingerValue struct {
	Upper     float64        `json:"upper"`
	Middle    float64        `json:"middle"`
	Lower     float64        `json:"lower"`
	Bandwidth float64        `json:"bandwidth"`
	PercentB  float64        `json:"percent_b"`
	State     BollingerState `json:"state"`
}

// Bollinger computes period/mult bands over closes using the population
// standard deviation and classifies the latest candle. A squeeze outranks
// a breakout; mean-reversion and walking-the-bands need one candle of band
// history and stay unreported at exactly the warm-up length.
func Bollinger(closes []float64, period int, mult, squeeze float64) *BollingerValue {
	smaS := SMASeries(closes, period)
	stdS := RollingStdDev(closes, period)
	if smaS == nil {
		return nil
	}
	last := len(smaS) - 1
	mid, std := smaS[last], stdS[last]
	price := closes[len(closes)-1]

	v := &BollingerValue{
		Upper:  mid + mult*std,
		Middle: mid,
		Lower:  mid - mult*std,
		State:  BollingerNone,
	}
	width := v.Upper - v.Lower
	if mid > 0 {
		v.Bandwidth = width / mid
	}
	if width != 0 {
		v.PercentB = (price - v.Lower) / width
	} else {
		v.PercentB = 0.5
	}

	switch {
	case v.Bandwidth < squeeze:
		v.State = BollingerSqueeze
	case price > v.Upper:
		v.State = BollingerUpperBreakout
	case price < v.Lower:
		v.State = BollingerLowerBreakout
	default:
		if last < 1 {
			break
		}
		prevBW := 0.0
		if prevMid := smaS[last-1]; prevMid > 0 {
			prevBW = 2 * mult * stdS[last-1] / prevMid
		}
		switch {
		case v.Bandwidth < prevBW && math.Abs(price-mid) < std*0.5:
			v.State = BollingerMeanReversion
		case price >= v.Upper-std*0.2 || price <= v.Lower+std*0.2:
			v.State = BollingerWalkingBands
		}
	}
	return v
}
