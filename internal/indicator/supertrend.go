package indicator

import "perpsignals/internal/model"

// SuperTrendState tells which side of the line price closed on and whether
// the last candle switched sides.
type SuperTrendState string

const (
	SuperTrendNone        SuperTrendState = "None"
	SuperTrendBullish     SuperTrendState = "Bullish"
	SuperTrendBearish     SuperTrendState = "Bearish"
	SuperTrendBullishFlip SuperTrendState = "BullishFlip"
	SuperTrendBearishFlip SuperTrendState = "BearishFlip"
)

// SuperTrendValue holds the trailing line and the side price is on.
type SuperTrendValue struct {
	Value     float64         `json:"value"`
	Direction int             `json:"direction"` // +1 price above the line, -1 below
	State     SuperTrendState `json:"state"`
}

// SuperTrend runs the ATR channel with band carry-forward across the window
// and reports the latest line. Bands only ratchet toward price: the upper
// band moves when the new band is tighter or price closed through the old
// one, and the lower band mirrors that. Needs one candle beyond the ATR
// warm-up so a flip on the last candle is observable.
func SuperTrend(candles []model.Candle, period int, mult float64) *SuperTrendValue {
	atrS := ATRSeries(candles, period)
	if len(atrS) < 2 {
		return nil
	}
	var (
		prevUpper, prevLower, prevLine float64
		dir, prevDir                   int
	)
	for j, atr := range atrS {
		c := candles[j+period-1]
		mid := (c.High + c.Low) / 2
		basicUpper := mid + mult*atr
		basicLower := mid - mult*atr

		var upper, lower, line float64
		if j == 0 {
			upper, lower = basicUpper, basicLower
			if c.Close >= lower {
				line = lower
			} else {
				line = upper
			}
		} else {
			upper = prevUpper
			if basicUpper < prevUpper || c.Close > prevUpper {
				upper = basicUpper
			}
			lower = prevLower
			if basicLower > prevLower || c.Close < prevLower {
				lower = basicLower
			}
			if prevLine == prevUpper {
				if c.Close <= upper {
					line = upper
				} else {
					line = lower
				}
			} else {
				if c.Close >= lower {
					line = lower
				} else {
					line = upper
				}
			}
		}
		prevDir = dir
		if c.Close > line {
			dir = 1
		} else {
			dir = -1
		}
		prevUpper, prevLower, prevLine = upper, lower, line
	}

	v := &SuperTrendValue{Value: prevLine, Direction: dir}
	switch {
	case dir == 1 && prevDir == -1:
		v.State = SuperTrendBullishFlip
	case dir == -1 && prevDir == 1:
		v.State = SuperTrendBearishFlip
	case dir == 1:
		v.State = SuperTrendBullish
	default:
		v.State = SuperTrendBearish
	}
	return v
}
