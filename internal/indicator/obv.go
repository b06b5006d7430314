package indicator

import "perpsignals/internal/model"

// OBVState relates the smoothed volume flow to the latest price move.
type OBVState string

const (
	OBVNone              OBVState = "None"
	OBVBullishDivergence OBVState = "BullishDivergence"
	OBVBearishDivergence OBVState = "BearishDivergence"
	OBVConfirmation      OBVState = "Confirmation"
)

// OBVValue holds the raw on-balance volume and its smoothed track.
type OBVValue struct {
	Value    float64  `json:"value"`
	Smoothed float64  `json:"smoothed"`
	State    OBVState `json:"state"`
}

// OBV accumulates signed volume over the window, seeded with the first
// candle's volume, and smooths it with weight smoothing on the newest
// value. The state compares the latest price change against the change in
// the smoothed flow: disagreement is a divergence, agreement confirmation.
func OBV(candles []model.Candle, smoothing float64) *OBVValue {
	if len(candles) < 2 {
		return nil
	}
	obv := candles[0].Volume
	sm := obv
	var prevSm float64
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
		prevSm = sm
		sm = sm*(1-smoothing) + obv*smoothing
	}

	v := &OBVValue{Value: obv, Smoothed: sm, State: OBVNone}
	priceChange := candles[len(candles)-1].Close - candles[len(candles)-2].Close
	obvChange := sm - prevSm
	switch {
	case priceChange < 0 && obvChange > 0:
		v.State = OBVBullishDivergence
	case priceChange > 0 && obvChange < 0:
		v.State = OBVBearishDivergence
	case priceChange > 0 && obvChange > 0, priceChange < 0 && obvChange < 0:
		v.State = OBVConfirmation
	}
	return v
}
