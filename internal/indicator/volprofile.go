package indicator

import (
	"math"

	"perpsignals/internal/model"
)

// VPState locates price relative to the volume profile's landmarks.
type VPState string

const (
	VPNone          VPState = "None"
	VPPOCSupport    VPState = "POCSupport"
	VPPOCResistance VPState = "POCResistance"
	VPNearHVN       VPState = "NearHVN"
	VPNearLVN       VPState = "NearLVN"
)

// VolumeProfileValue holds the point of control and price's distance to it.
type VolumeProfileValue struct {
	POC         float64 `json:"poc"`
	POCDistance float64 `json:"poc_distance"` // (close-POC)/POC
	State       VPState `json:"state"`
}

// VolumeProfile buckets the last lookback closes into tick-sized price
// levels and finds the point of control, the level holding the most volume.
// Equal-volume ties resolve to the lower price so the result never depends
// on map order. Price within two ticks of the POC reads as support above it
// and resistance at or below it; further out, the current level's volume
// against the per-level average marks high and low volume nodes.
func VolumeProfile(candles []model.Candle, tick float64, lookback int) *VolumeProfileValue {
	if len(candles) == 0 || tick <= 0 {
		return nil
	}
	window := candles
	if lookback > 0 && len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	levels := make(map[int64]float64, len(window))
	var total float64
	for _, c := range window {
		levels[int64(math.Round(c.Close/tick))] += c.Volume
		total += c.Volume
	}
	var (
		pocBucket int64
		pocVol    = math.Inf(-1)
	)
	for b, vol := range levels {
		if vol > pocVol || (vol == pocVol && b < pocBucket) {
			pocBucket, pocVol = b, vol
		}
	}

	price := window[len(window)-1].Close
	poc := float64(pocBucket) * tick
	v := &VolumeProfileValue{POC: poc, State: VPNone}
	if poc != 0 {
		v.POCDistance = (price - poc) / poc
	}
	if math.Abs(price-poc) < tick*2 {
		if price > poc {
			v.State = VPPOCSupport
		} else {
			v.State = VPPOCResistance
		}
		return v
	}
	avg := total / float64(len(levels))
	cur := levels[int64(math.Round(price/tick))]
	switch {
	case cur > avg*1.5:
		v.State = VPNearHVN
	case cur < avg*0.5:
		v.State = VPNearLVN
	}
	return v
}
