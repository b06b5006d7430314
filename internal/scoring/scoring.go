// Package scoring is the category aggregation path: each indicator signal
// state maps to a fixed integer contribution, contributions sum per
// category under a clamp, and the clamped totals fold into a market bias,
// a confidence figure and a coarse risk read. It needs no strategy
// definition and runs on whatever subset of indicators the window could
// produce.
package scoring

import (
	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
)

// Category groups the ten indicators for scoring and attribution.
type Category string

const (
	Momentum   Category = "Momentum"
	Trend      Category = "Trend"
	Volatility Category = "Volatility"
	Volume     Category = "Volume"
	Perp       Category = "Perp"
)

// Categories lists every category.
var Categories = [...]Category{Momentum, Trend, Volatility, Volume, Perp}

// CategoryOf returns the category an indicator scores under. The mapping
// is fixed; unknown ids return the empty category.
func CategoryOf(id indicator.ID) Category {
	switch id {
	case indicator.IDMacd, indicator.IDRsi:
		return Momentum
	case indicator.IDEma, indicator.IDSuperTrend:
		return Trend
	case indicator.IDBollinger, indicator.IDAtr:
		return Volatility
	case indicator.IDObv, indicator.IDVolumeProfile:
		return Volume
	case indicator.IDFundingRate, indicator.IDOpenInterest:
		return Perp
	default:
		return ""
	}
}

// MaxScore is the clamp bound on a category's summed contributions.
func MaxScore(c Category) int {
	switch c {
	case Momentum, Trend:
		return 3
	default:
		return 2
	}
}

// DefaultWeights returns the documented category weights. They are carried
// in configuration and surfaced in API output, but Aggregate does not
// multiply scores by them; the clamp bounds are their only arithmetic
// footprint. Preserved as-is from the system this engine reimplements.
func DefaultWeights() map[Category]float64 {
	return map[Category]float64{
		Momentum:   0.25,
		Trend:      0.30,
		Volatility: 0.15,
		Volume:     0.15,
		Perp:       0.15,
	}
}

// MarketBias buckets the total score into a coarse market read.
type MarketBias string

const (
	StrongBullish MarketBias = "StrongBullish"
	Bullish       MarketBias = "Bullish"
	NeutralBias   MarketBias = "Neutral"
	Bearish       MarketBias = "Bearish"
	StrongBearish MarketBias = "StrongBearish"
)

// BiasFromScore buckets a total integer score.
func BiasFromScore(total int) MarketBias {
	switch {
	case total >= 7:
		return StrongBullish
	case total >= 3:
		return Bullish
	case total > -3:
		return NeutralBias
	case total > -7:
		return Bearish
	default:
		return StrongBearish
	}
}

// Direction maps the bias onto a trading call.
func (b MarketBias) Direction() model.Direction {
	switch b {
	case StrongBullish, Bullish:
		return model.Long
	case Bearish, StrongBearish:
		return model.Short
	default:
		return model.Neutral
	}
}

// RiskLevel is the coarse risk read attached to every aggregation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Breakdown carries the clamped per-category scores and their sum.
type Breakdown struct {
	Trend      int `json:"trend"`
	Momentum   int `json:"momentum"`
	Volatility int `json:"volatility"`
	Volume     int `json:"volume"`
	Perp       int `json:"perp"`
	Total      int `json:"total"`
}

// Result is one aggregation over a snapshot. Reasons are ordered the way
// the categories were scored: trend, momentum, volatility, volume, perp.
type Result struct {
	Bias       MarketBias      `json:"bias"`
	Direction  model.Direction `json:"direction"`
	Confidence float64         `json:"confidence"`
	Breakdown  Breakdown       `json:"breakdown"`
	Risk       RiskLevel       `json:"risk"`
	Reasons    []model.Reason  `json:"reasons"`
}
