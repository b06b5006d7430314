// Package decision turns an evaluation score into a SignalOutput: it
// applies the direction thresholds, derives the ATR stop/take
// recommendation, and assembles the attribution trail. Pure functions
// only; cadence and persistence live in the service layer.
package decision

import (
	"fmt"
	"math"
	"time"

	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
)

// Params are the decision-stage knobs. Multipliers scale the latest ATR
// into percent-of-price stop and take distances.
type Params struct {
	SLMult float64 `yaml:"sl_mult"`
	TPMult float64 `yaml:"tp_mult"`
}

// DefaultParams mirrors the stock tuning: stop at 1.2 ATR, take at 2 ATR.
func DefaultParams() Params {
	return Params{SLMult: 1.2, TPMult: 2.0}
}

// Direction applies the strategy thresholds to a score. Both bounds are
// inclusive: a score exactly at LongMin goes Long, exactly at ShortMax
// goes Short.
func Direction(score float64, th strategy.Thresholds) model.Direction {
	switch {
	case score >= th.LongMin:
		return model.Long
	case score <= th.ShortMax:
		return model.Short
	default:
		return model.Neutral
	}
}

// Confidence is |score| / maxScore clamped to [0, 1]. A zero or negative
// ceiling means nothing in the tree could have scored, so confidence is
// zero rather than undefined.
func Confidence(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	c := math.Abs(score) / maxScore
	if c > 1 {
		return 1
	}
	return c
}

// StopTake derives the percent stop/take recommendation from the latest
// ATR: atr/price × mult × 100. Nil for Neutral calls and whenever ATR is
// unavailable or non-positive; a missing recommendation is absent, never
// zero.
func StopTake(dir model.Direction, snap *indicator.Snapshot, price float64, p Params) (sl, tp *float64) {
	if dir == model.Neutral || price <= 0 {
		return nil, nil
	}
	if snap == nil || snap.Atr == nil || snap.Atr.Value <= 0 {
		return nil, nil
	}
	s := snap.Atr.Value / price * p.SLMult * 100
	t := snap.Atr.Value / price * p.TPMult * 100
	return &s, &t
}

// FromRules assembles the signal for one strategy evaluation. When every
// indicator the strategy references was unavailable the call is forced
// Neutral with zero confidence and the trail says why.
func FromRules(st *strategy.Strategy, res strategy.Result, snap *indicator.Snapshot, symbol string, price float64, ts time.Time, p Params) model.SignalOutput {
	dir := Direction(res.Score, st.Aggregation.Thresholds)
	conf := Confidence(res.Score, res.MaxScore)
	reasons := res.Reasons()
	if res.AllUnavailable {
		dir = model.Neutral
		conf = 0
		reasons = append(reasons, model.Reason{
			Source: "window",
			Detail: "insufficient history: no indicator this strategy references reached warm-up",
			Weight: 1,
		})
	}
	sl, tp := StopTake(dir, snap, price, p)
	return model.SignalOutput{
		Symbol:           symbol,
		Strategy:         st.Name,
		Direction:        dir,
		Confidence:       conf,
		RecommendedSLPct: sl,
		RecommendedTPPct: tp,
		Reasons:          reasons,
		Score:            res.Score,
		Price:            price,
		TS:               ts,
	}
}

// FromCategories assembles the signal for the category path. The risk
// assessment rides at the end of the trail at half weight so readers see
// it after the score drivers.
func FromCategories(agg scoring.Result, snap *indicator.Snapshot, symbol string, price float64, ts time.Time, p Params) model.SignalOutput {
	reasons := make([]model.Reason, 0, len(agg.Reasons)+1)
	reasons = append(reasons, agg.Reasons...)
	reasons = append(reasons, model.Reason{
		Source: "risk",
		Detail: fmt.Sprintf("Risk level: %s", agg.Risk),
		Weight: 0.5,
	})
	sl, tp := StopTake(agg.Direction, snap, price, p)
	return model.SignalOutput{
		Symbol:           symbol,
		Direction:        agg.Direction,
		Confidence:       agg.Confidence,
		RecommendedSLPct: sl,
		RecommendedTPPct: tp,
		Reasons:          reasons,
		Score:            float64(agg.Breakdown.Total),
		Price:            price,
		TS:               ts,
	}
}
