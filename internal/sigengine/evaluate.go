// Package sigengine is the evaluation runtime: a periodic per-symbol
// loop that pulls candle windows from a market-data provider, computes
// indicator snapshots, evaluates the loaded strategies plus the
// category aggregation path, and fans the resulting signals out to the
// configured sinks (SQLite, Redis, InfluxDB, notifications).
//
// The pure pipeline lives in Evaluate and EvaluateCategory so the scan
// CLI and tests can run it without any provider or store wiring.
package sigengine

import (
	"fmt"

	"perpsignals/config"
	"perpsignals/internal/decision"
	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
)

// Evaluate runs the rule-path pipeline over a candle window: indicator
// snapshot, rule tree evaluation, decision. Symbol, price and timestamp
// come from the newest candle. The window must be non-empty and pass
// model.ValidateSeries; indicator warm-up shortfalls are not an error,
// they surface as unavailable indicators in the result's reasons.
func Evaluate(candles []model.Candle, st *strategy.Strategy, tuning config.Tuning) (model.SignalOutput, error) {
	last, err := checkWindow(candles)
	if err != nil {
		return model.SignalOutput{}, err
	}
	snap := indicator.NewEngine(tuning.Indicator).Compute(candles)
	res, err := strategy.Evaluate(st, snap)
	if err != nil {
		return model.SignalOutput{}, err
	}
	return decision.FromRules(st, res, snap, last.Symbol, last.Close, last.TS, tuning.Decision), nil
}

// EvaluateCategory runs the category-path pipeline over a candle
// window: indicator snapshot, weighted category aggregation, decision.
func EvaluateCategory(candles []model.Candle, tuning config.Tuning) (model.SignalOutput, error) {
	last, err := checkWindow(candles)
	if err != nil {
		return model.SignalOutput{}, err
	}
	snap := indicator.NewEngine(tuning.Indicator).Compute(candles)
	agg := scoring.Aggregate(snap)
	return decision.FromCategories(agg, snap, last.Symbol, last.Close, last.TS, tuning.Decision), nil
}

func checkWindow(candles []model.Candle) (model.Candle, error) {
	if len(candles) == 0 {
		return model.Candle{}, fmt.Errorf("sigengine: empty candle window")
	}
	if err := model.ValidateSeries(candles); err != nil {
		return model.Candle{}, fmt.Errorf("sigengine: %w", err)
	}
	return candles[len(candles)-1], nil
}
