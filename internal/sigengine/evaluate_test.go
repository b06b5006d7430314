package sigengine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"perpsignals/config"
	"perpsignals/internal/marketdata/sim"
	"perpsignals/internal/model"
	"perpsignals/internal/strategy"
)

var anchor = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func scenarioWindow(t *testing.T, sc sim.Scenario, bars int) []model.Candle {
	t.Helper()
	p, err := sim.New(sim.Config{Scenario: sc, Anchor: anchor})
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	candles, err := p.History(context.Background(), "BTC", bars)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	return candles
}

func TestEvaluateEmptyWindow(t *testing.T) {
	tuning := config.DefaultTuning()
	if _, err := Evaluate(nil, strategy.Default("BTC"), tuning); err == nil {
		t.Error("Evaluate accepted an empty window")
	}
	if _, err := EvaluateCategory(nil, tuning); err == nil {
		t.Error("EvaluateCategory accepted an empty window")
	}
}

func TestEvaluateMalformedWindow(t *testing.T) {
	bad := []model.Candle{
		{Symbol: "BTC", TS: anchor, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
		{Symbol: "BTC", TS: anchor, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
	}
	if _, err := Evaluate(bad, strategy.Default("BTC"), config.DefaultTuning()); err == nil {
		t.Error("Evaluate accepted non-monotonic timestamps")
	}
}

func TestEvaluateSingleCandle(t *testing.T) {
	window := []model.Candle{{
		Symbol: "BTC", TS: anchor,
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10,
	}}

	sig, err := Evaluate(window, strategy.Default("BTC"), config.DefaultTuning())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Direction != model.Neutral {
		t.Errorf("direction: got %s, want Neutral", sig.Direction)
	}
	if sig.Confidence != 0 {
		t.Errorf("confidence: got %v, want 0", sig.Confidence)
	}
	if sig.RecommendedSLPct != nil || sig.RecommendedTPPct != nil {
		t.Error("SL/TP should be nil with no ATR history")
	}
	if sig.Strategy != "EMA_Crossover_RSI" {
		t.Errorf("strategy: got %q", sig.Strategy)
	}
	if sig.Symbol != "BTC" || sig.Price != 100.5 || !sig.TS.Equal(anchor) {
		t.Errorf("provenance: got %s @ %v %v", sig.Symbol, sig.Price, sig.TS)
	}
	found := false
	for _, r := range sig.Reasons {
		if r.Source == "window" {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons should explain the short window, got %+v", sig.Reasons)
	}
}

func TestEvaluateCategorySingleCandle(t *testing.T) {
	window := []model.Candle{{
		Symbol: "ETH", TS: anchor,
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10,
	}}

	sig, err := EvaluateCategory(window, config.DefaultTuning())
	if err != nil {
		t.Fatalf("EvaluateCategory: %v", err)
	}
	if sig.Direction != model.Neutral {
		t.Errorf("direction: got %s, want Neutral", sig.Direction)
	}
	if sig.RecommendedSLPct != nil || sig.RecommendedTPPct != nil {
		t.Error("SL/TP should be nil with no ATR history")
	}
	if sig.Strategy != "" {
		t.Errorf("category path should not stamp a strategy, got %q", sig.Strategy)
	}
	if sig.Symbol != "ETH" {
		t.Errorf("symbol: got %q, want ETH", sig.Symbol)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Errorf("confidence out of range: %v", sig.Confidence)
	}
}

func TestEvaluateCategoryUptrend(t *testing.T) {
	window := scenarioWindow(t, sim.Uptrend, 250)

	sig, err := EvaluateCategory(window, config.DefaultTuning())
	if err != nil {
		t.Fatalf("EvaluateCategory: %v", err)
	}
	if sig.Direction == model.Short {
		t.Errorf("uptrend produced a Short signal: %+v", sig)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Errorf("confidence out of range: %v", sig.Confidence)
	}
	if len(sig.Reasons) == 0 {
		t.Error("expected a reason trail")
	}
	last := window[len(window)-1]
	if sig.Price != last.Close || !sig.TS.Equal(last.TS) {
		t.Errorf("provenance: got %v @ %v, want newest candle", sig.Price, sig.TS)
	}
	if sig.Direction != model.Neutral {
		if sig.RecommendedSLPct == nil || sig.RecommendedTPPct == nil {
			t.Error("directional signal with full history should carry SL/TP")
		}
	}
}

func TestEvaluateCategoryDowntrend(t *testing.T) {
	window := scenarioWindow(t, sim.Downtrend, 250)

	sig, err := EvaluateCategory(window, config.DefaultTuning())
	if err != nil {
		t.Fatalf("EvaluateCategory: %v", err)
	}
	if sig.Direction == model.Long {
		t.Errorf("downtrend produced a Long signal: %+v", sig)
	}
	if len(sig.Reasons) == 0 {
		t.Error("expected a reason trail")
	}
}

func TestEvaluateRulePathUptrend(t *testing.T) {
	window := scenarioWindow(t, sim.Uptrend, 250)

	sig, err := Evaluate(window, strategy.Default("BTC"), config.DefaultTuning())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Direction == model.Short {
		t.Errorf("uptrend rule path produced a Short signal: %+v", sig)
	}
	if sig.Strategy != "EMA_Crossover_RSI" {
		t.Errorf("strategy: got %q", sig.Strategy)
	}
	if len(sig.Reasons) == 0 {
		t.Error("expected a rule trail")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	window := scenarioWindow(t, sim.Volatile, 250)
	tuning := config.DefaultTuning()

	a, err := Evaluate(window, strategy.Default("BTC"), tuning)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	b, err := Evaluate(window, strategy.Default("BTC"), tuning)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same window diverged:\n%+v\n%+v", a, b)
	}

	ca, err := EvaluateCategory(window, tuning)
	if err != nil {
		t.Fatalf("EvaluateCategory: %v", err)
	}
	cb, err := EvaluateCategory(window, tuning)
	if err != nil {
		t.Fatalf("EvaluateCategory: %v", err)
	}
	if !reflect.DeepEqual(ca, cb) {
		t.Errorf("same window diverged on the category path")
	}
}
