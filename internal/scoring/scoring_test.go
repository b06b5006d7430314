package scoring

import (
	"math"
	"testing"

	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

// ────────────────────────────────────────────────────────────
// Aggregation scenarios
// ────────────────────────────────────────────────────────────

func TestAggregate_FullBullish(t *testing.T) {
	snap := &indicator.Snapshot{
		Ema:           &indicator.EMAValue{Fast: 105, Slow: 100, FastPeriod: 20, SlowPeriod: 50, State: indicator.EMABullishCross},
		SuperTrend:    &indicator.SuperTrendValue{Value: 95, Direction: 1, State: indicator.SuperTrendBullishFlip},
		Rsi:           &indicator.RSIValue{Value: 25, Period: 14, State: indicator.RSIOversold},
		Macd:          &indicator.MACDValue{Line: 1, Signal: 0.5, Histogram: 0.5, State: indicator.MACDBullishCross},
		Bollinger:     &indicator.BollingerValue{State: indicator.BollingerUpperBreakout},
		Atr:           &indicator.ATRValue{Value: 1, Period: 14, Regime: indicator.ATRNormal},
		Obv:           &indicator.OBVValue{State: indicator.OBVConfirmation},
		VolumeProfile: &indicator.VolumeProfileValue{State: indicator.VPPOCSupport},
		OpenInterest:  &indicator.OpenInterestValue{State: indicator.OIBullishExpansion},
		FundingRate:   &indicator.FundingValue{Current: -0.002, State: indicator.FundingExtremeShortBias},
	}

	res := Aggregate(snap)

	// Raw sums: trend 2+2=4 clamps to 3, momentum 1+2=3, volatility 1,
	// volume 1+1=2, perp 2+1=3 clamps to 2. Total 11.
	want := Breakdown{Trend: 3, Momentum: 3, Volatility: 1, Volume: 2, Perp: 2, Total: 11}
	if res.Breakdown != want {
		t.Fatalf("breakdown: got %+v, want %+v", res.Breakdown, want)
	}
	if res.Bias != StrongBullish || res.Direction != model.Long {
		t.Errorf("bias/direction: got %s/%s, want StrongBullish/Long", res.Bias, res.Direction)
	}
	// Directional magnitude 3+3+2+2=10 over ceiling 10 = 1.0; trend and
	// momentum agree so the 1.2 bonus applies, capped at 1.0.
	assertClose(t, "confidence", res.Confidence, 1.0, 1e-9)
	// One risk factor (funding extreme) -> Medium.
	if res.Risk != RiskMedium {
		t.Errorf("risk: got %s, want Medium", res.Risk)
	}

	wantReasons := []struct {
		source       string
		detail       string
		contribution float64
	}{
		{"Ema", "Golden Cross EMA20/50", 2},
		{"SuperTrend", "SuperTrend flip bullish", 2},
		{"Rsi", "RSI oversold", 1},
		{"Macd", "MACD bullish cross", 2},
		{"Bollinger", "Price broke above Bollinger upper", 1},
		{"Obv", "Volume confirms price action", 1},
		{"VolumeProfile", "Price at POC support", 1},
		{"OpenInterest", "New money entering longs", 2},
		{"FundingRate", "Extreme short bias - bounce potential", 1},
	}
	if len(res.Reasons) != len(wantReasons) {
		t.Fatalf("reasons: got %d, want %d: %+v", len(res.Reasons), len(wantReasons), res.Reasons)
	}
	for i, w := range wantReasons {
		r := res.Reasons[i]
		if r.Source != w.source || r.Detail != w.detail || r.Contribution != w.contribution {
			t.Errorf("reason[%d]: got {%s %q %.0f}, want {%s %q %.0f}",
				i, r.Source, r.Detail, r.Contribution, w.source, w.detail, w.contribution)
		}
		if r.Weight != 1 {
			t.Errorf("reason[%d] weight: got %.2f, want 1", i, r.Weight)
		}
	}
}

func TestAggregate_FullBearish(t *testing.T) {
	snap := &indicator.Snapshot{
		Ema:           &indicator.EMAValue{Fast: 100, Slow: 105, FastPeriod: 20, SlowPeriod: 50, State: indicator.EMABearishCross},
		SuperTrend:    &indicator.SuperTrendValue{Direction: -1, State: indicator.SuperTrendBearishFlip},
		Rsi:           &indicator.RSIValue{Value: 78, Period: 14, State: indicator.RSIOverbought},
		Macd:          &indicator.MACDValue{State: indicator.MACDBearishCross},
		Bollinger:     &indicator.BollingerValue{State: indicator.BollingerLowerBreakout},
		Atr:           &indicator.ATRValue{Value: 9, Period: 14, Regime: indicator.ATRHigh},
		Obv:           &indicator.OBVValue{State: indicator.OBVBearishDivergence},
		VolumeProfile: &indicator.VolumeProfileValue{State: indicator.VPPOCResistance},
		OpenInterest:  &indicator.OpenInterestValue{State: indicator.OIBearishExpansion},
		FundingRate:   &indicator.FundingValue{Current: 0.002, State: indicator.FundingExtremeLongBias},
	}

	res := Aggregate(snap)

	// trend -4 -> -3, momentum -3, volatility -1, volume -3 -> -2,
	// perp -3 -> -2. Total -11.
	want := Breakdown{Trend: -3, Momentum: -3, Volatility: -1, Volume: -2, Perp: -2, Total: -11}
	if res.Breakdown != want {
		t.Fatalf("breakdown: got %+v, want %+v", res.Breakdown, want)
	}
	if res.Bias != StrongBearish || res.Direction != model.Short {
		t.Errorf("bias/direction: got %s/%s, want StrongBearish/Short", res.Bias, res.Direction)
	}
	assertClose(t, "confidence", res.Confidence, 1.0, 1e-9)
	// High volatility (+2) and a funding extreme (+1) -> High.
	if res.Risk != RiskHigh {
		t.Errorf("risk: got %s, want High", res.Risk)
	}
	// The High regime contributes a zero-score reason after the breakout.
	found := false
	for _, r := range res.Reasons {
		if r.Source == "Atr" && r.Detail == "High volatility - reduce size" && r.Contribution == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("missing High-volatility reason in %+v", res.Reasons)
	}
}

func TestAggregate_EmptySnapshot(t *testing.T) {
	for _, snap := range []*indicator.Snapshot{nil, {}} {
		res := Aggregate(snap)
		if res.Breakdown != (Breakdown{}) {
			t.Errorf("breakdown should be zero, got %+v", res.Breakdown)
		}
		if res.Direction != model.Neutral || res.Bias != NeutralBias {
			t.Errorf("empty snapshot: got %s/%s, want Neutral/Neutral", res.Bias, res.Direction)
		}
		if res.Confidence != 0 {
			t.Errorf("empty snapshot confidence: got %f, want 0", res.Confidence)
		}
		if len(res.Reasons) != 1 || res.Reasons[0].Source != "window" {
			t.Errorf("expected a single window reason, got %+v", res.Reasons)
		}
		// A zero total is itself a weak-conviction factor.
		if res.Risk != RiskMedium {
			t.Errorf("empty snapshot risk: got %s, want Medium", res.Risk)
		}
	}
}

func TestAggregate_CeilingShrinksWithAvailability(t *testing.T) {
	// Only RSI present: momentum ceiling is 2 (RSI alone cannot reach the
	// clamp), everything else drops out of the denominator.
	snap := &indicator.Snapshot{
		Rsi: &indicator.RSIValue{Value: 22, Period: 14, State: indicator.RSIOversold},
	}
	res := Aggregate(snap)
	if res.Breakdown.Momentum != 1 || res.Breakdown.Total != 1 {
		t.Fatalf("breakdown: %+v", res.Breakdown)
	}
	// 1/2 = 0.5, trend is flat so the 0.8 penalty applies: 0.4.
	assertClose(t, "confidence", res.Confidence, 0.4, 1e-9)
	if res.Direction != model.Neutral {
		t.Errorf("direction: got %s, want Neutral", res.Direction)
	}
}

func TestAggregate_AlignmentBonusAndPenalty(t *testing.T) {
	aligned := &indicator.Snapshot{
		Ema:  &indicator.EMAValue{FastPeriod: 20, SlowPeriod: 50, State: indicator.EMAStrongUptrend},
		Macd: &indicator.MACDValue{State: indicator.MACDBullishCross},
	}
	// ceiling: trend 2 (EMA only) + momentum 2 (MACD only) = 4.
	// magnitude 1+2=3 -> 0.75, aligned -> x1.2 = 0.9.
	assertClose(t, "aligned", Aggregate(aligned).Confidence, 0.9, 1e-9)

	opposed := &indicator.Snapshot{
		Ema:  &indicator.EMAValue{FastPeriod: 20, SlowPeriod: 50, State: indicator.EMAStrongUptrend},
		Macd: &indicator.MACDValue{State: indicator.MACDBearishCross},
	}
	// pos 1, neg 2 -> alignment 2/4 = 0.5, opposed -> x0.8 = 0.4.
	assertClose(t, "opposed", Aggregate(opposed).Confidence, 0.4, 1e-9)
}

func TestAggregate_ContinuationScoresCarryNoReasons(t *testing.T) {
	snap := &indicator.Snapshot{
		SuperTrend: &indicator.SuperTrendValue{Direction: 1, State: indicator.SuperTrendBullish},
		Macd:       &indicator.MACDValue{Histogram: 0.3, State: indicator.MACDBullishMomentum},
	}
	res := Aggregate(snap)
	if res.Breakdown.Trend != 1 || res.Breakdown.Momentum != 1 {
		t.Fatalf("breakdown: %+v", res.Breakdown)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("continuation states should not produce reasons, got %+v", res.Reasons)
	}
	// 2/4 = 0.5 aligned -> 0.6.
	assertClose(t, "confidence", res.Confidence, 0.6, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Bias, risk and mapping tables
// ────────────────────────────────────────────────────────────

func TestBiasFromScore(t *testing.T) {
	cases := []struct {
		total int
		bias  MarketBias
		dir   model.Direction
	}{
		{11, StrongBullish, model.Long},
		{7, StrongBullish, model.Long},
		{6, Bullish, model.Long},
		{3, Bullish, model.Long},
		{2, NeutralBias, model.Neutral},
		{0, NeutralBias, model.Neutral},
		{-2, NeutralBias, model.Neutral},
		{-3, Bearish, model.Short},
		{-6, Bearish, model.Short},
		{-7, StrongBearish, model.Short},
		{-11, StrongBearish, model.Short},
	}
	for _, c := range cases {
		if got := BiasFromScore(c.total); got != c.bias {
			t.Errorf("BiasFromScore(%d): got %s, want %s", c.total, got, c.bias)
		}
		if got := BiasFromScore(c.total).Direction(); got != c.dir {
			t.Errorf("Direction(%d): got %s, want %s", c.total, got, c.dir)
		}
	}
}

func TestAssessRisk_DivergenceRefund(t *testing.T) {
	// A lone RSI divergence: total 2, no other factors, the refund
	// saturates at zero -> Low.
	lone := &indicator.Snapshot{
		Rsi: &indicator.RSIValue{Value: 28, State: indicator.RSIBullishDivergence},
	}
	if res := Aggregate(lone); res.Risk != RiskLow {
		t.Errorf("lone divergence risk: got %s, want Low", res.Risk)
	}

	// Divergence against a High regime: 2 - 1 = 1 -> Medium.
	withVol := &indicator.Snapshot{
		Rsi: &indicator.RSIValue{Value: 28, State: indicator.RSIBullishDivergence},
		Atr: &indicator.ATRValue{Value: 9, Regime: indicator.ATRHigh},
	}
	if res := Aggregate(withVol); res.Risk != RiskMedium {
		t.Errorf("divergence+high-vol risk: got %s, want Medium", res.Risk)
	}
}

func TestCategoryMapping(t *testing.T) {
	want := map[indicator.ID]Category{
		indicator.IDMacd:          Momentum,
		indicator.IDRsi:           Momentum,
		indicator.IDEma:           Trend,
		indicator.IDSuperTrend:    Trend,
		indicator.IDBollinger:     Volatility,
		indicator.IDAtr:           Volatility,
		indicator.IDObv:           Volume,
		indicator.IDVolumeProfile: Volume,
		indicator.IDFundingRate:   Perp,
		indicator.IDOpenInterest:  Perp,
	}
	for id, cat := range want {
		if got := CategoryOf(id); got != cat {
			t.Errorf("CategoryOf(%s): got %s, want %s", id, got, cat)
		}
	}
	if got := CategoryOf("Vwap"); got != "" {
		t.Errorf("CategoryOf(unknown): got %q, want empty", got)
	}
}

func TestMaxScoreAndWeights(t *testing.T) {
	if MaxScore(Momentum) != 3 || MaxScore(Trend) != 3 {
		t.Error("momentum/trend clamp should be 3")
	}
	if MaxScore(Volatility) != 2 || MaxScore(Volume) != 2 || MaxScore(Perp) != 2 {
		t.Error("volatility/volume/perp clamp should be 2")
	}
	var sum float64
	for _, w := range DefaultWeights() {
		sum += w
	}
	assertClose(t, "weight sum", sum, 1.0, 1e-9)
}
