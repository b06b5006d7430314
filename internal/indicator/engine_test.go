package indicator

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"perpsignals/internal/model"
)

// randomWalk builds a positive price walk with plausible OHLC geometry.
// Steps are bounded at ±2% so the series can never go non-positive.
func randomWalk(seed int64, n int, withPerp bool) []model.Candle {
	r := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += price * (r.Float64() - 0.5) * 0.04
		high := math.Max(open, price) * (1 + 0.002*r.Float64())
		low := math.Min(open, price) * (1 - 0.002*r.Float64())
		c := model.Candle{
			Symbol: "BTC",
			TS:     testT0.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 10 + 90*r.Float64(),
		}
		if withPerp {
			c.FundingRate = fptr((r.Float64() - 0.5) * 0.002)
			c.OpenInterest = fptr(1e6 * (1 + r.Float64()))
		}
		out[i] = c
	}
	return out
}

func present(s *Snapshot, id ID) bool {
	_, ok := s.Field(id)
	return ok
}

func TestCompute_FullWindow(t *testing.T) {
	e := NewEngine(DefaultParams())
	snap := e.Compute(randomWalk(7, 120, true))
	if got := len(snap.Available()); got != len(AllIDs) {
		t.Errorf("120-candle perp window should fill every slot: got %d of %d (missing %v)",
			got, len(AllIDs), snap.Unavailable())
	}
}

func TestCompute_ShortWindow(t *testing.T) {
	e := NewEngine(DefaultParams())
	snap := e.Compute(randomWalk(7, 10, false))

	if snap.Ema != nil || snap.Macd != nil || snap.Rsi != nil || snap.Bollinger != nil || snap.Atr != nil {
		t.Error("long warm-up indicators must be absent on a 10-candle window")
	}
	if snap.Obv == nil || snap.VolumeProfile == nil {
		t.Error("OBV and volume profile should be present on a 10-candle window")
	}
	if snap.FundingRate != nil || snap.OpenInterest != nil {
		t.Error("perp indicators must be absent without funding/OI fields")
	}
}

func TestCompute_EmptyWindow(t *testing.T) {
	e := NewEngine(DefaultParams())
	snap := e.Compute(nil)
	if got := snap.Unavailable(); len(got) != len(AllIDs) {
		t.Errorf("empty window: want everything unavailable, got %v available", snap.Available())
	}
}

func TestCompute_Deterministic(t *testing.T) {
	e := NewEngine(DefaultParams())
	a := e.Compute(randomWalk(42, 90, true)).JSON()
	b := e.Compute(randomWalk(42, 90, true)).JSON()
	if !bytes.Equal(a, b) {
		t.Error("identical windows must produce byte-identical snapshots")
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	candles := randomWalk(11, 80, true)
	before := make([]model.Candle, len(candles))
	copy(before, candles)

	NewEngine(DefaultParams()).Compute(candles)

	for i := range candles {
		if candles[i] != before[i] {
			t.Fatalf("candle %d mutated by Compute", i)
		}
	}
}

func TestCompute_WarmupProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	e := NewEngine(DefaultParams())

	properties.Property("presence tracks warm-up exactly on perp windows", prop.ForAll(
		func(n int, seed int64) bool {
			snap := e.Compute(randomWalk(seed, n, true))
			for _, id := range AllIDs {
				if present(snap, id) != (n >= Warmup(id, e.Params())) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 120),
		gen.Int64(),
	))

	properties.Property("spot windows never produce perp indicators", prop.ForAll(
		func(n int, seed int64) bool {
			snap := e.Compute(randomWalk(seed, n, false))
			return snap.FundingRate == nil && snap.OpenInterest == nil
		},
		gen.IntRange(0, 120),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params must validate: %v", err)
	}

	bad := DefaultParams()
	bad.EMAFast = 60 // fast above slow
	if err := bad.Validate(); err == nil {
		t.Error("fast EMA above slow EMA should be rejected")
	}

	bad = DefaultParams()
	bad.OBVSmoothing = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("OBV smoothing above 1 should be rejected")
	}

	bad = DefaultParams()
	bad.FundingExtreme = 0.0001 // below the high-bias threshold
	if err := bad.Validate(); err == nil {
		t.Error("extreme funding threshold below high threshold should be rejected")
	}
}
