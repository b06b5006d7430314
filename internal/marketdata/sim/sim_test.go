package sim

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"perpsignals/internal/model"
)

var anchor = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func mustProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestScenariosProduceValidSeries(t *testing.T) {
	for _, sc := range []Scenario{Uptrend, Downtrend, Ranging, Volatile, Reversal} {
		t.Run(string(sc), func(t *testing.T) {
			p := mustProvider(t, Config{Scenario: sc, Anchor: anchor})
			candles, err := p.History(context.Background(), "BTC", 300)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(candles) != 300 {
				t.Fatalf("got %d candles, want 300", len(candles))
			}
			if err := model.ValidateSeries(candles); err != nil {
				t.Fatalf("series invalid: %v", err)
			}
			for i := range candles {
				if candles[i].Symbol != "BTC" {
					t.Fatalf("candle %d symbol = %q", i, candles[i].Symbol)
				}
				if candles[i].FundingRate == nil || candles[i].OpenInterest == nil {
					t.Fatalf("candle %d missing perp fields", i)
				}
			}
		})
	}
}

func TestUptrendShape(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Uptrend, Anchor: anchor})
	candles, err := p.History(context.Background(), "BTC", 250)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got := candles[0].Close; math.Abs(got-1000.1) > 1e-9 {
		t.Errorf("first close = %v, want 1000.1", got)
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Close <= candles[i-1].Close {
			t.Fatalf("close not rising at bar %d: %v then %v", i, candles[i-1].Close, candles[i].Close)
		}
		if *candles[i].OpenInterest <= *candles[i-1].OpenInterest {
			t.Fatalf("open interest not rising at bar %d", i)
		}
	}
	if fr := *candles[100].FundingRate; fr != 0.0002 {
		t.Errorf("funding rate = %v, want 0.0002", fr)
	}
}

func TestDowntrendShape(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Downtrend, Anchor: anchor})
	candles, err := p.History(context.Background(), "ETH", 300)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	last := candles[len(candles)-1]
	if last.Close >= candles[0].Close {
		t.Errorf("downtrend did not fall: first %v last %v", candles[0].Close, last.Close)
	}
	// 300 bars at -0.5 per bar must stay above zero from the 1000 base.
	if last.Low <= 0 {
		t.Errorf("downtrend went non-positive: %v", last.Low)
	}
	if fr := *last.FundingRate; fr != -0.0006 {
		t.Errorf("funding rate = %v, want -0.0006", fr)
	}
}

func TestRangingCycle(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Ranging, Anchor: anchor})
	candles, err := p.History(context.Background(), "BTC", 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for i := range candles {
		if c := candles[i].Close; c < 995 || c > 1005 {
			t.Fatalf("bar %d close %v escaped the band", i, c)
		}
	}
	if candles[0].Close != candles[20].Close || candles[7].Close != candles[47].Close {
		t.Errorf("cycle does not repeat with period 20")
	}
	if fr := *candles[50].FundingRate; fr != 0 {
		t.Errorf("ranging funding = %v, want 0", fr)
	}
}

func TestReversalTurnsAtMidpoint(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Reversal, Anchor: anchor})
	candles, err := p.History(context.Background(), "BTC", 250)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	mid := len(candles) / 2
	peak := candles[mid-1]
	if peak.Close <= candles[0].Close {
		t.Errorf("no up leg: first %v peak %v", candles[0].Close, peak.Close)
	}
	last := candles[len(candles)-1]
	if last.Close >= peak.Close {
		t.Errorf("no down leg: peak %v last %v", peak.Close, last.Close)
	}
	if *candles[mid-1].FundingRate != 0.0003 || *candles[mid].FundingRate != -0.0003 {
		t.Errorf("funding did not flip at the midpoint")
	}
	if *last.OpenInterest >= *peak.OpenInterest {
		t.Errorf("open interest did not unwind on the down leg")
	}
}

func TestHistoryDeterministicWithPinnedAnchor(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Volatile, Anchor: anchor})
	a, err := p.History(context.Background(), "BTC", 120)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	b, err := p.History(context.Background(), "BTC", 120)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated calls diverged")
	}
}

func TestTimestampsSpacedByInterval(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Ranging, Interval: 5 * time.Minute, Anchor: anchor})
	candles, err := p.History(context.Background(), "BTC", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !candles[len(candles)-1].TS.Equal(anchor) {
		t.Errorf("newest bar closes at %v, want the anchor %v", candles[len(candles)-1].TS, anchor)
	}
	for i := 1; i < len(candles); i++ {
		if got := candles[i].TS.Sub(candles[i-1].TS); got != 5*time.Minute {
			t.Fatalf("bar %d spacing = %v, want 5m", i, got)
		}
	}
}

func TestParseScenario(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Scenario
	}{
		{"uptrend", Uptrend},
		{"DOWNTREND", Downtrend},
		{" ranging ", Ranging},
		{"volatile", Volatile},
		{"reversal", Reversal},
		{"", Uptrend},
	} {
		got, err := ParseScenario(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseScenario(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseScenario("sideways"); err == nil {
		t.Errorf("expected error for unknown scenario")
	}
}

func TestName(t *testing.T) {
	p := mustProvider(t, Config{Scenario: Ranging})
	if p.Name() != "sim:ranging" {
		t.Errorf("Name = %q", p.Name())
	}
}
