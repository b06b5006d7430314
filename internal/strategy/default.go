package strategy

import "perpsignals/internal/indicator"

func f64(v float64) *float64 { return &v }

// Default returns the built-in EMA crossover strategy with an RSI
// filter: go long on a golden cross unless RSI is already overbought,
// short on a death cross unless RSI is already oversold. Each entry leg
// scores 3 on a clean match, which is exactly the long threshold.
func Default(symbol string) *Strategy {
	return &Strategy{
		Name:   "EMA_Crossover_RSI",
		Symbol: symbol,
		Rules: []Rule{
			{
				ID:       "entry",
				Type:     TypeGroup,
				Operator: OpOR,
				Children: []Rule{
					{
						ID:       "long-entry",
						Type:     TypeGroup,
						Operator: OpAND,
						Children: []Rule{
							{
								ID:     "golden-cross",
								Type:   TypeCondition,
								Weight: f64(2),
								Condition: &Condition{
									Indicator:   indicator.IDEma,
									Comparison:  CompSignalState,
									SignalState: string(indicator.EMABullishCross),
								},
							},
							{
								ID:   "rsi-not-overbought",
								Type: TypeCondition,
								Condition: &Condition{
									Indicator:  indicator.IDRsi,
									Comparison: CompLessEqual,
									Threshold:  f64(70),
								},
							},
						},
					},
					{
						ID:       "short-entry",
						Type:     TypeGroup,
						Operator: OpAND,
						Children: []Rule{
							{
								ID:     "death-cross",
								Type:   TypeCondition,
								Weight: f64(2),
								Condition: &Condition{
									Indicator:   indicator.IDEma,
									Comparison:  CompSignalState,
									SignalState: string(indicator.EMABearishCross),
								},
							},
							{
								ID:   "rsi-not-oversold",
								Type: TypeCondition,
								Condition: &Condition{
									Indicator:  indicator.IDRsi,
									Comparison: CompGreaterEqual,
									Threshold:  f64(30),
								},
							},
						},
					},
				},
			},
		},
		Aggregation: Aggregation{
			Method: MethodSum,
			Thresholds: Thresholds{
				LongMin:  3,
				ShortMax: -3,
			},
		},
	}
}
