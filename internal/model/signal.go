package model

import (
	"encoding/json"
	"time"
)

// Direction is the discrete trading call a signal makes.
type Direction string

const (
	Long    Direction = "Long"
	Short   Direction = "Short"
	Neutral Direction = "Neutral"
)

// Reason is one attribution entry explaining what drove a signal.
// Source names the indicator or rule that contributed, Detail is the
// human-readable condition ("Golden Cross EMA20/50"), Contribution is the
// signed score the entry added.
type Reason struct {
	Source       string  `json:"source"`
	Detail       string  `json:"detail"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// SignalOutput is the result of one evaluation: the call, how sure the
// engine is, the volatility-derived SL/TP recommendation, and the ordered
// reason trail. SL/TP are percent values and are nil when the direction is
// Neutral or ATR had insufficient history. Immutable once produced.
type SignalOutput struct {
	Symbol           string    `json:"symbol"`
	Strategy         string    `json:"strategy,omitempty"` // empty for the category path
	Direction        Direction `json:"direction"`
	Confidence       float64   `json:"confidence"` // always within [0, 1]
	RecommendedSLPct *float64  `json:"recommended_sl_pct,omitempty"`
	RecommendedTPPct *float64  `json:"recommended_tp_pct,omitempty"`
	Reasons          []Reason  `json:"reasons"`
	Score            float64   `json:"score"` // raw aggregate score
	Price            float64   `json:"price"` // close at evaluation
	TS               time.Time `json:"ts"`
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *SignalOutput) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
