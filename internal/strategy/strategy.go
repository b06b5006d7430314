// Package strategy models user-authored rule trees and evaluates them
// against an indicator snapshot.
//
// A Strategy is a list of root rules plus an aggregation method and the
// score thresholds a decision is cut on. Rules form a finite tree of
// Condition leaves under AND/OR groups; trees are built once (usually
// parsed from JSON), validated at load time and never mutated, so any
// number of evaluations can run concurrently against the same Strategy.
package strategy

import (
	"encoding/json"
	"errors"
	"fmt"

	"perpsignals/internal/indicator"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid strategy configuration")

// ErrNotFound is returned when a named strategy does not exist.
var ErrNotFound = errors.New("strategy not found")

// RuleType discriminates the rule union.
type RuleType string

const (
	TypeCondition     RuleType = "Condition"
	TypeGroup         RuleType = "Group"
	TypeWeightedGroup RuleType = "WeightedGroup"
)

// LogicalOperator combines a group's children.
type LogicalOperator string

const (
	OpAND LogicalOperator = "AND"
	OpOR  LogicalOperator = "OR"
)

// Comparison is the operation a Condition applies to its indicator.
type Comparison string

const (
	CompGreaterThan  Comparison = "GreaterThan"
	CompLessThan     Comparison = "LessThan"
	CompGreaterEqual Comparison = "GreaterEqual"
	CompLessEqual    Comparison = "LessEqual"
	CompEqual        Comparison = "Equal"
	CompNotEqual     Comparison = "NotEqual"
	CompInRange      Comparison = "InRange"
	CompSignalState  Comparison = "SignalState"
)

// AggregationMethod folds root-rule contributions into one score.
type AggregationMethod string

const (
	MethodSum         AggregationMethod = "Sum"
	MethodWeightedSum AggregationMethod = "WeightedSum"
	MethodMajority    AggregationMethod = "Majority"
	MethodAll         AggregationMethod = "All"
	MethodAny         AggregationMethod = "Any"
)

// Condition compares one indicator against a threshold or a required
// signal state. InRange reads [Threshold, ThresholdHigh].
type Condition struct {
	Indicator     indicator.ID `json:"indicator"`
	Comparison    Comparison   `json:"comparison"`
	Threshold     *float64     `json:"threshold,omitempty"`
	ThresholdHigh *float64     `json:"threshold_high,omitempty"`
	SignalState   string       `json:"signal_state,omitempty"`
}

// legacyIndicatorNames maps the upper-cased spellings older strategy
// documents used onto the snapshot identifiers.
var legacyIndicatorNames = map[string]indicator.ID{
	"MACD": indicator.IDMacd,
	"RSI":  indicator.IDRsi,
	"EMA":  indicator.IDEma,
	"OBV":  indicator.IDObv,
	"ATR":  indicator.IDAtr,
}

// UnmarshalJSON decodes a condition, normalizing legacy indicator names.
func (c *Condition) UnmarshalJSON(b []byte) error {
	type plain Condition
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if id, ok := legacyIndicatorNames[string(p.Indicator)]; ok {
		p.Indicator = id
	}
	*c = Condition(p)
	return nil
}

// Rule is either a Condition leaf or a Group over child rules. Weight is
// optional and defaults to 1.
type Rule struct {
	ID        string          `json:"id"`
	Type      RuleType        `json:"type"`
	Weight    *float64        `json:"weight,omitempty"`
	Operator  LogicalOperator `json:"operator,omitempty"`
	Condition *Condition      `json:"condition,omitempty"`
	Children  []Rule          `json:"children,omitempty"`
}

// EffectiveWeight is the rule's weight with the default applied.
func (r *Rule) EffectiveWeight() float64 {
	if r.Weight == nil {
		return 1
	}
	return *r.Weight
}

// Thresholds cut the aggregate score into a direction. LongMin must be
// strictly greater than ShortMax.
type Thresholds struct {
	LongMin  float64 `json:"long_min"`
	ShortMax float64 `json:"short_max"`
}

// Aggregation names the fold method and its thresholds.
type Aggregation struct {
	Method     AggregationMethod `json:"method"`
	Thresholds Thresholds        `json:"thresholds"`
}

// Strategy is an immutable rule document bound to one symbol.
type Strategy struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Rules       []Rule      `json:"rules"`
	Aggregation Aggregation `json:"aggregation"`
}

// Parse decodes and validates a strategy document.
func Parse(b []byte) (*Strategy, error) {
	var st Strategy
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// JSON encodes the strategy document.
func (s *Strategy) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
