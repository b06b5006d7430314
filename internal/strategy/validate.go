package strategy

import (
	"fmt"

	"perpsignals/internal/indicator"
)

// Validate checks the whole document: naming, thresholds, method, and
// every rule in the tree. The first violation is returned, wrapped in
// ErrInvalidConfig. A valid tree always bottoms out in condition leaves,
// since groups must carry children and conditions cannot.
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidConfig)
	}
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidConfig)
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("%w: no rules", ErrInvalidConfig)
	}
	switch s.Aggregation.Method {
	case MethodSum, MethodWeightedSum, MethodMajority, MethodAll, MethodAny:
	default:
		return fmt.Errorf("%w: unknown aggregation method %q", ErrInvalidConfig, s.Aggregation.Method)
	}
	if t := s.Aggregation.Thresholds; t.LongMin <= t.ShortMax {
		return fmt.Errorf("%w: long_min %.2f must exceed short_max %.2f", ErrInvalidConfig, t.LongMin, t.ShortMax)
	}
	seen := make(map[string]bool)
	for i := range s.Rules {
		if err := validateRule(&s.Rules[i], seen); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(r *Rule, seen map[string]bool) error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule with empty id", ErrInvalidConfig)
	}
	if seen[r.ID] {
		return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidConfig, r.ID)
	}
	seen[r.ID] = true
	if r.Weight != nil && *r.Weight <= 0 {
		return fmt.Errorf("%w: rule %q: weight %.2f must be positive", ErrInvalidConfig, r.ID, *r.Weight)
	}
	switch r.Type {
	case TypeCondition:
		if len(r.Children) > 0 {
			return fmt.Errorf("%w: rule %q: a condition cannot have children", ErrInvalidConfig, r.ID)
		}
		if r.Condition == nil {
			return fmt.Errorf("%w: rule %q: condition body missing", ErrInvalidConfig, r.ID)
		}
		return validateCondition(r.ID, r.Condition)
	case TypeGroup, TypeWeightedGroup:
		if r.Condition != nil {
			return fmt.Errorf("%w: rule %q: a group cannot carry a condition", ErrInvalidConfig, r.ID)
		}
		if r.Operator != OpAND && r.Operator != OpOR {
			return fmt.Errorf("%w: rule %q: group operator must be AND or OR, got %q", ErrInvalidConfig, r.ID, r.Operator)
		}
		if len(r.Children) == 0 {
			return fmt.Errorf("%w: rule %q: group has no children", ErrInvalidConfig, r.ID)
		}
		if r.Type == TypeWeightedGroup && r.Weight == nil {
			return fmt.Errorf("%w: rule %q: weighted group without a weight", ErrInvalidConfig, r.ID)
		}
		for i := range r.Children {
			if err := validateRule(&r.Children[i], seen); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: rule %q: unknown rule type %q", ErrInvalidConfig, r.ID, r.Type)
	}
}

func validateCondition(id string, c *Condition) error {
	if !indicator.KnownID(c.Indicator) {
		return fmt.Errorf("%w: rule %q: unknown indicator %q", ErrInvalidConfig, id, c.Indicator)
	}
	switch c.Comparison {
	case CompSignalState:
		if c.SignalState == "" {
			return fmt.Errorf("%w: rule %q: signal-state comparison without signal_state", ErrInvalidConfig, id)
		}
		if !indicator.KnownState(c.Indicator, c.SignalState) {
			return fmt.Errorf("%w: rule %q: %s never reports state %q", ErrInvalidConfig, id, c.Indicator, c.SignalState)
		}
	case CompInRange:
		if c.Threshold == nil || c.ThresholdHigh == nil {
			return fmt.Errorf("%w: rule %q: in-range comparison needs threshold and threshold_high", ErrInvalidConfig, id)
		}
		if *c.Threshold > *c.ThresholdHigh {
			return fmt.Errorf("%w: rule %q: in-range bounds inverted (%.4f > %.4f)", ErrInvalidConfig, id, *c.Threshold, *c.ThresholdHigh)
		}
	case CompGreaterThan, CompLessThan, CompGreaterEqual, CompLessEqual, CompEqual, CompNotEqual:
		if c.Threshold == nil {
			return fmt.Errorf("%w: rule %q: %s comparison without threshold", ErrInvalidConfig, id, c.Comparison)
		}
	default:
		return fmt.Errorf("%w: rule %q: unknown comparison %q", ErrInvalidConfig, id, c.Comparison)
	}
	return nil
}
