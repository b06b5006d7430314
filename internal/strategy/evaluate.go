package strategy

import (
	"fmt"
	"math"

	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
)

// RuleResult is one entry of the attribution trail, recorded for every
// node of the tree in pre-order.
type RuleResult struct {
	RuleID string  `json:"rule_id"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail,omitempty"`
}

// Result is one evaluation outcome. MaxScore is the largest |Score| the
// tree could have produced given which indicators were present; it is the
// confidence denominator downstream. AllUnavailable is set when not one
// referenced indicator was present in the snapshot.
type Result struct {
	Score          float64      `json:"score"`
	MaxScore       float64      `json:"max_score"`
	Rules          []RuleResult `json:"rules"`
	AllUnavailable bool         `json:"all_unavailable,omitempty"`
}

// Reasons converts the rule trail into the signal attribution format.
func (r *Result) Reasons() []model.Reason {
	out := make([]model.Reason, len(r.Rules))
	for i, rr := range r.Rules {
		out[i] = model.Reason{Source: rr.RuleID, Detail: rr.Detail, Weight: rr.Weight, Contribution: rr.Score}
	}
	return out
}

type nodeResult struct {
	score   float64
	matched bool
}

type evalState struct {
	trail     []RuleResult
	sawData   bool
	allLeaves bool
	anyLeaf   bool
}

// Evaluate runs a strategy against a snapshot. The document is validated
// first and refused with ErrInvalidConfig if malformed; evaluation itself
// never fails. Unavailable indicators contribute zero, appear as
// inapplicable in the trail, and drop out of MaxScore. Pure: neither
// argument is mutated, so concurrent calls are safe.
func Evaluate(st *Strategy, snap *indicator.Snapshot) (Result, error) {
	if err := st.Validate(); err != nil {
		return Result{}, err
	}
	if snap == nil {
		snap = &indicator.Snapshot{}
	}

	state := &evalState{allLeaves: true}
	method := st.Aggregation.Method
	roots := make([]nodeResult, len(st.Rules))
	for i := range st.Rules {
		nr, err := evalRule(&st.Rules[i], snap, method, state)
		if err != nil {
			return Result{}, err
		}
		roots[i] = nr
	}

	res := Result{Rules: state.trail, AllUnavailable: !state.sawData}
	switch method {
	case MethodSum, MethodWeightedSum:
		for i := range st.Rules {
			res.Score += roots[i].score
			res.MaxScore += nodeMax(&st.Rules[i], snap, method)
		}
	case MethodMajority:
		pos, neg := 0, 0
		for _, nr := range roots {
			switch {
			case nr.matched && nr.score > 0:
				pos++
			case nr.matched && nr.score < 0:
				neg++
			}
		}
		res.Score = float64(pos - neg)
		for i := range st.Rules {
			if nodeMax(&st.Rules[i], snap, method) > 0 {
				res.MaxScore++
			}
		}
	case MethodAll:
		full := availableLeafWeights(st.Rules, snap)
		res.MaxScore = full
		if state.allLeaves {
			res.Score = full
		}
	case MethodAny:
		full := availableLeafWeights(st.Rules, snap)
		res.MaxScore = full
		if state.anyLeaf {
			res.Score = full
		}
	}
	return res, nil
}

func evalRule(r *Rule, snap *indicator.Snapshot, method AggregationMethod, st *evalState) (nodeResult, error) {
	switch r.Type {
	case TypeCondition:
		return evalCondition(r, snap, st)
	case TypeGroup, TypeWeightedGroup:
		return evalGroup(r, snap, method, st)
	default:
		return nodeResult{}, fmt.Errorf("%w: rule %q: unknown rule type %q", ErrInvalidConfig, r.ID, r.Type)
	}
}

func evalCondition(r *Rule, snap *indicator.Snapshot, st *evalState) (nodeResult, error) {
	w := r.EffectiveWeight()
	c := r.Condition
	f, ok := snap.Field(c.Indicator)
	if !ok {
		st.allLeaves = false
		st.trail = append(st.trail, RuleResult{
			RuleID: r.ID,
			Weight: w,
			Detail: fmt.Sprintf("inapplicable: %s unavailable", c.Indicator),
		})
		return nodeResult{}, nil
	}
	st.sawData = true

	matched, sign, err := matchCondition(r.ID, c, f)
	if err != nil {
		return nodeResult{}, err
	}
	var score float64
	if matched {
		score = float64(sign) * w
		st.anyLeaf = true
	} else {
		st.allLeaves = false
	}
	st.trail = append(st.trail, RuleResult{
		RuleID: r.ID,
		Passed: matched,
		Score:  score,
		Weight: w,
		Detail: describeCondition(c, f, matched),
	})
	return nodeResult{score: score, matched: matched}, nil
}

func evalGroup(r *Rule, snap *indicator.Snapshot, method AggregationMethod, st *evalState) (nodeResult, error) {
	w := r.EffectiveWeight()

	// Reserve the group's trail slot so the trail stays pre-order even
	// though the group score is known only after its children ran.
	slot := len(st.trail)
	st.trail = append(st.trail, RuleResult{})

	var sum, best float64
	matchedCount := 0
	for i := range r.Children {
		nr, err := evalRule(&r.Children[i], snap, method, st)
		if err != nil {
			return nodeResult{}, err
		}
		if nr.matched {
			matchedCount++
			sum += nr.score
			if math.Abs(nr.score) > math.Abs(best) {
				best = nr.score
			}
		}
	}

	var out nodeResult
	switch r.Operator {
	case OpAND:
		if matchedCount == len(r.Children) {
			out = nodeResult{score: sum * w, matched: true}
		}
	case OpOR:
		if matchedCount > 0 {
			picked := best
			if method == MethodWeightedSum {
				picked = sum
			}
			out = nodeResult{score: picked * w, matched: true}
		}
	}
	st.trail[slot] = RuleResult{
		RuleID: r.ID,
		Passed: out.matched,
		Score:  out.score,
		Weight: w,
		Detail: fmt.Sprintf("%s group: %d/%d children matched", r.Operator, matchedCount, len(r.Children)),
	}
	return out, nil
}

// matchCondition reports whether the condition holds and the sign of its
// contribution. Signs follow each indicator's fixed bullish framing:
// GreaterThan leans with the field's polarity, LessThan against it, and
// the equality and range forms count as bullish wherever the scale is
// directional at all.
func matchCondition(id string, c *Condition, f indicator.Field) (bool, int, error) {
	switch c.Comparison {
	case CompSignalState:
		if f.State != c.SignalState {
			return false, 0, nil
		}
		return true, indicator.StateSign(c.Indicator, c.SignalState), nil
	case CompGreaterThan:
		return f.Scalar > *c.Threshold, f.Polarity, nil
	case CompGreaterEqual:
		return f.Scalar >= *c.Threshold, f.Polarity, nil
	case CompLessThan:
		return f.Scalar < *c.Threshold, -f.Polarity, nil
	case CompLessEqual:
		return f.Scalar <= *c.Threshold, -f.Polarity, nil
	case CompEqual:
		return f.Scalar == *c.Threshold, positive(f.Polarity), nil
	case CompNotEqual:
		return f.Scalar != *c.Threshold, positive(f.Polarity), nil
	case CompInRange:
		in := *c.Threshold <= f.Scalar && f.Scalar <= *c.ThresholdHigh
		return in, positive(f.Polarity), nil
	default:
		return false, 0, fmt.Errorf("%w: rule %q: unknown comparison %q", ErrInvalidConfig, id, c.Comparison)
	}
}

func positive(polarity int) int {
	if polarity == 0 {
		return 0
	}
	return 1
}

func describeCondition(c *Condition, f indicator.Field, matched bool) string {
	verdict := "matched"
	if !matched {
		verdict = "not matched"
	}
	switch c.Comparison {
	case CompSignalState:
		if matched {
			return fmt.Sprintf("%s state %s matched", c.Indicator, c.SignalState)
		}
		return fmt.Sprintf("%s state is %s, wanted %s", c.Indicator, f.State, c.SignalState)
	case CompInRange:
		return fmt.Sprintf("%s %.4g in [%.4g, %.4g] %s", c.Indicator, f.Scalar, *c.Threshold, *c.ThresholdHigh, verdict)
	default:
		return fmt.Sprintf("%s %.4g %s %.4g %s", c.Indicator, f.Scalar, c.Comparison, *c.Threshold, verdict)
	}
}

// nodeMax is the largest |contribution| a node can produce given the
// snapshot: absent or directionless leaves count zero, AND groups add
// their children, OR groups take their strongest child except under
// WeightedSum where matching children sum.
func nodeMax(r *Rule, snap *indicator.Snapshot, method AggregationMethod) float64 {
	if r.Type == TypeCondition {
		f, ok := snap.Field(r.Condition.Indicator)
		if !ok {
			return 0
		}
		if c := r.Condition; c.Comparison == CompSignalState {
			if indicator.StateSign(c.Indicator, c.SignalState) == 0 {
				return 0
			}
		} else if f.Polarity == 0 {
			return 0
		}
		return r.EffectiveWeight()
	}
	var sum, best float64
	for i := range r.Children {
		m := nodeMax(&r.Children[i], snap, method)
		sum += m
		if m > best {
			best = m
		}
	}
	if r.Operator == OpOR && method != MethodWeightedSum {
		return best * r.EffectiveWeight()
	}
	return sum * r.EffectiveWeight()
}

// availableLeafWeights sums the weights of every condition leaf whose
// indicator is present; it is the full score All and Any pay out.
func availableLeafWeights(rules []Rule, snap *indicator.Snapshot) float64 {
	var sum float64
	for i := range rules {
		r := &rules[i]
		if r.Type == TypeCondition {
			if _, ok := snap.Field(r.Condition.Indicator); ok {
				sum += r.EffectiveWeight()
			}
			continue
		}
		sum += availableLeafWeights(r.Children, snap)
	}
	return sum
}
