package garp

import (
	"errors"

	"nichemodeller/internal/evo"
	"nichemodeller/internal/sample"
)

var ErrRuleSetFull = errors.New("rule set is full")

// RuleSet is a bounded, ordered collection of rules. Insert keeps it sorted
// by descending performance.
type RuleSet struct {
	capacity int
	rules    []Rule
}

func NewRuleSet(capacity int) *RuleSet {
	return &RuleSet{capacity: capacity, rules: make([]Rule, 0, capacity)}
}

func (rs *RuleSet) Len() int { return len(rs.rules) }

func (rs *RuleSet) At(i int) Rule {
	if i < 0 || i >= len(rs.rules) {
		return nil
	}
	return rs.rules[i]
}

func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

func (rs *RuleSet) Clear() {
	rs.Trim(0)
}

// Trim drops every rule past the first n.
func (rs *RuleSet) Trim(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(rs.rules) {
		return
	}
	clear(rs.rules[n:])
	rs.rules = rs.rules[:n]
}

// Filter removes the rules whose performance at index is below threshold.
func (rs *RuleSet) Filter(index PerfIndex, threshold float64) {
	kept := rs.rules[:0]
	for _, r := range rs.rules {
		if r.Performance(index) >= threshold {
			kept = append(kept, r)
		}
	}
	clear(rs.rules[len(kept):])
	rs.rules = kept
}

// Insert places rule before the first rule that performs worse at index and
// returns its position.
func (rs *RuleSet) Insert(index PerfIndex, rule Rule) (int, error) {
	if len(rs.rules) >= rs.capacity {
		return -1, ErrRuleSetFull
	}
	perf := rule.Performance(index)
	i := 0
	for ; i < len(rs.rules); i++ {
		if perf > rs.rules[i].Performance(index) {
			break
		}
	}
	rs.rules = append(rs.rules, nil)
	copy(rs.rules[i+1:], rs.rules[i:])
	rs.rules[i] = rule
	return i, nil
}

// Add appends rule at the end.
func (rs *RuleSet) Add(rule Rule) error {
	if rule == nil {
		return ErrInvalidRuleState
	}
	if len(rs.rules) >= rs.capacity {
		return ErrRuleSetFull
	}
	rs.rules = append(rs.rules, rule)
	return nil
}

func (rs *RuleSet) Remove(i int) bool {
	if i < 0 || i >= len(rs.rules) {
		return false
	}
	copy(rs.rules[i:], rs.rules[i+1:])
	rs.rules[len(rs.rules)-1] = nil
	rs.rules = rs.rules[:len(rs.rules)-1]
	return true
}

// FindSimilar returns the index of the first rule similar to rule, or -1.
func (rs *RuleSet) FindSimilar(rule Rule) int {
	for i, r := range rs.rules {
		if r.Similar(rule) {
			return i
		}
	}
	return -1
}

// Value is the prediction of the first rule that applies to s, 0 when none
// does.
func (rs *RuleSet) Value(s sample.Sample) float64 {
	for _, r := range rs.rules {
		if r.Applies(s) {
			return r.Prediction()
		}
	}
	return 0
}

// Ranked pairs every rule with its performance at index, in set order.
func (rs *RuleSet) Ranked(index PerfIndex) []evo.Scored[Rule] {
	out := make([]evo.Scored[Rule], len(rs.rules))
	for i, r := range rs.rules {
		out[i] = evo.Scored[Rule]{Item: r, Fitness: r.Performance(index)}
	}
	return out
}

func (rs *RuleSet) PerformanceSummary(index PerfIndex) (best, worst, avg float64) {
	return evo.Summary(rs.Ranked(index))
}
