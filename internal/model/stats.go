package model

import "fmt"

// StatName identifies one of the fixed set of summary statistics.
type StatName string

const (
	StatFstMean  StatName = "fst_mean"
	StatFstSD    StatName = "fst_sd"
	StatPiH      StatName = "pi_h"
	StatPiNei    StatName = "pi_nei"
	StatPiTajima StatName = "pi_tajima"
	StatThetaW   StatName = "theta_w"
	StatNumSites StatName = "num_sites"
)

// AllStats lists every recognized statistic in canonical order.
var AllStats = []StatName{
	StatFstMean,
	StatFstSD,
	StatPiH,
	StatPiNei,
	StatPiTajima,
	StatThetaW,
	StatNumSites,
}

func KnownStat(name StatName) bool {
	for _, s := range AllStats {
		if s == name {
			return true
		}
	}
	return false
}

// ValidateStats checks that names is a non-empty list of recognized,
// non-repeating statistics.
func ValidateStats(names []StatName) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: at least one statistic is required", ErrValidation)
	}
	seen := make(map[StatName]struct{}, len(names))
	for _, name := range names {
		if !KnownStat(name) {
			return fmt.Errorf("%w: unknown statistic %q", ErrValidation, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate statistic %q", ErrValidation, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ParseStats converts string names into StatNames, validating each.
func ParseStats(names []string) ([]StatName, error) {
	out := make([]StatName, len(names))
	for i, name := range names {
		out[i] = StatName(name)
	}
	if err := ValidateStats(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SummaryStatVector pairs statistic names with their computed values for one
// simulation outcome. Names and Values are parallel.
type SummaryStatVector struct {
	Names  []StatName `json:"names"`
	Values []float64  `json:"values"`
}

func NewSummaryStatVector(names []StatName, values []float64) (SummaryStatVector, error) {
	if err := ValidateStats(names); err != nil {
		return SummaryStatVector{}, err
	}
	if len(names) != len(values) {
		return SummaryStatVector{}, fmt.Errorf("%w: %d names for %d values", ErrValidation, len(names), len(values))
	}
	return SummaryStatVector{Names: names, Values: values}, nil
}

// Value returns the statistic by name.
func (v SummaryStatVector) Value(name StatName) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}
