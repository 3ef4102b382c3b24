// Package abc implements tolerance-based Approximate Bayesian Computation:
// rejection sampling against a training table with optional local-linear
// regression adjustment of the accepted parameters.
package abc

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mpjuers/transmission/internal/model"
)

// Config is one estimation problem: an observed target vector, the training
// table to compare against, and the acceptance rule.
type Config struct {
	Target model.SummaryStatVector
	Table  *model.TrainingTable
	// Tolerance is the accepted fraction in (0, 1]; the round(tol*M) closest
	// rows are kept, never fewer than one.
	Tolerance float64
	// Radius switches to absolute acceptance: every row within the given
	// standardized distance is kept, falling back to the single nearest row
	// when none qualifies. Mutually exclusive with Tolerance.
	Radius float64
	// Adjust enables the local-linear regression adjustment. With it off,
	// adjusted values equal the raw accepted values exactly.
	Adjust bool
}

// Result exposes the accepted draws plus diagnostics. Distances are
// Euclidean on statistics standardized by their empirical standard deviation
// across the whole training table; that normalization choice directly
// shapes the acceptance region.
type Result struct {
	tolerance float64
	radius    float64
	adjusted  bool
	draws     []model.PosteriorDraw
	// zeroVariance lists statistics whose table column had no spread; they
	// contribute nothing to distances.
	zeroVariance []model.StatName
}

// Moments is a per-parameter acceptance-region summary.
type Moments struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Summary reports the acceptance diagnostics for raw and adjusted values.
// Exactly one of Tolerance and Radius is non-zero, identifying the
// acceptance rule that was applied.
type Summary struct {
	Accepted  int                `json:"accepted"`
	Tolerance float64            `json:"tolerance"`
	Radius    float64            `json:"radius,omitempty"`
	Raw       map[string]Moments `json:"raw"`
	Adjusted  map[string]Moments `json:"adjusted"`
}

// Estimate runs rejection and, if configured, regression adjustment.
func Estimate(cfg Config) (*Result, error) {
	table := cfg.Table
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: training table is empty", model.ErrValidation)
	}
	if cfg.Radius < 0 {
		return nil, fmt.Errorf("%w: radius must be >= 0, got %g", model.ErrValidation, cfg.Radius)
	}
	if cfg.Radius == 0 && (cfg.Tolerance <= 0 || cfg.Tolerance > 1) {
		return nil, fmt.Errorf("%w: tolerance must be in (0, 1], got %g", model.ErrValidation, cfg.Tolerance)
	}
	if cfg.Radius > 0 && cfg.Tolerance != 0 {
		return nil, fmt.Errorf("%w: tolerance and radius are mutually exclusive", model.ErrValidation)
	}

	target, err := alignTarget(cfg.Target, table.Stats)
	if err != nil {
		return nil, err
	}

	sds, zeroVariance := columnSpread(table)
	distances := standardizedDistances(table, target, sds)

	order := make([]int, len(distances))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return distances[order[a]] < distances[order[b]] })

	var accepted []int
	if cfg.Radius > 0 {
		for _, idx := range order {
			if distances[idx] <= cfg.Radius {
				accepted = append(accepted, idx)
			}
		}
		if len(accepted) == 0 {
			accepted = order[:1]
		}
	} else {
		k := int(math.Round(cfg.Tolerance * float64(len(order))))
		if k < 1 {
			k = 1
		}
		if k > len(order) {
			k = len(order)
		}
		accepted = order[:k]
	}

	draws := make([]model.PosteriorDraw, len(accepted))
	cutoff := distances[accepted[len(accepted)-1]]
	for i, idx := range accepted {
		d := distances[idx]
		w := 1.0
		if cutoff > 0 {
			w = 1 - (d/cutoff)*(d/cutoff)
		}
		draws[i] = model.PosteriorDraw{
			Params:   table.Rows[idx].Params,
			Adjusted: table.Rows[idx].Params,
			Distance: d,
			Weight:   w,
		}
	}

	if cfg.Adjust {
		if err := adjustDraws(draws, table, accepted, target, sds); err != nil {
			return nil, err
		}
	}

	return &Result{
		tolerance:    cfg.Tolerance,
		radius:       cfg.Radius,
		adjusted:     cfg.Adjust,
		draws:        draws,
		zeroVariance: zeroVariance,
	}, nil
}

// alignTarget checks the name sets match and reorders the target values into
// table column order. Matching is by name, never by position.
func alignTarget(target model.SummaryStatVector, stats []model.StatName) ([]float64, error) {
	if len(target.Names) != len(target.Values) {
		return nil, fmt.Errorf("%w: target has %d names for %d values", model.ErrValidation, len(target.Names), len(target.Values))
	}
	if len(target.Names) != len(stats) {
		return nil, fmt.Errorf("%w: target has %d statistics, table has %d", model.ErrValidation, len(target.Names), len(stats))
	}
	out := make([]float64, len(stats))
	for i, name := range stats {
		v, ok := target.Value(name)
		if !ok {
			return nil, fmt.Errorf("%w: target is missing statistic %q", model.ErrValidation, name)
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: target statistic %q is NaN", model.ErrDataIntegrity, name)
		}
		out[i] = v
	}
	return out, nil
}

func columnSpread(table *model.TrainingTable) ([]float64, []model.StatName) {
	sds := make([]float64, len(table.Stats))
	var zero []model.StatName
	column := make([]float64, len(table.Rows))
	for j, name := range table.Stats {
		for i, row := range table.Rows {
			column[i] = row.Values[j]
		}
		sd := 0.0
		if len(column) > 1 {
			sd = stat.StdDev(column, nil)
		}
		if sd > 0 {
			sds[j] = sd
		} else {
			sds[j] = 0
			zero = append(zero, name)
		}
	}
	return sds, zero
}

func standardizedDistances(table *model.TrainingTable, target, sds []float64) []float64 {
	out := make([]float64, len(table.Rows))
	for i, row := range table.Rows {
		sum := 0.0
		for j, sd := range sds {
			if sd == 0 {
				continue
			}
			d := (row.Values[j] - target[j]) / sd
			sum += d * d
		}
		out[i] = math.Sqrt(sum)
	}
	return out
}

// adjustDraws fits, per parameter, a weighted local-linear regression of the
// parameter on the standardized statistic offsets within the accepted set,
// then shifts each accepted value by its fitted systematic component:
// adj_i = value_i - beta^T (s_i - target).
func adjustDraws(draws []model.PosteriorDraw, table *model.TrainingTable, accepted []int, target, sds []float64) error {
	var predictors []int
	for j, sd := range sds {
		if sd > 0 {
			predictors = append(predictors, j)
		}
	}
	if len(predictors) == 0 {
		return nil
	}
	if len(accepted) < len(predictors)+1 {
		return fmt.Errorf("%w: %d accepted draws cannot support regression on %d statistics",
			model.ErrNumerical, len(accepted), len(predictors))
	}

	rows := len(accepted)
	cols := len(predictors) + 1
	x := mat.NewDense(rows, cols, nil)
	for i, idx := range accepted {
		sw := math.Sqrt(draws[i].Weight)
		x.Set(i, 0, sw)
		for c, j := range predictors {
			x.Set(i, c+1, sw*(table.Rows[idx].Values[j]-target[j])/sds[j])
		}
	}

	for _, param := range []string{"eta", "tau", "rho"} {
		y := mat.NewVecDense(rows, nil)
		for i, idx := range accepted {
			y.SetVec(i, math.Sqrt(draws[i].Weight)*paramValue(table.Rows[idx].Params, param))
		}
		var beta mat.VecDense
		if err := beta.SolveVec(x, y); err != nil {
			return fmt.Errorf("%w: regression adjustment for %s: %v", model.ErrNumerical, param, err)
		}
		for i, idx := range accepted {
			shift := 0.0
			for c, j := range predictors {
				shift += beta.AtVec(c+1) * (table.Rows[idx].Values[j] - target[j]) / sds[j]
			}
			setParamValue(&draws[i].Adjusted, param, paramValue(table.Rows[idx].Params, param)-shift)
		}
	}
	return nil
}

func paramValue(p model.ParameterTriple, name string) float64 {
	switch name {
	case "eta":
		return p.Eta
	case "tau":
		return p.Tau
	}
	return p.Rho
}

func setParamValue(p *model.ParameterTriple, name string, v float64) {
	switch name {
	case "eta":
		p.Eta = v
	case "tau":
		p.Tau = v
	default:
		p.Rho = v
	}
}

// Values returns the raw accepted parameter triples in distance order.
func (r *Result) Values() []model.ParameterTriple {
	out := make([]model.ParameterTriple, len(r.draws))
	for i, d := range r.draws {
		out[i] = d.Params
	}
	return out
}

// AdjValues returns the regression-adjusted triples; identical to Values
// when adjustment was disabled.
func (r *Result) AdjValues() []model.ParameterTriple {
	out := make([]model.ParameterTriple, len(r.draws))
	for i, d := range r.draws {
		out[i] = d.Adjusted
	}
	return out
}

// ZeroVarianceStats lists statistics excluded from the distance for lack of
// spread in the training table.
func (r *Result) ZeroVarianceStats() []model.StatName {
	return r.zeroVariance
}

// Sample freezes the result into its persistable form.
func (r *Result) Sample() model.PosteriorSample {
	draws := make([]model.PosteriorDraw, len(r.draws))
	copy(draws, r.draws)
	return model.PosteriorSample{Tolerance: r.tolerance, Adjusted: r.adjusted, Draws: draws}
}

// Summary reports acceptance count, tolerance, and per-parameter moments for
// raw and adjusted values.
func (r *Result) Summary() Summary {
	raw := make(map[string]Moments, 3)
	adjusted := make(map[string]Moments, 3)
	for _, name := range []string{"eta", "tau", "rho"} {
		raw[name] = moments(r.draws, name, false)
		adjusted[name] = moments(r.draws, name, true)
	}
	return Summary{
		Accepted:  len(r.draws),
		Tolerance: r.tolerance,
		Radius:    r.radius,
		Raw:       raw,
		Adjusted:  adjusted,
	}
}

func moments(draws []model.PosteriorDraw, name string, adjusted bool) Moments {
	values := make([]float64, len(draws))
	for i, d := range draws {
		p := d.Params
		if adjusted {
			p = d.Adjusted
		}
		values[i] = paramValue(p, name)
	}
	m := Moments{Mean: stat.Mean(values, nil)}
	if len(values) > 1 {
		m.Variance = stat.Variance(values, nil)
	}
	return m
}
