package abc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpjuers/transmission/internal/model"
)

func lineTable(t *testing.T, n int) *model.TrainingTable {
	t.Helper()
	table, err := model.NewTrainingTable([]model.StatName{model.StatPiH})
	require.NoError(t, err)
	// eta is an exact linear function of the statistic; tau and rho are
	// constant. The regression adjustment can recover this relation exactly.
	for i := 0; i < n; i++ {
		s := float64(i)
		require.NoError(t, table.Append(model.StatRow{
			Values: []float64{s},
			Params: model.ParameterTriple{Eta: 2 * s, Tau: 0.5, Rho: 0.5},
		}))
	}
	return table
}

func target(t *testing.T, names []model.StatName, values []float64) model.SummaryStatVector {
	t.Helper()
	v, err := model.NewSummaryStatVector(names, values)
	require.NoError(t, err)
	return v
}

func piTarget(t *testing.T, value float64) model.SummaryStatVector {
	return target(t, []model.StatName{model.StatPiH}, []float64{value})
}

func TestEstimateToleranceAcceptanceCount(t *testing.T) {
	table := lineTable(t, 10)

	cases := []struct {
		tol  float64
		want int
	}{
		{1, 10},
		{0.2, 2},
		{0.05, 1}, // round(0.5) clamps up to one
	}
	for _, tc := range cases {
		result, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: tc.tol})
		require.NoError(t, err, "tol=%g", tc.tol)
		assert.Len(t, result.Values(), tc.want, "tol=%g", tc.tol)
	}
}

func TestEstimateAcceptsNearestRowsFirst(t *testing.T) {
	table := lineTable(t, 10)
	result, err := Estimate(Config{Target: piTarget(t, 3), Table: table, Tolerance: 0.2})
	require.NoError(t, err)

	values := result.Values()
	require.Len(t, values, 2)
	assert.Equal(t, 6.0, values[0].Eta, "exact match must rank first")

	sample := result.Sample()
	assert.Equal(t, 0.0, sample.Draws[0].Distance)
	assert.Equal(t, 1.0, sample.Draws[0].Weight, "zero distance takes full weight")
	assert.Equal(t, 0.0, sample.Draws[len(sample.Draws)-1].Weight, "cutoff draw takes zero weight")
}

func TestEstimateRadiusAcceptance(t *testing.T) {
	table := lineTable(t, 10)

	// A huge radius accepts everything.
	result, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Radius: 1e9})
	require.NoError(t, err)
	assert.Len(t, result.Values(), 10)

	// A tiny radius around an exact match accepts just that row.
	result, err = Estimate(Config{Target: piTarget(t, 4), Table: table, Radius: 1e-12})
	require.NoError(t, err)
	require.Len(t, result.Values(), 1)
	assert.Equal(t, 8.0, result.Values()[0].Eta)

	// No row inside the radius falls back to the single nearest row.
	result, err = Estimate(Config{Target: piTarget(t, 3.4), Table: table, Radius: 1e-12})
	require.NoError(t, err)
	require.Len(t, result.Values(), 1)
	assert.Equal(t, 6.0, result.Values()[0].Eta)
}

func TestEstimateSummaryReportsAcceptanceRule(t *testing.T) {
	table := lineTable(t, 10)

	byTolerance, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 0.2})
	require.NoError(t, err)
	summary := byTolerance.Summary()
	assert.Equal(t, 0.2, summary.Tolerance)
	assert.Equal(t, 0.0, summary.Radius)

	byRadius, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Radius: 3.5})
	require.NoError(t, err)
	summary = byRadius.Summary()
	assert.Equal(t, 0.0, summary.Tolerance)
	assert.Equal(t, 3.5, summary.Radius)
}

func TestEstimateConfigValidation(t *testing.T) {
	table := lineTable(t, 10)

	_, err := Estimate(Config{Target: piTarget(t, 0), Table: nil, Tolerance: 0.5})
	assert.True(t, errors.Is(err, model.ErrValidation), "nil table: got %v", err)

	empty, _ := model.NewTrainingTable([]model.StatName{model.StatPiH})
	_, err = Estimate(Config{Target: piTarget(t, 0), Table: empty, Tolerance: 0.5})
	assert.True(t, errors.Is(err, model.ErrValidation), "empty table: got %v", err)

	_, err = Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 0})
	assert.True(t, errors.Is(err, model.ErrValidation), "zero tolerance: got %v", err)

	_, err = Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 1.5})
	assert.True(t, errors.Is(err, model.ErrValidation), "tolerance above one: got %v", err)

	_, err = Estimate(Config{Target: piTarget(t, 0), Table: table, Radius: -1})
	assert.True(t, errors.Is(err, model.ErrValidation), "negative radius: got %v", err)

	_, err = Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 0.5, Radius: 2})
	assert.True(t, errors.Is(err, model.ErrValidation), "tolerance with radius: got %v", err)
}

func TestEstimateTargetAlignment(t *testing.T) {
	table, err := model.NewTrainingTable([]model.StatName{model.StatPiH, model.StatThetaW})
	require.NoError(t, err)
	require.NoError(t, table.Append(model.StatRow{Values: []float64{1, 10}, Params: model.ParameterTriple{Tau: 0.2, Rho: 0.2}}))
	require.NoError(t, table.Append(model.StatRow{Values: []float64{5, 50}, Params: model.ParameterTriple{Tau: 0.8, Rho: 0.8}}))

	// Target names arrive reversed relative to the table columns; matching is
	// by name.
	reversed := target(t,
		[]model.StatName{model.StatThetaW, model.StatPiH},
		[]float64{50, 5},
	)
	result, err := Estimate(Config{Target: reversed, Table: table, Tolerance: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Values(), 1)
	assert.Equal(t, 0.8, result.Values()[0].Tau)

	missing := target(t, []model.StatName{model.StatThetaW, model.StatFstMean}, []float64{1, 2})
	_, err = Estimate(Config{Target: missing, Table: table, Tolerance: 0.5})
	assert.True(t, errors.Is(err, model.ErrValidation), "missing stat: got %v", err)

	short := target(t, []model.StatName{model.StatPiH}, []float64{1})
	_, err = Estimate(Config{Target: short, Table: table, Tolerance: 0.5})
	assert.True(t, errors.Is(err, model.ErrValidation), "dimension mismatch: got %v", err)

	nanTarget := model.SummaryStatVector{
		Names:  []model.StatName{model.StatPiH, model.StatThetaW},
		Values: []float64{math.NaN(), 1},
	}
	_, err = Estimate(Config{Target: nanTarget, Table: table, Tolerance: 0.5})
	assert.True(t, errors.Is(err, model.ErrDataIntegrity), "NaN target: got %v", err)
}

func TestEstimateZeroVarianceColumnIgnored(t *testing.T) {
	table, err := model.NewTrainingTable([]model.StatName{model.StatPiH, model.StatNumSites})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, table.Append(model.StatRow{
			Values: []float64{float64(i), 7}, // num_sites never varies
			Params: model.ParameterTriple{Eta: float64(i)},
		}))
	}

	// A wildly wrong value in the flat column must not affect acceptance.
	tgt := target(t, []model.StatName{model.StatPiH, model.StatNumSites}, []float64{2, 1e6})
	result, err := Estimate(Config{Target: tgt, Table: table, Tolerance: 0.2})
	require.NoError(t, err)
	require.Len(t, result.Values(), 1)
	assert.Equal(t, 2.0, result.Values()[0].Eta)
	assert.Equal(t, []model.StatName{model.StatNumSites}, result.ZeroVarianceStats())
}

func TestEstimateWithoutAdjustmentLeavesValuesUntouched(t *testing.T) {
	table := lineTable(t, 10)
	result, err := Estimate(Config{Target: piTarget(t, 2), Table: table, Tolerance: 0.5})
	require.NoError(t, err)

	raw := result.Values()
	adjusted := result.AdjValues()
	require.Equal(t, len(raw), len(adjusted))
	for i := range raw {
		assert.Equal(t, raw[i], adjusted[i], "draw %d", i)
	}
	assert.False(t, result.Sample().Adjusted)
}

func TestEstimateRegressionAdjustmentRecoversLinearRelation(t *testing.T) {
	table := lineTable(t, 10)
	result, err := Estimate(Config{Target: piTarget(t, 3), Table: table, Tolerance: 1, Adjust: true})
	require.NoError(t, err)

	// eta = 2*pi_h exactly, so every adjusted eta collapses onto the value at
	// the target, 6. Constant parameters stay put.
	for i, p := range result.AdjValues() {
		assert.InDelta(t, 6.0, p.Eta, 1e-8, "draw %d", i)
		assert.InDelta(t, 0.5, p.Tau, 1e-8, "draw %d", i)
		assert.InDelta(t, 0.5, p.Rho, 1e-8, "draw %d", i)
	}
	assert.True(t, result.Sample().Adjusted)
}

func TestEstimateAdjustmentNeedsEnoughDraws(t *testing.T) {
	table := lineTable(t, 10)
	_, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 0.05, Adjust: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNumerical), "got %v", err)
}

func TestEstimateSummaryMoments(t *testing.T) {
	table := lineTable(t, 10)
	result, err := Estimate(Config{Target: piTarget(t, 0), Table: table, Tolerance: 0.2})
	require.NoError(t, err)

	summary := result.Summary()
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 0.2, summary.Tolerance)
	// Accepted rows are pi_h = 0 and 1, so eta = 0 and 2.
	assert.InDelta(t, 1.0, summary.Raw["eta"].Mean, 1e-12)
	assert.InDelta(t, 2.0, summary.Raw["eta"].Variance, 1e-12)
	assert.InDelta(t, 0.5, summary.Raw["tau"].Mean, 1e-12)
	assert.Equal(t, summary.Raw, summary.Adjusted, "without adjustment both views agree")
}
