package coalescent

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/model"
	"github.com/mpjuers/transmission/internal/params"
)

// Runner binds the per-analysis constants (layout, host estimates, relative
// migration matrix, replicate count) so a single simulation call needs only
// a parameter triple and a seed. It is a plain value with no captured
// mutable state, making it the unit of parallel dispatch.
type Runner struct {
	// Engine is the coalescent sampler; nil selects the built-in engine.
	Engine Engine
	Layout model.PopulationLayout
	Host   model.HostEstimates
	// Migration is an optional relative migration matrix; nil selects the
	// uniform island model.
	Migration     *mat.Dense
	NumReplicates int
	Options       Options
}

func (r Runner) Validate() error {
	if err := r.Layout.Validate(); err != nil {
		return err
	}
	if err := r.Host.Validate(); err != nil {
		return err
	}
	if r.NumReplicates < 1 {
		return fmt.Errorf("%w: at least one replicate is required, got %d", model.ErrValidation, r.NumReplicates)
	}
	return r.Options.Validate()
}

// Simulate maps the parameters through the transform and migration builder,
// then calls the engine. Engine failures propagate unchanged apart from
// being tagged with the engine error kind; there is no retry.
func (r Runner) Simulate(ctx context.Context, p model.ParameterTriple, seed int64) (Batch, params.Derived, error) {
	if err := r.Validate(); err != nil {
		return Batch{}, params.Derived{}, err
	}

	derived, err := params.Transform(p, r.Host)
	if err != nil {
		return Batch{}, params.Derived{}, err
	}
	migration, err := params.BuildMigration(r.Layout.NumPopulations(), derived.SymbiontNm, relOrNil(r.Migration))
	if err != nil {
		return Batch{}, params.Derived{}, err
	}

	engine := r.Engine
	if engine == nil {
		engine = BuiltinEngine{}
	}
	batch, err := engine.Simulate(ctx, Request{
		EffectiveSize: derived.EffectiveSize,
		Migration:     migration,
		Layout:        r.Layout,
		MutationRate:  derived.MutationRate,
		NumReplicates: r.NumReplicates,
		Seed:          seed,
		Options:       r.Options,
	})
	if err != nil {
		return Batch{}, params.Derived{}, tagEngineError(err)
	}
	return batch, derived, nil
}

// relOrNil avoids handing BuildMigration a typed-nil mat.Matrix.
func relOrNil(m *mat.Dense) mat.Matrix {
	if m == nil {
		return nil
	}
	return m
}

func tagEngineError(err error) error {
	if errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrNumerical) ||
		errors.Is(err, model.ErrEngine) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrEngine, err)
}
