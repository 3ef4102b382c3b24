// Package coalescent defines the boundary to the coalescent simulation
// engine and provides a built-in structured-coalescent implementation with
// island-model migration and infinite-sites mutation.
package coalescent

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/model"
)

// Site records one segregating site: Derived[k] reports whether sampled
// chromosome k carries the derived allele.
type Site struct {
	Derived []bool `json:"derived"`
}

// Replicate is one independent simulated genealogy reduced to its
// segregating sites.
type Replicate struct {
	Sites []Site `json:"sites"`
}

// Batch is the outcome of one engine call: NumReplicates independent
// replicates under a shared population layout.
type Batch struct {
	Layout     model.PopulationLayout `json:"layout"`
	Replicates []Replicate            `json:"replicates"`
}

// Options enumerates the recognized engine tunables. Anything the engine
// honors is named here; there is no open-ended passthrough.
type Options struct {
	// TimeLimit caps the coalescent time per replicate, in coalescent time
	// units. A replicate that fails to reach its common ancestor within the
	// limit is an engine error. Zero means no cap.
	TimeLimit float64 `json:"time_limit,omitempty"`
	// MaxSegregatingSites rejects a replicate whose mutation count exceeds
	// the cap, guarding against runaway mutation rates. Zero means
	// unlimited.
	MaxSegregatingSites int `json:"max_segregating_sites,omitempty"`
}

func (o Options) Validate() error {
	if o.TimeLimit < 0 {
		return fmt.Errorf("%w: time limit must be >= 0, got %g", model.ErrValidation, o.TimeLimit)
	}
	if o.MaxSegregatingSites < 0 {
		return fmt.Errorf("%w: max segregating sites must be >= 0, got %d", model.ErrValidation, o.MaxSegregatingSites)
	}
	return nil
}

// Request carries every input of one engine call. Replicates are independent
// draws; the call is deterministic given Seed.
type Request struct {
	EffectiveSize float64
	Migration     *mat.Dense
	Layout        model.PopulationLayout
	MutationRate  float64
	NumReplicates int
	Seed          int64
	Options       Options
}

func (r Request) Validate() error {
	if r.EffectiveSize <= 0 {
		return fmt.Errorf("%w: effective size must be > 0, got %g", model.ErrValidation, r.EffectiveSize)
	}
	if err := r.Layout.Validate(); err != nil {
		return err
	}
	if r.Migration == nil {
		return fmt.Errorf("%w: migration matrix is required", model.ErrValidation)
	}
	rows, cols := r.Migration.Dims()
	if rows != cols || rows != r.Layout.NumPopulations() {
		return fmt.Errorf("%w: migration matrix is %dx%d for %d populations",
			model.ErrValidation, rows, cols, r.Layout.NumPopulations())
	}
	if r.MutationRate < 0 {
		return fmt.Errorf("%w: mutation rate must be >= 0, got %g", model.ErrValidation, r.MutationRate)
	}
	if r.NumReplicates < 1 {
		return fmt.Errorf("%w: at least one replicate is required, got %d", model.ErrValidation, r.NumReplicates)
	}
	return r.Options.Validate()
}

// Engine is the black-box sampler boundary. Implementations must be safe for
// concurrent Simulate calls and deterministic given the request seed.
type Engine interface {
	Simulate(ctx context.Context, req Request) (Batch, error)
}
