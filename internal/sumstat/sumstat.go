// Package sumstat reduces a batch of simulated replicates to the fixed set
// of population-genetic summary statistics: Fst mean/sd, three nucleotide
// diversity estimators, Watterson's theta, and the segregating-site count.
package sumstat

import (
	"fmt"

	"github.com/mpjuers/transmission/internal/model"
)

// HOpts tunes the heterozygosity computations shared by the Fst and pi_h
// statistics.
type HOpts struct {
	// Biased skips the n/(n-1) small-sample correction.
	Biased bool
}

// Request selects which statistics to compute and how to shape the output.
type Request struct {
	Stats []model.StatName
	// KeepPopulations restricts the computation to a subset of population
	// indices; nil keeps all.
	KeepPopulations []int
	// AverageReps collapses the batch to a single row of across-replicate
	// summaries; otherwise one row per replicate is returned.
	AverageReps bool
	HOpts       HOpts
}

func (r Request) validate(npop int) error {
	if err := model.ValidateStats(r.Stats); err != nil {
		return err
	}
	seen := make(map[int]struct{}, len(r.KeepPopulations))
	for _, pop := range r.KeepPopulations {
		if pop < 0 || pop >= npop {
			return fmt.Errorf("%w: keep population %d out of range [0, %d)", model.ErrValidation, pop, npop)
		}
		if _, dup := seen[pop]; dup {
			return fmt.Errorf("%w: duplicate keep population %d", model.ErrValidation, pop)
		}
		seen[pop] = struct{}{}
	}
	if len(seen) == 1 {
		for _, name := range r.Stats {
			if name == model.StatFstMean || name == model.StatFstSD {
				return fmt.Errorf("%w: Fst requires at least two kept populations", model.ErrValidation)
			}
		}
	}
	return nil
}

func (r Request) wantsFst() bool {
	for _, name := range r.Stats {
		if name == model.StatFstMean || name == model.StatFstSD {
			return true
		}
	}
	return false
}
