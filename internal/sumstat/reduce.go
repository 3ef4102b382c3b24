package sumstat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mpjuers/transmission/internal/coalescent"
	"github.com/mpjuers/transmission/internal/model"
)

// perReplicate holds every intermediate a replicate can contribute; only the
// requested ones are filled in.
type perReplicate struct {
	fstMean  float64
	fstSD    float64
	piH      float64
	piNei    float64
	piTajima float64
	thetaW   float64
	numSites float64
}

// Reduce computes the requested statistics over a batch of replicates and
// appends the originating parameters as trailing columns. With AverageReps
// set, a single row of across-replicate summaries is returned; otherwise one
// row per replicate. A NaN in any intermediate is a data-integrity failure
// and aborts the reduction with the offending replicate identified.
func Reduce(batch coalescent.Batch, p model.ParameterTriple, req Request) ([]model.StatRow, error) {
	if err := batch.Layout.Validate(); err != nil {
		return nil, err
	}
	if err := req.validate(batch.Layout.NumPopulations()); err != nil {
		return nil, err
	}
	if len(batch.Replicates) == 0 {
		return nil, fmt.Errorf("%w: batch has no replicates", model.ErrValidation)
	}

	view := newKeptView(batch, req.KeepPopulations)
	if view.total < 2 {
		return nil, fmt.Errorf("%w: fewer than 2 samples survive the population filter", model.ErrValidation)
	}

	wantFst := req.wantsFst()
	reps := make([]perReplicate, len(batch.Replicates))
	for i, rep := range batch.Replicates {
		sites := segregatingCounts(rep, view)
		if wantFst {
			reps[i].fstMean, reps[i].fstSD = fstSites(sites, view, req.HOpts)
			if math.IsNaN(reps[i].fstMean) || math.IsNaN(reps[i].fstSD) {
				return nil, fmt.Errorf("%w: Fst undefined in replicate %d (no usable polymorphic site) for eta=%g tau=%g rho=%g",
					model.ErrDataIntegrity, i, p.Eta, p.Tau, p.Rho)
			}
		}
		reps[i].piH = piH(sites, view.total, req.HOpts)
		reps[i].piNei = piNei(sites, view.total)
		reps[i].piTajima = piTajima(sites, view.total)
		reps[i].thetaW = thetaW(sites, view.total)
		reps[i].numSites = float64(len(sites))
	}

	rows := assembleRows(reps, p, req)
	for _, row := range rows {
		for j, v := range row.Values {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("%w: NaN %s for eta=%g tau=%g rho=%g",
					model.ErrDataIntegrity, req.Stats[j], p.Eta, p.Tau, p.Rho)
			}
		}
	}
	return rows, nil
}

func assembleRows(reps []perReplicate, p model.ParameterTriple, req Request) []model.StatRow {
	if !req.AverageReps {
		rows := make([]model.StatRow, len(reps))
		for i, rep := range reps {
			values := make([]float64, len(req.Stats))
			for j, name := range req.Stats {
				values[j] = rep.value(name)
			}
			rows[i] = model.StatRow{Values: values, Params: p}
		}
		return rows
	}

	values := make([]float64, len(req.Stats))
	for j, name := range req.Stats {
		if name == model.StatFstSD {
			// Spread of the per-replicate Fst means, not a mean of spreads.
			values[j] = acrossRepsSD(reps)
			continue
		}
		sum := 0.0
		for _, rep := range reps {
			sum += rep.value(name)
		}
		values[j] = sum / float64(len(reps))
	}
	return []model.StatRow{{Values: values, Params: p}}
}

func acrossRepsSD(reps []perReplicate) float64 {
	if len(reps) < 2 {
		return 0
	}
	means := make([]float64, len(reps))
	for i, rep := range reps {
		means[i] = rep.fstMean
	}
	return stat.StdDev(means, nil)
}

func (r perReplicate) value(name model.StatName) float64 {
	switch name {
	case model.StatFstMean:
		return r.fstMean
	case model.StatFstSD:
		return r.fstSD
	case model.StatPiH:
		return r.piH
	case model.StatPiNei:
		return r.piNei
	case model.StatPiTajima:
		return r.piTajima
	case model.StatThetaW:
		return r.thetaW
	case model.StatNumSites:
		return r.numSites
	}
	return math.NaN()
}
