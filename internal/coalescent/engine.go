package coalescent

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/mpjuers/transmission/internal/model"
)

// BuiltinEngine is a structured-coalescent sampler: lineages coalesce
// pairwise within populations at rate 1/(2*Ne) per pair and migrate between
// populations at half the scaled matrix rate per lineage. Mutations fall on
// branches as a Poisson process under the infinite-sites model, so every
// mutation is one segregating site.
type BuiltinEngine struct{}

func NewEngine() BuiltinEngine {
	return BuiltinEngine{}
}

func (BuiltinEngine) Simulate(ctx context.Context, req Request) (Batch, error) {
	if err := req.Validate(); err != nil {
		return Batch{}, err
	}

	// Replicate seeds come from a master stream so replicate r is
	// reproducible without rerunning replicates 0..r-1 logic changes.
	master := rand.New(rand.NewSource(req.Seed))
	seeds := make([]int64, req.NumReplicates)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	replicates := make([]Replicate, 0, req.NumReplicates)
	for i, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		rep, err := simulateReplicate(rand.New(rand.NewSource(seed)), req)
		if err != nil {
			return Batch{}, fmt.Errorf("replicate %d: %w", i, err)
		}
		replicates = append(replicates, rep)
	}
	return Batch{Layout: req.Layout, Replicates: replicates}, nil
}

type lineage struct {
	pop     int
	samples []int
}

func simulateReplicate(rng *rand.Rand, req Request) (Replicate, error) {
	assignments := req.Layout.Assignments()
	lineages := make([]lineage, len(assignments))
	for i, pop := range assignments {
		lineages[i] = lineage{pop: pop, samples: []int{i}}
	}
	npop := req.Layout.NumPopulations()
	total := len(assignments)

	var sites []Site
	elapsed := 0.0
	for len(lineages) > 1 {
		counts := make([]int, npop)
		for _, l := range lineages {
			counts[l.pop]++
		}

		coalTotal := 0.0
		for _, k := range counts {
			coalTotal += float64(k*(k-1)) / 2 / (2 * req.EffectiveSize)
		}
		migTotal := 0.0
		for _, l := range lineages {
			for j := 0; j < npop; j++ {
				if j != l.pop {
					migTotal += req.Migration.At(l.pop, j) / 2
				}
			}
		}
		rateTotal := coalTotal + migTotal
		if rateTotal <= 0 {
			return Replicate{}, fmt.Errorf("%w: lineages cannot reach a common ancestor (no coalescence or migration possible)", model.ErrEngine)
		}

		dt := rng.ExpFloat64() / rateTotal
		elapsed += dt
		if req.Options.TimeLimit > 0 && elapsed > req.Options.TimeLimit {
			return Replicate{}, fmt.Errorf("%w: coalescence exceeded time limit %g", model.ErrEngine, req.Options.TimeLimit)
		}

		for _, l := range lineages {
			for m := poisson(rng, req.MutationRate*dt); m > 0; m-- {
				sites = append(sites, newSite(total, l.samples))
			}
		}
		if req.Options.MaxSegregatingSites > 0 && len(sites) > req.Options.MaxSegregatingSites {
			return Replicate{}, fmt.Errorf("%w: segregating sites exceeded cap %d", model.ErrEngine, req.Options.MaxSegregatingSites)
		}

		u := rng.Float64() * rateTotal
		if u < coalTotal {
			lineages = coalesceEvent(rng, lineages, counts, req.EffectiveSize, u)
		} else {
			migrateEvent(lineages, req, u-coalTotal)
		}
	}
	return Replicate{Sites: sites}, nil
}

func newSite(total int, carriers []int) Site {
	derived := make([]bool, total)
	for _, s := range carriers {
		derived[s] = true
	}
	return Site{Derived: derived}
}

func coalesceEvent(rng *rand.Rand, lineages []lineage, counts []int, ne float64, u float64) []lineage {
	pop := -1
	for p, k := range counts {
		if k < 2 {
			continue
		}
		rate := float64(k*(k-1)) / 2 / (2 * ne)
		if u < rate {
			pop = p
			break
		}
		u -= rate
	}
	if pop < 0 {
		// Floating-point slack; fall back to the last coalescible population.
		for p := len(counts) - 1; p >= 0; p-- {
			if counts[p] >= 2 {
				pop = p
				break
			}
		}
	}

	members := make([]int, 0, counts[pop])
	for i, l := range lineages {
		if l.pop == pop {
			members = append(members, i)
		}
	}
	a := rng.Intn(len(members))
	b := rng.Intn(len(members) - 1)
	if b >= a {
		b++
	}
	i, j := members[a], members[b]
	if j < i {
		i, j = j, i
	}

	merged := lineage{pop: pop, samples: append(append([]int(nil), lineages[i].samples...), lineages[j].samples...)}
	lineages[i] = merged
	lineages[j] = lineages[len(lineages)-1]
	return lineages[:len(lineages)-1]
}

func migrateEvent(lineages []lineage, req Request, u float64) {
	npop := req.Layout.NumPopulations()
	for i := range lineages {
		for j := 0; j < npop; j++ {
			if j == lineages[i].pop {
				continue
			}
			rate := req.Migration.At(lineages[i].pop, j) / 2
			if u < rate {
				lineages[i].pop = j
				return
			}
			u -= rate
		}
	}
	// Floating-point slack can land here; move the last migratable lineage.
	for i := len(lineages) - 1; i >= 0; i-- {
		for j := npop - 1; j >= 0; j-- {
			if j != lineages[i].pop && req.Migration.At(lineages[i].pop, j) > 0 {
				lineages[i].pop = j
				return
			}
		}
	}
}

// poissonNormalCutoff is where the product method gives way to the normal
// approximation: exp(-mean) underflows around mean 745, which would make the
// product loop terminate early and bias the draw low.
const poissonNormalCutoff = 500

// poisson draws from a Poisson distribution: Knuth's product method for
// small means, a rounded normal approximation beyond the cutoff.
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	if mean > poissonNormalCutoff {
		k := int(math.Round(mean + math.Sqrt(mean)*rng.NormFloat64()))
		if k < 0 {
			k = 0
		}
		return k
	}
	limit := math.Exp(-mean)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
