package sumstat

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mpjuers/transmission/internal/coalescent"
)

// keptView indexes the sampled chromosomes that survive the population
// filter. samples holds global chromosome indices grouped by kept
// population; popOf[k] is the position of sample k's population within the
// kept set.
type keptView struct {
	samples  []int
	popOf    []int
	popSizes []int
	total    int
}

func newKeptView(batch coalescent.Batch, keep []int) keptView {
	npop := batch.Layout.NumPopulations()
	keepSet := make(map[int]bool, npop)
	if len(keep) == 0 {
		for p := 0; p < npop; p++ {
			keepSet[p] = true
		}
	} else {
		for _, p := range keep {
			keepSet[p] = true
		}
	}

	view := keptView{}
	popIndex := make(map[int]int)
	for sample, pop := range batch.Layout.Assignments() {
		if !keepSet[pop] {
			continue
		}
		idx, ok := popIndex[pop]
		if !ok {
			idx = len(view.popSizes)
			popIndex[pop] = idx
			view.popSizes = append(view.popSizes, 0)
		}
		view.samples = append(view.samples, sample)
		view.popOf = append(view.popOf, idx)
		view.popSizes[idx]++
		view.total++
	}
	return view
}

// siteCounts is one site's derived-allele tally restricted to the kept
// samples: the pooled count plus a per-kept-population breakdown.
type siteCounts struct {
	derived    int
	derivedPop []int
}

// segregatingCounts tallies each site and drops the ones monomorphic within
// the kept samples.
func segregatingCounts(rep coalescent.Replicate, view keptView) []siteCounts {
	var out []siteCounts
	for _, site := range rep.Sites {
		counts := siteCounts{derivedPop: make([]int, len(view.popSizes))}
		for i, sample := range view.samples {
			if site.Derived[sample] {
				counts.derived++
				counts.derivedPop[view.popOf[i]]++
			}
		}
		if counts.derived == 0 || counts.derived == view.total {
			continue
		}
		out = append(out, counts)
	}
	return out
}

// heterozygosity returns the expected heterozygosity 2pq for derived count j
// among n samples, with the n/(n-1) correction unless biased.
func heterozygosity(j, n int, biased bool) float64 {
	if n < 1 {
		return 0
	}
	p := float64(j) / float64(n)
	h := 2 * p * (1 - p)
	if !biased && n > 1 {
		h *= float64(n) / float64(n-1)
	}
	return h
}

// piTajima is the mean number of pairwise differences,
// sum over sites of 2j(n-j)/(n(n-1)).
func piTajima(sites []siteCounts, n int) float64 {
	if n < 2 {
		return 0
	}
	sum := 0.0
	for _, s := range sites {
		sum += float64(2*s.derived*(n-s.derived)) / float64(n*(n-1))
	}
	return sum
}

// piNei is Nei's diversity, sum over sites of 2pq without sample-size
// correction.
func piNei(sites []siteCounts, n int) float64 {
	sum := 0.0
	for _, s := range sites {
		sum += heterozygosity(s.derived, n, true)
	}
	return sum
}

// piH is the mean per-site expected heterozygosity over segregating sites,
// zero when nothing segregates.
func piH(sites []siteCounts, n int, opts HOpts) float64 {
	if len(sites) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range sites {
		sum += heterozygosity(s.derived, n, opts.Biased)
	}
	return sum / float64(len(sites))
}

// thetaW is Watterson's estimator S/a_n.
func thetaW(sites []siteCounts, n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(len(sites)) / wattersonA(n)
}

func wattersonA(n int) float64 {
	a := 0.0
	for i := 1; i < n; i++ {
		a += 1 / float64(i)
	}
	return a
}

// fstSites computes per-site Fst = (Ht - Hs)/Ht, where Ht is the pooled
// heterozygosity and Hs the sample-size-weighted mean of per-population
// heterozygosities. Sites monomorphic in the kept samples were already
// dropped, so Ht > 0 for every remaining site. Returns the site-wise mean
// and standard deviation for one replicate; NaN mean when no site is usable.
func fstSites(sites []siteCounts, view keptView, opts HOpts) (mean, sd float64) {
	values := make([]float64, 0, len(sites))
	for _, s := range sites {
		ht := heterozygosity(s.derived, view.total, opts.Biased)
		if ht <= 0 {
			continue
		}
		hs := 0.0
		for k, nk := range view.popSizes {
			hs += float64(nk) / float64(view.total) * heterozygosity(s.derivedPop[k], nk, opts.Biased)
		}
		values = append(values, (ht-hs)/ht)
	}
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], 0
	}
	return stat.Mean(values, nil), stat.StdDev(values, nil)
}
