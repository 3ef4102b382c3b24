package model

import "fmt"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ParameterTriple holds the three co-evolutionary parameters under inference:
// eta, the log10 ratio between symbiont and host mutation rates; tau, the
// vertical transmission fraction; and rho, the female fraction of the
// population.
type ParameterTriple struct {
	Eta float64 `json:"eta"`
	Tau float64 `json:"tau"`
	Rho float64 `json:"rho"`
}

func (p ParameterTriple) Validate() error {
	if p.Tau < 0 || p.Tau > 1 {
		return fmt.Errorf("%w: tau must be in [0, 1], got %g", ErrValidation, p.Tau)
	}
	if p.Rho < 0 || p.Rho > 1 {
		return fmt.Errorf("%w: rho must be in [0, 1], got %g", ErrValidation, p.Rho)
	}
	return nil
}

// HostEstimates carries the host-side quantities estimated once per analysis:
// theta (mutation-scaled population size) and Nm (migration parameter).
type HostEstimates struct {
	Theta float64 `json:"host_theta"`
	Nm    float64 `json:"host_nm"`
}

func (h HostEstimates) Validate() error {
	if h.Theta <= 0 {
		return fmt.Errorf("%w: host theta must be > 0, got %g", ErrValidation, h.Theta)
	}
	if h.Nm <= 0 {
		return fmt.Errorf("%w: host Nm must be > 0, got %g", ErrValidation, h.Nm)
	}
	return nil
}

// PopulationLayout describes how sampled chromosomes are split across
// populations: SampleSizes[i] chromosomes belong to population i.
type PopulationLayout struct {
	SampleSizes []int `json:"sample_sizes"`
}

// UniformLayout builds a layout with nchrom chromosomes sampled from each of
// npop populations.
func UniformLayout(npop, nchrom int) PopulationLayout {
	sizes := make([]int, npop)
	for i := range sizes {
		sizes[i] = nchrom
	}
	return PopulationLayout{SampleSizes: sizes}
}

func (l PopulationLayout) Validate() error {
	if len(l.SampleSizes) < 2 {
		return fmt.Errorf("%w: layout requires at least 2 populations, got %d", ErrValidation, len(l.SampleSizes))
	}
	for i, n := range l.SampleSizes {
		if n < 1 {
			return fmt.Errorf("%w: population %d sample size must be >= 1, got %d", ErrValidation, i, n)
		}
	}
	return nil
}

func (l PopulationLayout) NumPopulations() int {
	return len(l.SampleSizes)
}

func (l PopulationLayout) TotalSamples() int {
	total := 0
	for _, n := range l.SampleSizes {
		total += n
	}
	return total
}

// Assignments expands the layout into a per-chromosome population index,
// chromosome k of population i appearing before chromosome 0 of population i+1.
func (l PopulationLayout) Assignments() []int {
	out := make([]int, 0, l.TotalSamples())
	for pop, n := range l.SampleSizes {
		for i := 0; i < n; i++ {
			out = append(out, pop)
		}
	}
	return out
}

// PosteriorDraw is one accepted draw of the posterior sample. Adjusted holds
// the regression-adjusted parameters; with adjustment disabled it equals
// Params exactly.
type PosteriorDraw struct {
	Params   ParameterTriple `json:"params"`
	Adjusted ParameterTriple `json:"adjusted"`
	Distance float64         `json:"distance"`
	Weight   float64         `json:"weight"`
}

// PosteriorSample is the read-only outcome of one ABC estimation.
type PosteriorSample struct {
	Tolerance float64         `json:"tolerance"`
	Adjusted  bool            `json:"adjusted"`
	Draws     []PosteriorDraw `json:"draws"`
}

// TrainingRunConfig records the inputs that produced a training table, enough
// to reproduce the run deterministically.
type TrainingRunConfig struct {
	Layout         PopulationLayout `json:"layout"`
	Host           HostEstimates    `json:"host"`
	NumSimulations int              `json:"num_simulations"`
	NumReplicates  int              `json:"num_replicates"`
	Stats          []StatName       `json:"stats"`
	PriorSeed      int64            `json:"prior_seed"`
	SimSeed        int64            `json:"sim_seed"`
	Workers        int              `json:"workers"`
}

// TrainingRun is the persisted outcome of one prior-generation run.
type TrainingRun struct {
	VersionedRecord
	RunID        string            `json:"run_id"`
	CreatedAtUTC string            `json:"created_at_utc"`
	Config       TrainingRunConfig `json:"config"`
	Table        TrainingTable     `json:"table"`
	Requested    int               `json:"requested"`
	Completed    int               `json:"completed"`
	Skipped      int               `json:"skipped"`
	SkipReasons  map[string]int    `json:"skip_reasons,omitempty"`
}

// PosteriorRecord is the persisted outcome of one ABC estimation against a
// stored training run.
type PosteriorRecord struct {
	VersionedRecord
	RunID        string          `json:"run_id"`
	CreatedAtUTC string          `json:"created_at_utc"`
	Target       []float64       `json:"target"`
	TargetStats  []StatName      `json:"target_stats"`
	Sample       PosteriorSample `json:"sample"`
}
