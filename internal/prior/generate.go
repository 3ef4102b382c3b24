package prior

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/mpjuers/transmission/internal/cache"
	"github.com/mpjuers/transmission/internal/coalescent"
	"github.com/mpjuers/transmission/internal/model"
	"github.com/mpjuers/transmission/internal/sumstat"
)

// Config drives one prior-generation run.
type Config struct {
	// Runner carries the per-analysis constants; it is copied by value into
	// every worker.
	Runner coalescent.Runner
	Stats  []model.StatName
	// KeepPopulations restricts the statistics to a population subset.
	KeepPopulations []int
	HOpts           sumstat.HOpts
	NumSimulations  int
	// Priors falls back to the documented defaults for zero-value entries.
	Priors SpecConfig
	// PriorSeed drives the parameter draws, SimSeed the per-draw engine
	// seeds; the split lets the same parameter sets be replayed against
	// fresh genealogies.
	PriorSeed int64
	SimSeed   int64
	Workers   int
	// Cache, when set, memoizes completed draws by content address.
	Cache  cache.Cache
	Logger *slog.Logger
	// ProgressEvery logs progress after that many finished draws; zero
	// picks a default.
	ProgressEvery int
}

// Report accounts for every requested draw: completed rows plus skipped
// draws grouped by failure kind.
type Report struct {
	Requested int            `json:"requested"`
	Completed int            `json:"completed"`
	Skipped   int            `json:"skipped"`
	Reasons   map[string]int `json:"reasons,omitempty"`
}

type drawJob struct {
	idx    int
	params model.ParameterTriple
	seed   int64
}

type drawResult struct {
	idx int
	row model.StatRow
	err error
}

// Generate draws NumSimulations parameter triples from the priors and maps
// each through simulate-and-reduce. Draws failing with numerical or
// data-integrity errors are skipped and reported; validation and engine
// errors abort the run. The result is deterministic for fixed seeds
// regardless of worker count.
func Generate(ctx context.Context, cfg Config) (*model.TrainingTable, Report, error) {
	report := Report{Requested: cfg.NumSimulations, Reasons: map[string]int{}}

	if cfg.NumSimulations < 1 {
		return nil, report, fmt.Errorf("%w: at least one simulation is required, got %d", model.ErrValidation, cfg.NumSimulations)
	}
	if err := cfg.Runner.Validate(); err != nil {
		return nil, report, err
	}
	table, err := model.NewTrainingTable(cfg.Stats)
	if err != nil {
		return nil, report, err
	}
	spec, err := cfg.Priors.Build(uint64(cfg.PriorSeed))
	if err != nil {
		return nil, report, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 25
	}

	// All draws and seeds come off their streams up front, so completion
	// order cannot perturb reproducibility.
	simSeeds := rand.New(rand.NewSource(cfg.SimSeed))
	jobs := make([]drawJob, cfg.NumSimulations)
	for i := range jobs {
		jobs[i] = drawJob{idx: i, params: spec.Draw(), seed: simSeeds.Int63()}
	}

	results := runDraws(ctx, cfg, jobs, logger, progressEvery)

	for _, res := range results {
		if res.err == nil {
			if err := table.Append(res.row); err != nil {
				return nil, report, err
			}
			report.Completed++
			continue
		}
		if reason, skippable := skipReason(res.err); skippable {
			report.Skipped++
			report.Reasons[reason]++
			logger.Warn("skipping draw", "draw", res.idx, "reason", reason, "err", res.err)
			continue
		}
		return nil, report, fmt.Errorf("draw %d: %w", res.idx, res.err)
	}
	if len(report.Reasons) == 0 {
		report.Reasons = nil
	}

	logger.Info("prior generation finished",
		"requested", report.Requested, "completed", report.Completed, "skipped", report.Skipped)
	return table, report, nil
}

func runDraws(ctx context.Context, cfg Config, jobs []drawJob, logger *slog.Logger, progressEvery int) []drawResult {
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(jobs) {
		workerCount = len(jobs)
	}

	jobCh := make(chan drawJob)
	resultCh := make(chan drawResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if err := ctx.Err(); err != nil {
					resultCh <- drawResult{idx: j.idx, err: err}
					continue
				}
				row, err := runDraw(ctx, cfg, j)
				resultCh <- drawResult{idx: j.idx, row: row, err: err}
			}
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()
	close(resultCh)

	results := make([]drawResult, len(jobs))
	done := 0
	for res := range resultCh {
		results[res.idx] = res
		done++
		if done%progressEvery == 0 {
			logger.Info("prior generation progress", "done", done, "total", len(jobs))
		}
	}
	return results
}

func runDraw(ctx context.Context, cfg Config, j drawJob) (model.StatRow, error) {
	key := ""
	if cfg.Cache != nil {
		var err error
		key, err = drawKey(cfg, j)
		if err != nil {
			return model.StatRow{}, err
		}
		if payload, ok, err := cfg.Cache.Get(key); err != nil {
			return model.StatRow{}, err
		} else if ok {
			var row model.StatRow
			if err := json.Unmarshal(payload, &row); err != nil {
				return model.StatRow{}, fmt.Errorf("decode cached draw: %w", err)
			}
			return row, nil
		}
	}

	batch, _, err := cfg.Runner.Simulate(ctx, j.params, j.seed)
	if err != nil {
		return model.StatRow{}, fmt.Errorf("seed %d: %w", j.seed, err)
	}
	rows, err := sumstat.Reduce(batch, j.params, sumstat.Request{
		Stats:           cfg.Stats,
		KeepPopulations: cfg.KeepPopulations,
		AverageReps:     true,
		HOpts:           cfg.HOpts,
	})
	if err != nil {
		return model.StatRow{}, fmt.Errorf("seed %d: %w", j.seed, err)
	}
	row := rows[0]

	if cfg.Cache != nil {
		payload, err := json.Marshal(row)
		if err != nil {
			return model.StatRow{}, fmt.Errorf("encode draw for cache: %w", err)
		}
		if err := cfg.Cache.Put(key, payload); err != nil {
			return model.StatRow{}, err
		}
	}
	return row, nil
}

// drawKey addresses a draw by everything that determines its outcome.
func drawKey(cfg Config, j drawJob) (string, error) {
	return cache.Key(
		cfg.Runner.Layout,
		cfg.Runner.Host,
		migrationData(cfg.Runner),
		cfg.Runner.NumReplicates,
		cfg.Runner.Options,
		cfg.Stats,
		cfg.KeepPopulations,
		cfg.HOpts,
		j.params,
		j.seed,
	)
}

func migrationData(r coalescent.Runner) []float64 {
	if r.Migration == nil {
		return nil
	}
	return r.Migration.RawMatrix().Data
}

func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrNumerical):
		return "numerical", true
	case errors.Is(err, model.ErrDataIntegrity):
		return "data_integrity", true
	default:
		return "", false
	}
}
