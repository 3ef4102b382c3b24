// Package transmission is the public API for ABC inference of endosymbiont
// transmission mode from population-genetic summary statistics.
package transmission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/abc"
	"github.com/mpjuers/transmission/internal/cache"
	"github.com/mpjuers/transmission/internal/coalescent"
	"github.com/mpjuers/transmission/internal/logging"
	"github.com/mpjuers/transmission/internal/model"
	"github.com/mpjuers/transmission/internal/prior"
	"github.com/mpjuers/transmission/internal/storage"
	"github.com/mpjuers/transmission/internal/sumstat"
)

const defaultDBPath = "transmission.db"

type Options struct {
	StoreKind string
	DBPath    string
	// CacheDir enables the on-disk simulation cache when non-empty.
	CacheDir string
	LogLevel string
	Logger   *slog.Logger
}

type Client struct {
	store  storage.Store
	cache  cache.Cache
	logger *slog.Logger
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, err
	}

	var simCache cache.Cache
	if opts.CacheDir != "" {
		simCache, err = cache.NewDirCache(opts.CacheDir)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(opts.LogLevel, os.Stderr)
	}
	return &Client{store: store, cache: simCache, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// SimRequest is one direct simulation: a single parameter triple mapped to
// summary-statistic rows, mostly useful for building synthetic targets.
type SimRequest struct {
	Params        model.ParameterTriple
	Host          model.HostEstimates
	SampleSizes   []int
	Stats         []string
	KeepPops      []int
	AverageReps   bool
	Migration     [][]float64
	NumReplicates int
	Seed          int64
	BiasedH       bool

	TimeLimit           float64
	MaxSegregatingSites int
}

type SimResult struct {
	Columns []string
	Rows    [][]float64
}

func (c *Client) Sim(ctx context.Context, req SimRequest) (SimResult, error) {
	stats, err := model.ParseStats(req.Stats)
	if err != nil {
		return SimResult{}, err
	}
	migration, err := denseFromRows(req.Migration)
	if err != nil {
		return SimResult{}, err
	}

	runner := coalescent.Runner{
		Layout:        model.PopulationLayout{SampleSizes: req.SampleSizes},
		Host:          req.Host,
		Migration:     migration,
		NumReplicates: req.NumReplicates,
		Options: coalescent.Options{
			TimeLimit:           req.TimeLimit,
			MaxSegregatingSites: req.MaxSegregatingSites,
		},
	}
	batch, _, err := runner.Simulate(ctx, req.Params, req.Seed)
	if err != nil {
		return SimResult{}, err
	}
	rows, err := sumstat.Reduce(batch, req.Params, sumstat.Request{
		Stats:           stats,
		KeepPopulations: req.KeepPops,
		AverageReps:     req.AverageReps,
		HOpts:           sumstat.HOpts{Biased: req.BiasedH},
	})
	if err != nil {
		return SimResult{}, err
	}

	table, err := model.NewTrainingTable(stats)
	if err != nil {
		return SimResult{}, err
	}
	out := SimResult{Columns: table.Columns(), Rows: make([][]float64, len(rows))}
	for i, row := range rows {
		flat := make([]float64, 0, len(row.Values)+3)
		flat = append(flat, row.Values...)
		flat = append(flat, row.Params.Eta, row.Params.Tau, row.Params.Rho)
		out.Rows[i] = flat
	}
	return out, nil
}

// PriorsRequest configures one prior-generation run; the completed table is
// persisted under the returned run ID.
type PriorsRequest struct {
	RunID          string
	SampleSizes    []int
	Host           model.HostEstimates
	NumSimulations int
	NumReplicates  int
	Stats          []string
	KeepPops       []int
	Priors         prior.SpecConfig
	Migration      [][]float64
	PriorSeed      int64
	SimSeed        int64
	Workers        int
	BiasedH        bool

	TimeLimit           float64
	MaxSegregatingSites int
}

type PriorsSummary struct {
	RunID     string
	Columns   []string
	Requested int
	Completed int
	Skipped   int
	Reasons   map[string]int
}

func (c *Client) GeneratePriors(ctx context.Context, req PriorsRequest) (PriorsSummary, error) {
	stats, err := model.ParseStats(req.Stats)
	if err != nil {
		return PriorsSummary{}, err
	}
	migration, err := denseFromRows(req.Migration)
	if err != nil {
		return PriorsSummary{}, err
	}

	cfg := prior.Config{
		Runner: coalescent.Runner{
			Layout:        model.PopulationLayout{SampleSizes: req.SampleSizes},
			Host:          req.Host,
			Migration:     migration,
			NumReplicates: req.NumReplicates,
			Options: coalescent.Options{
				TimeLimit:           req.TimeLimit,
				MaxSegregatingSites: req.MaxSegregatingSites,
			},
		},
		Stats:           stats,
		KeepPopulations: req.KeepPops,
		HOpts:           sumstat.HOpts{Biased: req.BiasedH},
		NumSimulations:  req.NumSimulations,
		Priors:          req.Priors,
		PriorSeed:       req.PriorSeed,
		SimSeed:         req.SimSeed,
		Workers:         req.Workers,
		Cache:           c.cache,
		Logger:          c.logger,
	}
	table, report, err := prior.Generate(ctx, cfg)
	if err != nil {
		return PriorsSummary{}, err
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = fmt.Sprintf("priors-%d-%d", req.PriorSeed, now.Unix())
	}
	run := model.TrainingRun{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:        runID,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
		Config: model.TrainingRunConfig{
			Layout:         model.PopulationLayout{SampleSizes: req.SampleSizes},
			Host:           req.Host,
			NumSimulations: req.NumSimulations,
			NumReplicates:  req.NumReplicates,
			Stats:          stats,
			PriorSeed:      req.PriorSeed,
			SimSeed:        req.SimSeed,
			Workers:        req.Workers,
		},
		Table:       *table,
		Requested:   report.Requested,
		Completed:   report.Completed,
		Skipped:     report.Skipped,
		SkipReasons: report.Reasons,
	}
	if err := c.store.SaveTrainingRun(ctx, run); err != nil {
		return PriorsSummary{}, fmt.Errorf("save training run: %w", err)
	}

	return PriorsSummary{
		RunID:     runID,
		Columns:   table.Columns(),
		Requested: report.Requested,
		Completed: report.Completed,
		Skipped:   report.Skipped,
		Reasons:   report.Reasons,
	}, nil
}

// EstimateRequest runs ABC against a stored training run.
type EstimateRequest struct {
	RunID  string
	Latest bool

	TargetStats  []string
	TargetValues []float64

	Tolerance float64
	Radius    float64
	Adjust    bool
}

type EstimateSummary struct {
	RunID             string
	Accepted          int
	Tolerance         float64
	Radius            float64
	Raw               map[string]abc.Moments
	Adjusted          map[string]abc.Moments
	ZeroVarianceStats []model.StatName
}

func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (EstimateSummary, error) {
	run, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return EstimateSummary{}, err
	}

	targetStats, err := model.ParseStats(req.TargetStats)
	if err != nil {
		return EstimateSummary{}, err
	}
	target, err := model.NewSummaryStatVector(targetStats, req.TargetValues)
	if err != nil {
		return EstimateSummary{}, err
	}

	result, err := abc.Estimate(abc.Config{
		Target:    target,
		Table:     &run.Table,
		Tolerance: req.Tolerance,
		Radius:    req.Radius,
		Adjust:    req.Adjust,
	})
	if err != nil {
		return EstimateSummary{}, err
	}

	record := model.PosteriorRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:        run.RunID,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Target:       target.Values,
		TargetStats:  target.Names,
		Sample:       result.Sample(),
	}
	if err := c.store.SavePosterior(ctx, record); err != nil {
		return EstimateSummary{}, fmt.Errorf("save posterior: %w", err)
	}

	summary := result.Summary()
	return EstimateSummary{
		RunID:             run.RunID,
		Accepted:          summary.Accepted,
		Tolerance:         summary.Tolerance,
		Radius:            summary.Radius,
		Raw:               summary.Raw,
		Adjusted:          summary.Adjusted,
		ZeroVarianceStats: result.ZeroVarianceStats(),
	}, nil
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	NumSimulations int
	Completed      int
	Skipped        int
	Stats          []model.StatName
}

func (c *Client) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	runs, err := c.store.ListTrainingRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, len(runs))
	for i, run := range runs {
		out[i] = RunItem{
			RunID:          run.RunID,
			CreatedAtUTC:   run.CreatedAtUTC,
			NumSimulations: run.Config.NumSimulations,
			Completed:      run.Completed,
			Skipped:        run.Skipped,
			Stats:          run.Config.Stats,
		}
	}
	return out, nil
}

type ExportRequest struct {
	RunID   string
	Latest  bool
	OutPath string
}

type ExportSummary struct {
	RunID string
	Path  string
	Rows  int
}

// Export writes a stored training table as a flat CSV for external analysis.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	run, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutPath == "" {
		return ExportSummary{}, fmt.Errorf("%w: output path is required", model.ErrValidation)
	}

	f, err := os.Create(req.OutPath)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("create export file: %w", err)
	}
	if err := run.Table.WriteCSV(f); err != nil {
		_ = f.Close()
		return ExportSummary{}, err
	}
	if err := f.Close(); err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: run.RunID, Path: req.OutPath, Rows: len(run.Table.Rows)}, nil
}

// Posterior retrieves the stored posterior for a run.
func (c *Client) Posterior(ctx context.Context, runID string) (model.PosteriorRecord, bool, error) {
	return c.store.GetPosterior(ctx, runID)
}

func (c *Client) resolveRun(ctx context.Context, runID string, latest bool) (model.TrainingRun, error) {
	if runID != "" && latest {
		return model.TrainingRun{}, fmt.Errorf("%w: run ID and latest are mutually exclusive", model.ErrValidation)
	}
	if runID == "" && !latest {
		return model.TrainingRun{}, fmt.Errorf("%w: a run ID or latest is required", model.ErrValidation)
	}
	if latest {
		run, ok, err := c.store.LatestTrainingRun(ctx)
		if err != nil {
			return model.TrainingRun{}, err
		}
		if !ok {
			return model.TrainingRun{}, fmt.Errorf("%w: no training runs stored", model.ErrValidation)
		}
		return run, nil
	}
	run, ok, err := c.store.GetTrainingRun(ctx, runID)
	if err != nil {
		return model.TrainingRun{}, err
	}
	if !ok {
		return model.TrainingRun{}, fmt.Errorf("%w: training run %q not found", model.ErrValidation, runID)
	}
	return run, nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: migration matrix row %d has %d entries, expected %d",
				model.ErrValidation, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}
