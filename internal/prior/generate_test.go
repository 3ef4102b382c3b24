package prior

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/mpjuers/transmission/internal/cache"
	"github.com/mpjuers/transmission/internal/coalescent"
	"github.com/mpjuers/transmission/internal/model"
)

// stubEngine produces a small deterministic batch from the request seed,
// counting calls so cache hits are observable.
type stubEngine struct {
	calls int64
	empty bool
	err   error
}

func (e *stubEngine) Simulate(_ context.Context, req coalescent.Request) (coalescent.Batch, error) {
	atomic.AddInt64(&e.calls, 1)
	if e.err != nil {
		return coalescent.Batch{}, e.err
	}

	batch := coalescent.Batch{Layout: req.Layout}
	if e.empty {
		batch.Replicates = make([]coalescent.Replicate, req.NumReplicates)
		return batch, nil
	}

	rng := rand.New(rand.NewSource(req.Seed))
	total := req.Layout.TotalSamples()
	for r := 0; r < req.NumReplicates; r++ {
		derived := make([]bool, total)
		derived[rng.Intn(total)] = true
		derived[rng.Intn(total)] = true
		if allSet(derived) {
			derived[0] = false
		}
		batch.Replicates = append(batch.Replicates, coalescent.Replicate{
			Sites: []coalescent.Site{{Derived: derived}},
		})
	}
	return batch, nil
}

func allSet(derived []bool) bool {
	for _, d := range derived {
		if !d {
			return false
		}
	}
	return true
}

func testConfig(engine coalescent.Engine) Config {
	return Config{
		Runner: coalescent.Runner{
			Engine:        engine,
			Layout:        model.UniformLayout(2, 2),
			Host:          model.HostEstimates{Theta: 2, Nm: 1},
			NumReplicates: 3,
		},
		Stats:          []model.StatName{model.StatPiTajima, model.StatNumSites},
		NumSimulations: 20,
		PriorSeed:      11,
		SimSeed:        12,
		Workers:        1,
	}
}

func TestGenerateBuildsFullTable(t *testing.T) {
	cfg := testConfig(&stubEngine{})
	table, report, err := Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if report.Requested != 20 || report.Completed != 20 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(table.Rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(table.Rows))
	}
	for i, row := range table.Rows {
		if err := row.Params.Validate(); err != nil {
			t.Fatalf("row %d carries invalid parameters: %v", i, err)
		}
	}
}

func TestGenerateDeterministicAcrossWorkerCounts(t *testing.T) {
	serial := testConfig(&stubEngine{})
	parallel := testConfig(&stubEngine{})
	parallel.Workers = 4

	first, _, err := Generate(context.Background(), serial)
	if err != nil {
		t.Fatalf("serial generate: %v", err)
	}
	second, _, err := Generate(context.Background(), parallel)
	if err != nil {
		t.Fatalf("parallel generate: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatal("worker count changed the generated table")
	}
}

func TestGeneratePriorSeedChangesDraws(t *testing.T) {
	base := testConfig(&stubEngine{})
	shifted := testConfig(&stubEngine{})
	shifted.PriorSeed = base.PriorSeed + 1

	first, _, err := Generate(context.Background(), base)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, _, err := Generate(context.Background(), shifted)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if reflect.DeepEqual(first.Rows[0].Params, second.Rows[0].Params) {
		t.Fatal("different prior seeds drew identical parameters")
	}
}

func TestGenerateSkipsDataIntegrityFailures(t *testing.T) {
	// Empty replicates leave Fst undefined, which skips the draw rather than
	// aborting the run.
	cfg := testConfig(&stubEngine{empty: true})
	cfg.Stats = []model.StatName{model.StatFstMean}

	table, report, err := Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("expected no completed rows, got %d", len(table.Rows))
	}
	if report.Skipped != 20 || report.Completed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Reasons["data_integrity"] != 20 {
		t.Fatalf("unexpected skip reasons: %v", report.Reasons)
	}
}

func TestGenerateAbortsOnEngineError(t *testing.T) {
	cfg := testConfig(&stubEngine{err: fmt.Errorf("backend unavailable")})

	_, _, err := Generate(context.Background(), cfg)
	if !errors.Is(err, model.ErrEngine) {
		t.Fatalf("expected engine error to abort the run, got %v", err)
	}
}

func TestGenerateUsesCache(t *testing.T) {
	engine := &stubEngine{}
	cfg := testConfig(engine)
	cfg.Cache = cache.NewMemoryCache()

	first, _, err := Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	callsAfterFirst := atomic.LoadInt64(&engine.calls)
	if callsAfterFirst != 20 {
		t.Fatalf("expected 20 engine calls on a cold cache, got %d", callsAfterFirst)
	}

	second, _, err := Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if got := atomic.LoadInt64(&engine.calls); got != callsAfterFirst {
		t.Fatalf("expected warm cache to avoid engine calls, saw %d more", got-callsAfterFirst)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("cached rerun produced a different table")
	}
}

func TestGenerateValidation(t *testing.T) {
	cfg := testConfig(&stubEngine{})
	cfg.NumSimulations = 0
	if _, _, err := Generate(context.Background(), cfg); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for zero simulations, got %v", err)
	}

	cfg = testConfig(&stubEngine{})
	cfg.Stats = nil
	if _, _, err := Generate(context.Background(), cfg); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty stats, got %v", err)
	}

	cfg = testConfig(&stubEngine{})
	cfg.Runner.NumReplicates = 0
	if _, _, err := Generate(context.Background(), cfg); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for zero replicates, got %v", err)
	}
}

func TestGenerateContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Generate(ctx, testConfig(&stubEngine{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestSkipReasonClassification(t *testing.T) {
	if reason, ok := skipReason(fmt.Errorf("draw: %w", model.ErrNumerical)); !ok || reason != "numerical" {
		t.Fatalf("unexpected classification: %q, %v", reason, ok)
	}
	if reason, ok := skipReason(fmt.Errorf("draw: %w", model.ErrDataIntegrity)); !ok || reason != "data_integrity" {
		t.Fatalf("unexpected classification: %q, %v", reason, ok)
	}
	if _, ok := skipReason(model.ErrValidation); ok {
		t.Fatal("validation errors must not be skippable")
	}
	if _, ok := skipReason(model.ErrEngine); ok {
		t.Fatal("engine errors must not be skippable")
	}
}
