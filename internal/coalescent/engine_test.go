package coalescent

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/model"
	"github.com/mpjuers/transmission/internal/params"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	migration, err := params.DefaultMigration(2, 1)
	if err != nil {
		t.Fatalf("build migration: %v", err)
	}
	return Request{
		EffectiveSize: 0.5,
		Migration:     migration,
		Layout:        model.UniformLayout(2, 4),
		MutationRate:  1,
		NumReplicates: 5,
		Seed:          42,
	}
}

func TestBuiltinEngineDeterministicForSeed(t *testing.T) {
	req := testRequest(t)
	engine := NewEngine()

	first, err := engine.Simulate(context.Background(), req)
	if err != nil {
		t.Fatalf("first simulate: %v", err)
	}
	second, err := engine.Simulate(context.Background(), req)
	if err != nil {
		t.Fatalf("second simulate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("same seed must reproduce the same batch")
	}
}

func TestBuiltinEngineSeedsDiverge(t *testing.T) {
	engine := NewEngine()
	a := testRequest(t)
	b := testRequest(t)
	b.Seed = 43

	first, err := engine.Simulate(context.Background(), a)
	if err != nil {
		t.Fatalf("simulate seed %d: %v", a.Seed, err)
	}
	second, err := engine.Simulate(context.Background(), b)
	if err != nil {
		t.Fatalf("simulate seed %d: %v", b.Seed, err)
	}
	if reflect.DeepEqual(first, second) {
		t.Fatal("different seeds produced identical batches")
	}
}

func TestBuiltinEngineBatchShape(t *testing.T) {
	req := testRequest(t)
	batch, err := NewEngine().Simulate(context.Background(), req)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(batch.Replicates) != req.NumReplicates {
		t.Fatalf("expected %d replicates, got %d", req.NumReplicates, len(batch.Replicates))
	}
	total := req.Layout.TotalSamples()
	for i, rep := range batch.Replicates {
		for s, site := range rep.Sites {
			if len(site.Derived) != total {
				t.Fatalf("replicate %d site %d: expected %d sample flags, got %d", i, s, total, len(site.Derived))
			}
			derived := 0
			for _, d := range site.Derived {
				if d {
					derived++
				}
			}
			if derived == 0 || derived == total {
				t.Fatalf("replicate %d site %d: mutation must split the sample, derived=%d", i, s, derived)
			}
		}
	}
}

func TestBuiltinEngineTimeLimit(t *testing.T) {
	req := testRequest(t)
	req.Options.TimeLimit = 1e-300
	_, err := NewEngine().Simulate(context.Background(), req)
	if !errors.Is(err, model.ErrEngine) {
		t.Fatalf("expected engine error under tiny time limit, got %v", err)
	}
}

func TestBuiltinEngineSegregatingSiteCap(t *testing.T) {
	req := testRequest(t)
	req.MutationRate = 1000
	req.Options.MaxSegregatingSites = 1
	_, err := NewEngine().Simulate(context.Background(), req)
	if !errors.Is(err, model.ErrEngine) {
		t.Fatalf("expected engine error once the site cap is exceeded, got %v", err)
	}
}

func TestBuiltinEngineContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Simulate(ctx, testRequest(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestPoissonLargeMeanStaysNearMean(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const mean = 1e6
	for i := 0; i < 20; i++ {
		k := float64(poisson(rng, mean))
		if math.Abs(k-mean) > 10*math.Sqrt(mean) {
			t.Fatalf("draw %d: %g is implausibly far from mean %g", i, k, mean)
		}
	}
}

func TestPoissonSmallMeanMatchesExpectation(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const mean = 2.0
	sum := 0
	n := 5000
	for i := 0; i < n; i++ {
		sum += poisson(rng, mean)
	}
	got := float64(sum) / float64(n)
	if math.Abs(got-mean) > 0.1 {
		t.Fatalf("empirical mean %g too far from %g", got, mean)
	}

	if poisson(rng, 0) != 0 {
		t.Fatal("zero mean must draw zero")
	}
	if poisson(rng, -1) != 0 {
		t.Fatal("negative mean must draw zero")
	}
}

func TestRequestValidate(t *testing.T) {
	base := testRequest(t)

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero effective size", func(r *Request) { r.EffectiveSize = 0 }},
		{"nil migration", func(r *Request) { r.Migration = nil }},
		{"migration size mismatch", func(r *Request) { r.Migration = mat.NewDense(3, 3, nil) }},
		{"negative mutation rate", func(r *Request) { r.MutationRate = -1 }},
		{"zero replicates", func(r *Request) { r.NumReplicates = 0 }},
		{"negative time limit", func(r *Request) { r.Options.TimeLimit = -1 }},
		{"negative site cap", func(r *Request) { r.Options.MaxSegregatingSites = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if err := req.Validate(); !errors.Is(err, model.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}
