package coalescent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/model"
)

// captureEngine records the request it was handed and returns a canned
// response.
type captureEngine struct {
	req   Request
	batch Batch
	err   error
}

func (e *captureEngine) Simulate(_ context.Context, req Request) (Batch, error) {
	e.req = req
	return e.batch, e.err
}

func testRunner(engine Engine) Runner {
	return Runner{
		Engine:        engine,
		Layout:        model.UniformLayout(2, 3),
		Host:          model.HostEstimates{Theta: 2, Nm: 1},
		NumReplicates: 4,
	}
}

func TestRunnerSimulateWiresDerivedParameters(t *testing.T) {
	engine := &captureEngine{batch: Batch{Layout: model.UniformLayout(2, 3)}}
	runner := testRunner(engine)
	p := model.ParameterTriple{Eta: 0, Tau: 1, Rho: 0.5}

	_, derived, err := runner.Simulate(context.Background(), p, 7)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	// tau = 1 gives A = 1 exactly, so every derived quantity is closed-form.
	if derived.EffectiveSize != 0.25 {
		t.Fatalf("expected effective size 0.25, got %g", derived.EffectiveSize)
	}
	if engine.req.EffectiveSize != derived.EffectiveSize {
		t.Fatalf("engine saw effective size %g, want %g", engine.req.EffectiveSize, derived.EffectiveSize)
	}
	if engine.req.MutationRate != derived.MutationRate {
		t.Fatalf("engine saw mutation rate %g, want %g", engine.req.MutationRate, derived.MutationRate)
	}
	if engine.req.Seed != 7 {
		t.Fatalf("engine saw seed %d, want 7", engine.req.Seed)
	}
	if engine.req.NumReplicates != 4 {
		t.Fatalf("engine saw %d replicates, want 4", engine.req.NumReplicates)
	}

	// Default migration: island model over SymbiontNm = 0.5 and 2 populations.
	if got := engine.req.Migration.At(0, 1); got != 0.5 {
		t.Fatalf("engine saw migration rate %g, want 0.5", got)
	}
}

func TestRunnerSimulateRescalesSuppliedMigration(t *testing.T) {
	engine := &captureEngine{}
	runner := testRunner(engine)
	runner.Migration = mat.NewDense(2, 2, []float64{0, 2, 2, 0})

	_, _, err := runner.Simulate(context.Background(), model.ParameterTriple{Tau: 1, Rho: 0.5}, 1)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if engine.req.Migration == nil {
		t.Fatal("engine did not receive the scaled matrix")
	}
	if engine.req.Migration.At(0, 1) != engine.req.Migration.At(1, 0) {
		t.Fatal("scaled matrix lost symmetry")
	}
}

func TestRunnerSimulatePropagatesTransformErrors(t *testing.T) {
	runner := testRunner(&captureEngine{})

	_, _, err := runner.Simulate(context.Background(), model.ParameterTriple{Tau: -1, Rho: 0.5}, 1)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, _, err = runner.Simulate(context.Background(), model.ParameterTriple{Tau: 0, Rho: 0}, 1)
	if !errors.Is(err, model.ErrNumerical) {
		t.Fatalf("expected numerical error, got %v", err)
	}
}

func TestRunnerSimulateTagsUnknownEngineErrors(t *testing.T) {
	engine := &captureEngine{err: fmt.Errorf("backend fell over")}
	runner := testRunner(engine)

	_, _, err := runner.Simulate(context.Background(), model.ParameterTriple{Tau: 1, Rho: 0.5}, 1)
	if !errors.Is(err, model.ErrEngine) {
		t.Fatalf("expected engine error kind, got %v", err)
	}
}

func TestRunnerSimulatePassesThroughContextErrors(t *testing.T) {
	engine := &captureEngine{err: context.Canceled}
	runner := testRunner(engine)

	_, _, err := runner.Simulate(context.Background(), model.ParameterTriple{Tau: 1, Rho: 0.5}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, model.ErrEngine) {
		t.Fatal("context errors must not be retagged as engine errors")
	}
}

func TestRunnerValidate(t *testing.T) {
	runner := testRunner(nil)
	if err := runner.Validate(); err != nil {
		t.Fatalf("valid runner rejected: %v", err)
	}

	bad := runner
	bad.NumReplicates = 0
	if err := bad.Validate(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bad = runner
	bad.Host.Theta = 0
	if err := bad.Validate(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
