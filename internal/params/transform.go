// Package params maps the biological parameters (eta, tau, rho) and
// host-side estimates onto the coalescent-simulation configuration:
// effective size, symbiont mutation rate, and a scaled migration matrix.
package params

import (
	"fmt"
	"math"

	"github.com/mpjuers/transmission/internal/model"
)

// Derived holds the simulation inputs computed from one parameter triple.
// Recomputed per simulation call, never persisted.
type Derived struct {
	// A is the transmission-mode scaling intermediate
	// tau + rho*(1 - rho*tau)*(1 - tau)^2.
	A             float64
	EffectiveSize float64
	SymbiontNm    float64
	SymbiontTheta float64
	// MutationRate is SymbiontTheta / 2, the per-lineage rate handed to the
	// engine. The halving converts per-generation to per-lineage scaling.
	MutationRate float64
}

// Transform computes the derived simulation parameters. tau or rho outside
// [0, 1] is a validation error; a non-positive intermediate A is a numerical
// error since it would yield a negative effective size and mutation rate.
func Transform(p model.ParameterTriple, host model.HostEstimates) (Derived, error) {
	if err := p.Validate(); err != nil {
		return Derived{}, err
	}
	if err := host.Validate(); err != nil {
		return Derived{}, err
	}

	oneMinusTau := 1 - p.Tau
	a := p.Tau + p.Rho*(1-p.Rho*p.Tau)*oneMinusTau*oneMinusTau
	if a <= 0 {
		return Derived{}, fmt.Errorf("%w: transform intermediate A = %g for tau=%g rho=%g; must be > 0",
			model.ErrNumerical, a, p.Tau, p.Rho)
	}

	theta := math.Pow(10, p.Eta) * host.Theta * p.Rho / a
	return Derived{
		A:             a,
		EffectiveSize: p.Rho / (2 * a),
		SymbiontNm:    host.Nm * p.Rho / a,
		SymbiontTheta: theta,
		MutationRate:  theta / 2,
	}, nil
}
