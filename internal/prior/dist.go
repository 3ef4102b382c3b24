// Package prior draws parameter triples from configured prior distributions
// and runs each through the simulation pipeline to build a training table.
package prior

import (
	"fmt"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mpjuers/transmission/internal/model"
)

// Distribution is a one-dimensional sampler. The gonum distuv distributions
// satisfy it directly.
type Distribution interface {
	Rand() float64
}

// Spec holds one sampler per parameter.
type Spec struct {
	Eta Distribution
	Tau Distribution
	Rho Distribution
}

// Draw samples one triple, always in eta, tau, rho order so a shared
// underlying source stays reproducible.
func (s Spec) Draw() model.ParameterTriple {
	return model.ParameterTriple{
		Eta: s.Eta.Rand(),
		Tau: s.Tau.Rand(),
		Rho: s.Rho.Rand(),
	}
}

const (
	KindUniform = "uniform"
	KindBeta    = "beta"
	KindNormal  = "normal"
)

// DistConfig is the declarative form of one prior distribution, as written
// in a priors YAML file. Only the fields for the chosen kind are read.
type DistConfig struct {
	Kind  string  `yaml:"kind" json:"kind"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
	Mu    float64 `yaml:"mu" json:"mu"`
	Sigma float64 `yaml:"sigma" json:"sigma"`
}

func (c DistConfig) build(src xrand.Source) (Distribution, error) {
	switch c.Kind {
	case KindUniform:
		if c.Min >= c.Max {
			return nil, fmt.Errorf("%w: uniform prior requires min < max, got [%g, %g]", model.ErrValidation, c.Min, c.Max)
		}
		return distuv.Uniform{Min: c.Min, Max: c.Max, Src: src}, nil
	case KindBeta:
		if c.Alpha <= 0 || c.Beta <= 0 {
			return nil, fmt.Errorf("%w: beta prior requires alpha and beta > 0, got alpha=%g beta=%g", model.ErrValidation, c.Alpha, c.Beta)
		}
		return distuv.Beta{Alpha: c.Alpha, Beta: c.Beta, Src: src}, nil
	case KindNormal:
		if c.Sigma <= 0 {
			return nil, fmt.Errorf("%w: normal prior requires sigma > 0, got %g", model.ErrValidation, c.Sigma)
		}
		return distuv.Normal{Mu: c.Mu, Sigma: c.Sigma, Src: src}, nil
	default:
		return nil, fmt.Errorf("%w: unknown prior kind %q", model.ErrValidation, c.Kind)
	}
}

// SpecConfig configures all three priors. Zero-value entries fall back to
// the defaults: eta ~ Normal(0, 0.1), tau ~ Uniform(0, 1),
// rho ~ Beta(10, 10).
type SpecConfig struct {
	Eta DistConfig `yaml:"eta" json:"eta"`
	Tau DistConfig `yaml:"tau" json:"tau"`
	Rho DistConfig `yaml:"rho" json:"rho"`
}

func (c SpecConfig) withDefaults() SpecConfig {
	if c.Eta.Kind == "" {
		c.Eta = DistConfig{Kind: KindNormal, Mu: 0, Sigma: 0.1}
	}
	if c.Tau.Kind == "" {
		c.Tau = DistConfig{Kind: KindUniform, Min: 0, Max: 1}
	}
	if c.Rho.Kind == "" {
		c.Rho = DistConfig{Kind: KindBeta, Alpha: 10, Beta: 10}
	}
	return c
}

// Build materializes the samplers over a single seeded source shared in
// draw order.
func (c SpecConfig) Build(seed uint64) (Spec, error) {
	c = c.withDefaults()
	src := xrand.NewSource(seed)

	eta, err := c.Eta.build(src)
	if err != nil {
		return Spec{}, fmt.Errorf("eta prior: %w", err)
	}
	tau, err := c.Tau.build(src)
	if err != nil {
		return Spec{}, fmt.Errorf("tau prior: %w", err)
	}
	rho, err := c.Rho.build(src)
	if err != nil {
		return Spec{}, fmt.Errorf("rho prior: %w", err)
	}
	return Spec{Eta: eta, Tau: tau, Rho: rho}, nil
}
