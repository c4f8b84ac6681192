package noise

import (
	"fmt"

	mtt "github.com/milosgajdos/go-mtt"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise drawn from a seeded source
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed seeds the random source
	seed uint64
}

// NewGaussian creates new Gaussian noise with given mean and covariance drawn from a source seeded with seed.
// Two Gaussians created with the same parameters produce the same samples.
// It returns ConfigurationError if mean and cov dimensions do not match or cov is not positive definite.
func NewGaussian(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || len(mean) != cov.SymmetricDim() {
		return nil, mtt.NewConfigurationError("invalid Gaussian noise dimensions: mean %d", len(mean))
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)
	m := append([]float64(nil), mean...)

	dist, ok := newGaussianDist(m, c, seed)
	if !ok {
		return nil, mtt.NewConfigurationError("invalid Gaussian noise covariance: not positive definite")
	}

	return &Gaussian{
		dist: dist,
		mean: m,
		cov:  c,
		seed: seed,
	}, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return append([]float64(nil), g.mean...)
}

// Reset restarts the noise sample sequence from its seed.
func (g *Gaussian) Reset() {
	g.dist, _ = newGaussianDist(g.mean, g.cov, g.seed)
}

func newGaussianDist(mean []float64, cov mat.Symmetric, seed uint64) (*distmv.Normal, bool) {
	src := rand.NewSource(seed)
	return distmv.NewNormal(mean, cov, src)
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

var _ mtt.Noise = (*Gaussian)(nil)
