package noise

import (
	"fmt"

	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// Zero is noise which is always zero.
// It stands in for Gaussian noise where a scenario or a test needs exact values.
type Zero struct {
	size int
}

// NewZero creates zero noise of dimension size.
// It returns ConfigurationError if size is not positive.
func NewZero(size int) (*Zero, error) {
	if size <= 0 {
		return nil, mtt.NewConfigurationError("invalid noise dimension: %d", size)
	}

	return &Zero{size: size}, nil
}

// Sample returns zero vector
func (z *Zero) Sample() mat.Vector {
	return mat.NewVecDense(z.size, nil)
}

// Cov returns zero covariance
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.size, nil)
}

// Mean returns zero mean
func (z *Zero) Mean() []float64 {
	return make([]float64, z.size)
}

// Reset is a no-op: zero noise has no sample sequence.
func (z *Zero) Reset() {}

// String implements the Stringer interface.
func (z *Zero) String() string {
	return fmt.Sprintf("Zero{\nMean=%v\nCov=%v\n}", z.Mean(), mat.Formatted(z.Cov(), mat.Prefix("    "), mat.Squeeze()))
}

var _ mtt.Noise = (*Zero)(nil)
