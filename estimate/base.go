package estimate

import (
	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// Base is an immutable state estimate made of a value and its covariance
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate given val with zero covariance
func NewBase(val mat.Vector) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, mtt.NewConfigurationError("invalid estimate value: empty")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(v.Len(), nil)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// NewBaseWithCov returns base estimate given value and covariance.
// It returns ConfigurationError if val and cov dimensions do not match.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, mtt.NewConfigurationError("invalid estimate value: empty")
	}

	if cov == nil {
		return nil, mtt.NewConfigurationError("invalid estimate covariance: nil")
	}

	rv := val.Len()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, mtt.NewConfigurationError("invalid dimensions. Val: %d, Cov: %d x %d", rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(rc, nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Dim returns estimate dimension
func (b *Base) Dim() int {
	return b.val.Len()
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

var _ mtt.Estimate = (*Base)(nil)
