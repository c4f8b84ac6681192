package sensor

import (
	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// Linear is a generic range sensor with a fixed measurement matrix and unlimited field of view
type Linear struct {
	id string
	h  *mat.Dense
}

// NewLinear creates new linear sensor with measurement matrix h and returns it.
// It returns ConfigurationError if id is empty or h is nil or empty.
func NewLinear(id string, h mat.Matrix) (*Linear, error) {
	if id == "" {
		return nil, mtt.NewConfigurationError("empty sensor id")
	}

	if h == nil {
		return nil, mtt.NewConfigurationError("sensor %q: nil measurement matrix", id)
	}

	if r, c := h.Dims(); r == 0 || c == 0 {
		return nil, mtt.NewConfigurationError("sensor %q: invalid measurement matrix dimensions: [%d x %d]", id, r, c)
	}

	return &Linear{
		id: id,
		h:  mat.DenseCopyOf(h),
	}, nil
}

// ID returns sensor identifier
func (l *Linear) ID() string {
	return l.id
}

// Kind returns sensor kind
func (l *Linear) Kind() mtt.SensorKind {
	return mtt.Range
}

// Dims returns state and measurement dimensions
func (l *Linear) Dims() (int, int) {
	nz, nx := l.h.Dims()
	return nx, nz
}

func (l *Linear) check(x mat.Vector) error {
	nx, _ := l.Dims()
	if x == nil || x.Len() != nx {
		return mtt.NewConfigurationError("sensor %q: invalid state dimension, expected %d", l.id, nx)
	}

	return nil
}

// Observe returns H*x.
// It returns ConfigurationError if x has invalid dimension.
func (l *Linear) Observe(x mat.Vector) (mat.Vector, error) {
	if err := l.check(x); err != nil {
		return nil, err
	}

	nz, _ := l.h.Dims()
	z := mat.NewVecDense(nz, nil)
	z.MulVec(l.h, x)

	return z, nil
}

// Jacobian returns measurement matrix.
// It returns ConfigurationError if x has invalid dimension.
func (l *Linear) Jacobian(x mat.Vector) (*mat.Dense, error) {
	if err := l.check(x); err != nil {
		return nil, err
	}

	return mat.DenseCopyOf(l.h), nil
}

// Matrix returns measurement matrix
func (l *Linear) Matrix() mat.Matrix {
	return mat.DenseCopyOf(l.h)
}

// InFOV always returns true for states of valid dimension
func (l *Linear) InFOV(x mat.Vector) bool {
	return l.check(x) == nil
}

var _ mtt.Linear = (*Linear)(nil)
