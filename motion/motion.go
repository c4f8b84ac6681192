package motion

import (
	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// ConstantVelocity is a constant velocity motion model driven by white noise acceleration.
// State vector is laid out as [p_1..p_n, v_1..v_n] for n axes.
type ConstantVelocity struct {
	// axes is the number of spatial axes
	axes int
	// q is process noise intensity
	q float64
}

// NewConstantVelocity creates new constant velocity model for given number of axes
// and process noise intensity q and returns it.
// It returns ConfigurationError if axes is not in [1,3] or q is negative.
func NewConstantVelocity(axes int, q float64) (*ConstantVelocity, error) {
	if axes < 1 || axes > 3 {
		return nil, mtt.NewConfigurationError("invalid number of axes: %d", axes)
	}

	if q < 0 {
		return nil, mtt.NewConfigurationError("invalid process noise intensity: %v", q)
	}

	return &ConstantVelocity{
		axes: axes,
		q:    q,
	}, nil
}

// Dim returns state dimension
func (c *ConstantVelocity) Dim() int {
	return 2 * c.axes
}

// Axes returns the number of spatial axes
func (c *ConstantVelocity) Axes() int {
	return c.axes
}

// Intensity returns process noise intensity
func (c *ConstantVelocity) Intensity() float64 {
	return c.q
}

// Transition returns state transition matrix for elapsed time dt
func (c *ConstantVelocity) Transition(dt float64) mat.Matrix {
	n := c.Dim()
	f := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		f.Set(i, i, 1.0)
	}

	for i := 0; i < c.axes; i++ {
		f.Set(i, c.axes+i, dt)
	}

	return f
}

// Noise returns process noise covariance for elapsed time dt
func (c *ConstantVelocity) Noise(dt float64) mat.Symmetric {
	q := mat.NewSymDense(c.Dim(), nil)
	if c.q == 0 {
		return q
	}

	dt2 := dt * dt
	dt3 := dt2 * dt

	for i := 0; i < c.axes; i++ {
		q.SetSym(i, i, c.q*dt3/3)
		q.SetSym(i, c.axes+i, c.q*dt2/2)
		q.SetSym(c.axes+i, c.axes+i, c.q*dt)
	}

	return q
}

var _ mtt.Motion = (*ConstantVelocity)(nil)
