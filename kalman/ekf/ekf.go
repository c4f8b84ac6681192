package ekf

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/kalman"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Option configures EKF
type Option func(*EKF)

// WithNumericJacobian makes EKF approximate measurement Jacobian
// by central finite differences of the sensor measurement function.
func WithNumericJacobian() Option {
	return func(e *EKF) {
		e.numeric = true
	}
}

// EKF is Extended Kalman Filter
type EKF struct {
	// m is EKF motion model
	m mtt.Motion
	// tol is numerical tolerance
	tol kalman.Tolerance
	// numeric enables finite difference Jacobian
	numeric bool
}

// New creates new EKF and returns it.
// It accepts the following parameters:
//   - m:    motion model
//   - tol:  numerical tolerance
//   - opts: EKF options
//
// It returns ConfigurationError if m is nil or has invalid dimension.
func New(m mtt.Motion, tol kalman.Tolerance, opts ...Option) (*EKF, error) {
	if m == nil || m.Dim() <= 0 {
		return nil, mtt.NewConfigurationError("invalid motion model")
	}

	e := &EKF{
		m:   m,
		tol: tol,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Predict propagates estimate est forward by dt seconds and returns the prediction.
func (e *EKF) Predict(est mtt.Estimate, dt float64) (mtt.Estimate, error) {
	return kalman.Predict(est, e.m, dt, e.tol)
}

// Innovation computes innovation of measurement m of sensor s against estimate est,
// linearising the sensor model at the estimated state.
// It returns DomainError if the sensor model is undefined at the estimated state.
func (e *EKF) Innovation(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (*kalman.Innovation, error) {
	s = mtt.SensorAt(s, m)

	if err := kalman.Check(est, m, s); err != nil {
		return nil, err
	}

	x := est.Val()

	hx, err := s.Observe(x)
	if err != nil {
		return nil, err
	}

	var h *mat.Dense
	if e.numeric {
		h, err = jacobian(s, x)
	} else {
		h, err = s.Jacobian(x)
	}
	if err != nil {
		return nil, err
	}

	return kalman.NewInnovation(est, m.Z(), hx, h, m.R(), e.tol)
}

// Update corrects estimate est with measurement m of sensor s and returns corrected estimate.
func (e *EKF) Update(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (mtt.Estimate, error) {
	inn, err := e.Innovation(est, m, s)
	if err != nil {
		return nil, err
	}

	return kalman.Correct(est, inn, e.tol)
}

// Motion returns EKF motion model
func (e *EKF) Motion() mtt.Motion {
	return e.m
}

// jacobian approximates Jacobian of s measurement function at x
func jacobian(s mtt.Sensor, x mat.Vector) (*mat.Dense, error) {
	nx, nz := s.Dims()

	var fErr error
	hJacFn := func(y, xNow []float64) {
		z, err := s.Observe(mat.NewVecDense(len(xNow), xNow))
		if err != nil {
			if fErr == nil {
				fErr = err
			}
			return
		}

		for i := 0; i < len(y); i++ {
			y[i] = z.AtVec(i)
		}
	}

	xs := make([]float64, nx)
	for i := range xs {
		xs[i] = x.AtVec(i)
	}

	h := mat.NewDense(nz, nx, nil)
	fd.Jacobian(h, hJacFn, xs, &fd.JacobianSettings{
		Formula: fd.Central,
	})

	if fErr != nil {
		return nil, fErr
	}

	return h, nil
}

var _ kalman.Filter = (*EKF)(nil)
