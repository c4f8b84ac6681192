// Package kalman implements the predict and correct laws shared by linear and extended Kalman filters.
package kalman

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/estimate"
	"github.com/milosgajdos/go-mtt/matrix"
	"gonum.org/v1/gonum/mat"
)

// Tolerance configures numerical guards of the filter
type Tolerance struct {
	// MaxCond is the largest condition number of innovation covariance considered invertible
	MaxCond float64
	// PSD is the magnitude of negative eigenvalues tolerated and clipped in covariance matrices
	PSD float64
}

// DefaultTolerance returns default numerical tolerance
func DefaultTolerance() Tolerance {
	return Tolerance{
		MaxCond: 1e12,
		PSD:     1e-9,
	}
}

// Filter is a Kalman filter operating on immutable estimates
type Filter interface {
	// Predict propagates estimate est forward by dt seconds
	Predict(est mtt.Estimate, dt float64) (mtt.Estimate, error)
	// Innovation computes innovation of measurement m produced by sensor s against est
	Innovation(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (*Innovation, error)
	// Update corrects estimate est with measurement m produced by sensor s
	Update(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (mtt.Estimate, error)
}

// Predict propagates estimate est through motion model m for elapsed time dt and returns the prediction.
// It returns ConfigurationError if dt is negative or dimensions do not match
// and NumericalError if the predicted covariance is not positive semi-definite.
func Predict(est mtt.Estimate, m mtt.Motion, dt float64, tol Tolerance) (mtt.Estimate, error) {
	if dt < 0 {
		return nil, mtt.NewConfigurationError("invalid elapsed time: %v", dt)
	}

	x := est.Val()
	if x.Len() != m.Dim() {
		return nil, mtt.NewConfigurationError("invalid state dimension: %d != %d", x.Len(), m.Dim())
	}

	f := m.Transition(dt)

	xNext := &mat.VecDense{}
	xNext.MulVec(f, x)

	// F*P*F' + Q
	cov := &mat.Dense{}
	cov.Mul(f, est.Cov())
	cov.Mul(cov, f.T())
	cov.Add(cov, m.Noise(dt))

	pNext, err := matrix.Regularize(matrix.Symmetrize(cov), tol.PSD)
	if err != nil {
		return nil, mtt.NewNumericalError("predict covariance", err)
	}

	return estimate.NewBaseWithCov(xNext, pNext)
}

// Check validates that estimate est, measurement m and sensor s have matching dimensions.
// It returns ConfigurationError otherwise.
func Check(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) error {
	if m.Sensor() != s.ID() {
		return mtt.NewConfigurationError("measurement of sensor %q used with sensor %q", m.Sensor(), s.ID())
	}

	nx, nz := s.Dims()
	if n := est.Val().Len(); n != nx {
		return mtt.NewConfigurationError("sensor %q: invalid state dimension: %d != %d", s.ID(), n, nx)
	}

	if m.Dim() != nz {
		return mtt.NewConfigurationError("sensor %q: invalid measurement dimension: %d != %d", s.ID(), m.Dim(), nz)
	}

	return nil
}
