package kf

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/kalman"
)

// KF is Kalman Filter for sensors with a fixed measurement matrix
type KF struct {
	// m is KF motion model
	m mtt.Motion
	// tol is numerical tolerance
	tol kalman.Tolerance
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:   motion model
//   - tol: numerical tolerance
//
// It returns ConfigurationError if m is nil or has invalid dimension.
func New(m mtt.Motion, tol kalman.Tolerance) (*KF, error) {
	if m == nil || m.Dim() <= 0 {
		return nil, mtt.NewConfigurationError("invalid motion model")
	}

	return &KF{
		m:   m,
		tol: tol,
	}, nil
}

// Predict propagates estimate est forward by dt seconds and returns the prediction.
func (k *KF) Predict(est mtt.Estimate, dt float64) (mtt.Estimate, error) {
	return kalman.Predict(est, k.m, dt, k.tol)
}

// Innovation computes innovation of measurement m of linear sensor s against estimate est.
// It returns ConfigurationError if s is not linear or dimensions do not match.
func (k *KF) Innovation(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (*kalman.Innovation, error) {
	s = mtt.SensorAt(s, m)

	lin, ok := s.(mtt.Linear)
	if !ok {
		return nil, mtt.NewConfigurationError("sensor %q: linear filter requires fixed measurement matrix", s.ID())
	}

	if err := kalman.Check(est, m, s); err != nil {
		return nil, err
	}

	hx, err := lin.Observe(est.Val())
	if err != nil {
		return nil, err
	}

	return kalman.NewInnovation(est, m.Z(), hx, lin.Matrix(), m.R(), k.tol)
}

// Update corrects estimate est with measurement m of linear sensor s and returns corrected estimate.
func (k *KF) Update(est mtt.Estimate, m *mtt.Measurement, s mtt.Sensor) (mtt.Estimate, error) {
	inn, err := k.Innovation(est, m, s)
	if err != nil {
		return nil, err
	}

	return kalman.Correct(est, inn, k.tol)
}

// Motion returns KF motion model
func (k *KF) Motion() mtt.Motion {
	return k.m
}

var _ kalman.Filter = (*KF)(nil)
