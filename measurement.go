package mtt

import (
	"time"

	"github.com/google/uuid"
	"github.com/milosgajdos/go-mtt/frame"
	"gonum.org/v1/gonum/mat"
)

// Measurement is a single sensor measurement expressed in the sensor frame.
// Measurement is immutable once created.
type Measurement struct {
	// id uniquely identifies the measurement
	id uuid.UUID
	// sensor is the ID of the sensor which produced the measurement
	sensor string
	// z is measurement vector
	z *mat.VecDense
	// r is measurement covariance
	r *mat.SymDense
	// tr is sensor to vehicle transform valid at capture time
	tr *frame.Transform
	// ts is capture time
	ts time.Time
}

// NewMeasurement creates new Measurement and returns it.
// It accepts the following parameters:
//   - sensor: ID of the sensor which produced the measurement
//   - z:      measurement vector in the sensor frame
//   - r:      measurement covariance
//   - tr:     sensor to vehicle transform valid at capture time; nil means the sensor mounting transform
//   - ts:     capture time
//
// It returns ConfigurationError if z is empty, r does not match z dimension
// or r has a negative variance on its diagonal.
func NewMeasurement(sensor string, z mat.Vector, r mat.Symmetric, tr *frame.Transform, ts time.Time) (*Measurement, error) {
	if z == nil || z.Len() == 0 {
		return nil, NewConfigurationError("invalid measurement vector: empty")
	}

	if r == nil || r.SymmetricDim() != z.Len() {
		return nil, NewConfigurationError("invalid measurement covariance for %d dimensional measurement", z.Len())
	}

	for i := 0; i < r.SymmetricDim(); i++ {
		if r.At(i, i) < 0 {
			return nil, NewConfigurationError("invalid measurement variance: R[%d,%d] = %v", i, i, r.At(i, i))
		}
	}

	zz := mat.VecDenseCopyOf(z)
	rr := mat.NewSymDense(r.SymmetricDim(), nil)
	rr.CopySym(r)

	return &Measurement{
		id:     uuid.New(),
		sensor: sensor,
		z:      zz,
		r:      rr,
		tr:     tr,
		ts:     ts,
	}, nil
}

// ID returns measurement ID
func (m *Measurement) ID() uuid.UUID {
	return m.id
}

// Sensor returns the ID of the sensor which produced the measurement
func (m *Measurement) Sensor() string {
	return m.sensor
}

// Dim returns measurement dimension
func (m *Measurement) Dim() int {
	return m.z.Len()
}

// Z returns a copy of measurement vector
func (m *Measurement) Z() mat.Vector {
	return mat.VecDenseCopyOf(m.z)
}

// R returns a copy of measurement covariance
func (m *Measurement) R() mat.Symmetric {
	r := mat.NewSymDense(m.r.SymmetricDim(), nil)
	r.CopySym(m.r)

	return r
}

// Transform returns sensor to vehicle transform valid at capture time.
// It returns nil if the measurement relies on sensor mounting transform.
func (m *Measurement) Transform() *frame.Transform {
	return m.tr
}

// Time returns measurement capture time
func (m *Measurement) Time() time.Time {
	return m.ts
}
