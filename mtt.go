package mtt

import (
	"github.com/milosgajdos/go-mtt/frame"
	"gonum.org/v1/gonum/mat"
)

// SensorKind is the kind of a sensor measurement model
type SensorKind string

const (
	// Range sensors measure position directly through a fixed linear model
	Range SensorKind = "range"
	// Camera sensors measure image coordinates through a nonlinear projection
	Camera SensorKind = "camera"
)

// Motion is a process model of a tracked object
type Motion interface {
	// Dim returns the state dimension
	Dim() int
	// Transition returns state transition matrix for elapsed time dt
	Transition(dt float64) mat.Matrix
	// Noise returns process noise covariance for elapsed time dt
	Noise(dt float64) mat.Symmetric
}

// Sensor is a measurement model of a physical sensor.
// Sensors are immutable and safe to share between goroutines.
type Sensor interface {
	// ID returns sensor identifier
	ID() string
	// Kind returns sensor kind
	Kind() SensorKind
	// Dims returns state and measurement dimensions
	Dims() (nx, nz int)
	// Observe returns the expected measurement h(x) of vehicle frame state x
	Observe(x mat.Vector) (mat.Vector, error)
	// Jacobian returns the measurement Jacobian evaluated at x
	Jacobian(x mat.Vector) (*mat.Dense, error)
	// InFOV returns true if state x can be seen by the sensor
	InFOV(x mat.Vector) bool
}

// Linear is a sensor whose measurement Jacobian does not depend on the state
type Linear interface {
	Sensor
	// Matrix returns the fixed measurement matrix
	Matrix() mat.Matrix
}

// Initiator is a sensor whose measurements can be inverted into a vehicle frame position
type Initiator interface {
	Sensor
	// Initiate returns vehicle frame position and its covariance measured by m
	Initiate(m *Measurement) (mat.Vector, mat.Symmetric, error)
}

// Mountable is a sensor whose model can be re-evaluated for a different sensor to vehicle transform
type Mountable interface {
	Sensor
	// Mount returns a copy of the sensor mounted with transform tr
	Mount(tr *frame.Transform) Sensor
}

// SensorAt returns the model of sensor s valid at the capture time of measurement m.
// If m carries its own transform and s is Mountable, s is remounted with it, otherwise s is returned.
func SensorAt(s Sensor, m *Measurement) Sensor {
	if m == nil || m.Transform() == nil {
		return s
	}

	if ms, ok := s.(Mountable); ok {
		return ms.Mount(m.Transform())
	}

	return s
}

// Estimate is a state estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is measurement or process noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
}

// Batch is an ordered batch of measurements produced by a single sensor in one cycle
type Batch struct {
	// Sensor is the ID of the sensor which produced the measurements
	Sensor string
	// Measurements are the sensor measurements
	Measurements []*Measurement
}
