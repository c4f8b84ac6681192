package sensor

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/frame"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Lidar is a range sensor measuring 3D position of objects in its own frame.
// Its measurement model is linear in the vehicle frame state.
type Lidar struct {
	mount
	// h is measurement matrix
	h *mat.Dense
}

// NewLidar creates new lidar sensor and returns it.
// It accepts the following parameters:
//   - id:  sensor identifier
//   - tr:  sensor to vehicle transform; nil means identity
//   - fov: horizontal field of view
//
// It returns ConfigurationError if id is empty or fov is invalid.
func NewLidar(id string, tr *frame.Transform, fov FOV) (*Lidar, error) {
	m, err := newMount(id, tr, fov)
	if err != nil {
		return nil, err
	}

	return &Lidar{
		mount: m,
		h:     lidarMatrix(m.tr),
	}, nil
}

// lidarMatrix returns [R_vs | 0] where R_vs is vehicle to sensor rotation
func lidarMatrix(tr *frame.Transform) *mat.Dense {
	h := mat.NewDense(3, StateDim, nil)
	h.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rotation(tr.InverseRotation()))

	return h
}

// Kind returns sensor kind
func (l *Lidar) Kind() mtt.SensorKind {
	return mtt.Range
}

// Dims returns state and measurement dimensions
func (l *Lidar) Dims() (int, int) {
	return StateDim, 3
}

// Observe returns position of vehicle frame state x in the sensor frame.
// It returns ConfigurationError if x has invalid dimension.
func (l *Lidar) Observe(x mat.Vector) (mat.Vector, error) {
	p, err := l.sensorPos(x)
	if err != nil {
		return nil, err
	}

	return mat.NewVecDense(3, []float64{p.X, p.Y, p.Z}), nil
}

// Jacobian returns measurement matrix.
// It returns ConfigurationError if x has invalid dimension.
func (l *Lidar) Jacobian(x mat.Vector) (*mat.Dense, error) {
	if _, err := position(l.id, x); err != nil {
		return nil, err
	}

	return mat.DenseCopyOf(l.h), nil
}

// Matrix returns measurement matrix
func (l *Lidar) Matrix() mat.Matrix {
	return mat.DenseCopyOf(l.h)
}

// InFOV returns true if vehicle frame state x is in the sensor field of view
func (l *Lidar) InFOV(x mat.Vector) bool {
	return l.inFOV(x)
}

// Mount returns a copy of the sensor mounted with transform tr
func (l *Lidar) Mount(tr *frame.Transform) mtt.Sensor {
	if tr == nil {
		return l
	}

	ml := &Lidar{mount: l.mount, h: lidarMatrix(tr)}
	ml.tr = tr

	return ml
}

// Initiate returns vehicle frame position measured by m and its covariance.
// It returns ConfigurationError if m was not produced by this sensor or has invalid dimension.
func (l *Lidar) Initiate(m *mtt.Measurement) (mat.Vector, mat.Symmetric, error) {
	if m.Sensor() != l.id {
		return nil, nil, mtt.NewConfigurationError("sensor %q: measurement of sensor %q", l.id, m.Sensor())
	}

	if m.Dim() != 3 {
		return nil, nil, mtt.NewConfigurationError("sensor %q: invalid measurement dimension: %d", l.id, m.Dim())
	}

	tr := l.tr
	if m.Transform() != nil {
		tr = m.Transform()
	}

	z := m.Z()
	p := tr.ToVehicle(r3.Vec{X: z.AtVec(0), Y: z.AtVec(1), Z: z.AtVec(2)})

	return mat.NewVecDense(3, []float64{p.X, p.Y, p.Z}), tr.CovToVehicle(m.R()), nil
}

var (
	_ mtt.Linear    = (*Lidar)(nil)
	_ mtt.Initiator = (*Lidar)(nil)
	_ mtt.Mountable = (*Lidar)(nil)
)
