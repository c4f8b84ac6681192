// Package sensor provides measurement models of range and camera sensors.
package sensor

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/frame"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// StateDim is the dimension of 3D constant velocity state supported by mounted sensors
	StateDim = 6
)

// mount holds the fields shared by sensors mounted on the vehicle
type mount struct {
	// id is sensor identifier
	id string
	// tr is sensor to vehicle transform
	tr *frame.Transform
	// fov is field of view
	fov FOV
}

func newMount(id string, tr *frame.Transform, fov FOV) (mount, error) {
	if id == "" {
		return mount{}, mtt.NewConfigurationError("empty sensor id")
	}

	if err := fov.Validate(); err != nil {
		return mount{}, err
	}

	if tr == nil {
		tr = frame.Identity()
	}

	return mount{id: id, tr: tr, fov: fov}, nil
}

// ID returns sensor identifier
func (m mount) ID() string {
	return m.id
}

// Transform returns sensor to vehicle transform
func (m mount) Transform() *frame.Transform {
	return m.tr
}

// FOV returns sensor field of view
func (m mount) FOV() FOV {
	return m.fov
}

// sensorPos returns position of vehicle frame state x in the sensor frame
func (m mount) sensorPos(x mat.Vector) (r3.Vec, error) {
	p, err := position(m.id, x)
	if err != nil {
		return r3.Vec{}, err
	}

	return m.tr.ToSensor(p), nil
}

// inFOV returns true if vehicle frame state x is in the field of view
func (m mount) inFOV(x mat.Vector) bool {
	p, err := m.sensorPos(x)
	if err != nil {
		return false
	}

	return m.fov.Contains(p)
}

// position extracts vehicle frame position from state x
func position(id string, x mat.Vector) (r3.Vec, error) {
	if x == nil || x.Len() != StateDim {
		n := 0
		if x != nil {
			n = x.Len()
		}
		return r3.Vec{}, mtt.NewConfigurationError("sensor %q: invalid state dimension: %d != %d", id, n, StateDim)
	}

	return r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, nil
}

// rotation returns r as a 3x3 dense matrix
func rotation(r *r3.Mat) *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, r.At(i, j))
		}
	}

	return d
}
