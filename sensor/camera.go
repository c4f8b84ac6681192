package sensor

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/frame"
	"gonum.org/v1/gonum/mat"
)

// Intrinsics are pinhole camera intrinsic parameters in pixels
type Intrinsics struct {
	// FocalRow is focal length along image rows
	FocalRow float64
	// FocalCol is focal length along image columns
	FocalCol float64
	// PrincipalRow is row coordinate of the principal point
	PrincipalRow float64
	// PrincipalCol is column coordinate of the principal point
	PrincipalCol float64
}

// Camera is a pinhole camera measuring image coordinates of objects.
// Its optical axis is the sensor frame +X axis, image rows grow along -Y and columns along -Z.
type Camera struct {
	mount
	in Intrinsics
}

// NewCamera creates new camera sensor and returns it.
// It returns ConfigurationError if id is empty, fov is invalid or focal lengths are not positive.
func NewCamera(id string, tr *frame.Transform, in Intrinsics, fov FOV) (*Camera, error) {
	m, err := newMount(id, tr, fov)
	if err != nil {
		return nil, err
	}

	if in.FocalRow <= 0 || in.FocalCol <= 0 {
		return nil, mtt.NewConfigurationError("sensor %q: invalid focal lengths: %v, %v", id, in.FocalRow, in.FocalCol)
	}

	return &Camera{
		mount: m,
		in:    in,
	}, nil
}

// Kind returns sensor kind
func (c *Camera) Kind() mtt.SensorKind {
	return mtt.Camera
}

// Dims returns state and measurement dimensions
func (c *Camera) Dims() (int, int) {
	return StateDim, 2
}

// Intrinsics returns camera intrinsic parameters
func (c *Camera) Intrinsics() Intrinsics {
	return c.in
}

// Observe projects vehicle frame state x to image coordinates.
// It returns DomainError if x lies in the camera plane and ConfigurationError if x has invalid dimension.
func (c *Camera) Observe(x mat.Vector) (mat.Vector, error) {
	p, err := c.sensorPos(x)
	if err != nil {
		return nil, err
	}

	if p.X == 0 {
		return nil, mtt.NewDomainError(c.id, "observe", "zero forward range")
	}

	return mat.NewVecDense(2, []float64{
		c.in.PrincipalRow - c.in.FocalRow*p.Y/p.X,
		c.in.PrincipalCol - c.in.FocalCol*p.Z/p.X,
	}), nil
}

// Jacobian returns Jacobian of the projection with respect to vehicle frame state x.
// It returns DomainError if x lies in the camera plane and ConfigurationError if x has invalid dimension.
func (c *Camera) Jacobian(x mat.Vector) (*mat.Dense, error) {
	p, err := c.sensorPos(x)
	if err != nil {
		return nil, err
	}

	if p.X == 0 {
		return nil, mtt.NewDomainError(c.id, "jacobian", "zero forward range")
	}

	x2 := p.X * p.X
	js := mat.NewDense(2, 3, []float64{
		c.in.FocalRow * p.Y / x2, -c.in.FocalRow / p.X, 0,
		c.in.FocalCol * p.Z / x2, 0, -c.in.FocalCol / p.X,
	})

	// chain rule through vehicle to sensor rotation
	jv := &mat.Dense{}
	jv.Mul(js, rotation(c.tr.InverseRotation()))

	h := mat.NewDense(2, StateDim, nil)
	h.Slice(0, 2, 0, 3).(*mat.Dense).Copy(jv)

	return h, nil
}

// InFOV returns true if vehicle frame state x is in the camera field of view
func (c *Camera) InFOV(x mat.Vector) bool {
	return c.inFOV(x)
}

// Mount returns a copy of the camera mounted with transform tr
func (c *Camera) Mount(tr *frame.Transform) mtt.Sensor {
	if tr == nil {
		return c
	}

	mc := &Camera{mount: c.mount, in: c.in}
	mc.tr = tr

	return mc
}

var (
	_ mtt.Sensor    = (*Camera)(nil)
	_ mtt.Mountable = (*Camera)(nil)
)
