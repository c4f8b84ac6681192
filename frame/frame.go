// Package frame implements rigid body transforms between a sensor frame and the vehicle frame.
package frame

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// tol is the tolerance used to validate rotation matrices
const tol = 1e-9

// Transform is a homogeneous rigid transform from a sensor frame to the vehicle frame.
// Transform is immutable: it's safe to share it between goroutines.
type Transform struct {
	// rot is sensor to vehicle rotation
	rot *r3.Mat
	// trans is sensor origin expressed in vehicle frame
	trans r3.Vec
	// m is 4x4 sensor to vehicle homogeneous matrix
	m *mat.Dense
	// inv is 4x4 vehicle to sensor homogeneous matrix
	inv *mat.Dense
}

// New creates new Transform from sensor to vehicle rotation rot and translation t and returns it.
// It returns error if rot is not a proper rotation matrix: orthonormal with determinant equal to 1.
func New(rot *r3.Mat, t r3.Vec) (*Transform, error) {
	if rot == nil {
		return nil, errors.New("invalid rotation: nil")
	}

	rrt := r3.NewMat(nil)
	rrt.Mul(rot, rot.T())
	if !mat.EqualApprox(rrt, r3.Eye(), tol) {
		return nil, errors.Errorf("invalid rotation: not orthonormal\n%v", mat.Formatted(rot, mat.Squeeze()))
	}

	if det := rot.Det(); math.Abs(det-1) > tol {
		return nil, errors.Errorf("invalid rotation determinant: %v", det)
	}

	r := r3.NewMat(nil)
	r.CloneFrom(rot)

	return newTransform(r, t), nil
}

// NewAxisAngle creates new Transform which rotates by angle radians around axis and translates by t.
// It returns error if axis is a zero vector and angle is non-zero.
func NewAxisAngle(angle float64, axis, t r3.Vec) (*Transform, error) {
	if angle != 0 && r3.Norm(axis) == 0 {
		return nil, errors.New("invalid rotation axis: zero vector")
	}

	return New(r3.NewRotation(angle, axis).Mat(), t)
}

// NewYaw creates new Transform which rotates by phi radians around vehicle z axis and translates by t.
func NewYaw(phi float64, t r3.Vec) *Transform {
	sin, cos := math.Sincos(phi)
	rot := r3.NewMat([]float64{
		cos, -sin, 0,
		sin, cos, 0,
		0, 0, 1,
	})

	return newTransform(rot, t)
}

// FromMatrix creates new Transform from 4x4 homogeneous sensor to vehicle matrix m.
// It returns error if m has invalid dimensions, invalid last row or invalid rotation.
func FromMatrix(m mat.Matrix) (*Transform, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("invalid homogeneous matrix dimensions: [%d x %d]", r, c)
	}

	for j, v := range []float64{0, 0, 0, 1} {
		if math.Abs(m.At(3, j)-v) > tol {
			return nil, errors.Errorf("invalid homogeneous matrix row: %v", mat.Row(nil, 3, m))
		}
	}

	rot := r3.NewMat(nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, m.At(i, j))
		}
	}

	return New(rot, r3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)})
}

// Identity returns identity Transform: sensor frame is the vehicle frame.
func Identity() *Transform {
	return newTransform(r3.Eye(), r3.Vec{})
}

func newTransform(rot *r3.Mat, t r3.Vec) *Transform {
	// inverse rotation is the transposed rotation
	rotInv := r3.NewMat(nil)
	rotInv.CloneFrom(rot.T())
	tInv := r3.Scale(-1, rotInv.MulVec(t))

	return &Transform{
		rot:   rot,
		trans: t,
		m:     homogeneous(rot, t),
		inv:   homogeneous(rotInv, tInv),
	}
}

func homogeneous(rot *r3.Mat, t r3.Vec) *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, rot.At(i, j))
		}
	}
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	m.Set(3, 3, 1.0)

	return m
}

// apply multiplies homogeneous vector [p, w] by m
func apply(m *mat.Dense, p r3.Vec, w float64) r3.Vec {
	h := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, w})
	out := mat.NewVecDense(4, nil)
	out.MulVec(m, h)

	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// ToVehicle transforms sensor frame point p to the vehicle frame.
func (t *Transform) ToVehicle(p r3.Vec) r3.Vec {
	return apply(t.m, p, 1.0)
}

// ToSensor transforms vehicle frame point p to the sensor frame.
func (t *Transform) ToSensor(p r3.Vec) r3.Vec {
	return apply(t.inv, p, 1.0)
}

// RotateToVehicle rotates sensor frame direction v to the vehicle frame.
func (t *Transform) RotateToVehicle(v r3.Vec) r3.Vec {
	return apply(t.m, v, 0.0)
}

// RotateToSensor rotates vehicle frame direction v to the sensor frame.
func (t *Transform) RotateToSensor(v r3.Vec) r3.Vec {
	return apply(t.inv, v, 0.0)
}

// CovToVehicle rotates 3x3 sensor frame covariance c to the vehicle frame: R*c*R'.
// It panics if c is not 3x3.
func (t *Transform) CovToVehicle(c mat.Symmetric) *mat.SymDense {
	return rotateCov(t.rot, c)
}

// CovToSensor rotates 3x3 vehicle frame covariance c to the sensor frame: R'*c*R.
// It panics if c is not 3x3.
func (t *Transform) CovToSensor(c mat.Symmetric) *mat.SymDense {
	return rotateCov(t.InverseRotation(), c)
}

func rotateCov(rot *r3.Mat, c mat.Symmetric) *mat.SymDense {
	if c.SymmetricDim() != 3 {
		panic(mat.ErrShape)
	}

	rc := &mat.Dense{}
	rc.Mul(rot, c)
	rcr := &mat.Dense{}
	rcr.Mul(rc, rot.T())

	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out.SetSym(i, j, 0.5*(rcr.At(i, j)+rcr.At(j, i)))
		}
	}

	return out
}

// Matrix returns a copy of the 4x4 sensor to vehicle homogeneous matrix.
func (t *Transform) Matrix() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// InverseMatrix returns a copy of the 4x4 vehicle to sensor homogeneous matrix.
func (t *Transform) InverseMatrix() *mat.Dense {
	return mat.DenseCopyOf(t.inv)
}

// Rotation returns a copy of the sensor to vehicle rotation.
func (t *Transform) Rotation() *r3.Mat {
	r := r3.NewMat(nil)
	r.CloneFrom(t.rot)

	return r
}

// InverseRotation returns a copy of the vehicle to sensor rotation.
func (t *Transform) InverseRotation() *r3.Mat {
	r := r3.NewMat(nil)
	r.CloneFrom(t.rot.T())

	return r
}

// Translation returns sensor origin expressed in the vehicle frame.
func (t *Transform) Translation() r3.Vec {
	return t.trans
}

// Inverse returns the vehicle to sensor transform.
func (t *Transform) Inverse() *Transform {
	rot := t.InverseRotation()

	return &Transform{
		rot:   rot,
		trans: rot.MulVec(r3.Scale(-1, t.trans)),
		m:     mat.DenseCopyOf(t.inv),
		inv:   mat.DenseCopyOf(t.m),
	}
}
