package mtt

import (
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewMeasurement(t *testing.T) {
	assert := assert.New(t)

	ts := time.Unix(100, 0)
	z := mat.NewVecDense(2, []float64{1.0, 2.0})
	r := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.2})

	m, err := NewMeasurement("lidar", z, r, nil, ts)
	assert.NoError(err)
	assert.NotNil(m)
	assert.Equal("lidar", m.Sensor())
	assert.Equal(2, m.Dim())
	assert.Equal(ts, m.Time())
	assert.Nil(m.Transform())
	assert.NotEqual(m.ID().String(), "")

	// measurement is a copy of its inputs
	z.SetVec(0, 100.0)
	r.SetSym(0, 0, 100.0)
	assert.Equal(1.0, m.Z().AtVec(0))
	assert.Equal(0.1, m.R().At(0, 0))

	// accessors return copies
	m.Z().(*mat.VecDense).SetVec(1, -1)
	assert.Equal(2.0, m.Z().AtVec(1))

	// IDs are unique
	m2, err := NewMeasurement("lidar", z, r, nil, ts)
	assert.NoError(err)
	assert.NotEqual(m.ID(), m2.ID())
}

func TestNewMeasurementInvalid(t *testing.T) {
	assert := assert.New(t)

	r := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.2})

	for _, test := range []struct {
		z mat.Vector
		r mat.Symmetric
	}{
		{z: nil, r: r},
		{z: &mat.VecDense{}, r: r},
		{z: mat.NewVecDense(3, nil), r: r},
		{z: mat.NewVecDense(2, nil), r: nil},
		{z: mat.NewVecDense(2, nil), r: mat.NewSymDense(2, []float64{-1, 0, 0, 1})},
	} {
		m, err := NewMeasurement("cam", test.z, test.r, nil, time.Time{})
		assert.Nil(m)
		assert.Error(err)
		assert.True(IsConfiguration(err))
	}
}

func TestErrors(t *testing.T) {
	assert := assert.New(t)

	err := NewDomainError("camera", "observe", "zero forward range: x = %v", 0.0)
	assert.True(IsDomain(err))
	assert.False(IsNumerical(err))
	assert.Contains(err.Error(), "camera")

	cause := errors.New("singular matrix")
	err = NewNumericalError("innovation covariance", cause)
	assert.True(IsNumerical(err))
	assert.True(pkgerrors.Is(err, cause))

	// wrapped errors are still recognised
	err = pkgerrors.Wrap(NewConfigurationError("bad dims: %d", 3), "add sensor")
	assert.True(IsConfiguration(err))
	assert.False(IsDomain(err))
}
