package kf

import (
	"os"
	"testing"
	"time"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/estimate"
	"github.com/milosgajdos/go-mtt/frame"
	"github.com/milosgajdos/go-mtt/kalman"
	"github.com/milosgajdos/go-mtt/motion"
	"github.com/milosgajdos/go-mtt/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	cv1   *motion.ConstantVelocity
	cv3   *motion.ConstantVelocity
	pos   *sensor.Linear
	lidar *sensor.Lidar
	init0 *estimate.Base
)

func setup() {
	cv1, _ = motion.NewConstantVelocity(1, 0)
	cv3, _ = motion.NewConstantVelocity(3, 0)

	pos, _ = sensor.NewLinear("pos", mat.NewDense(1, 2, []float64{1, 0}))
	lidar, _ = sensor.NewLidar("lidar", frame.NewYaw(0.2, r3.Vec{X: 1, Z: 1}), sensor.FullFOV)

	init0, _ = estimate.NewBaseWithCov(mat.NewVecDense(2, []float64{0, 0}), mat.NewSymDense(2, []float64{25, 0, 0, 25}))
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestKFNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cv1, kalman.DefaultTolerance())
	assert.NoError(err)
	assert.NotNil(f)
	assert.Equal(cv1, f.Motion())

	f, err = New(nil, kalman.DefaultTolerance())
	assert.Nil(f)
	assert.True(mtt.IsConfiguration(err))
}

func TestKFScenario(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cv1, kalman.DefaultTolerance())
	require.NoError(t, err)

	pred, err := f.Predict(init0, 1.0)
	require.NoError(t, err)

	m, err := mtt.NewMeasurement("pos", mat.NewVecDense(1, []float64{1}), mat.NewSymDense(1, []float64{1}), nil, time.Time{})
	require.NoError(t, err)

	est, err := f.Update(pred, m, pos)
	assert.NoError(err)

	x0 := est.Val().AtVec(0)
	assert.True(x0 > 0 && x0 < 1, "x[0] = %v", x0)
	assert.True(est.Cov().At(0, 0) < 25, "P[0,0] = %v", est.Cov().At(0, 0))
}

func TestKFExactMeasurement(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cv3, kalman.DefaultTolerance())
	require.NoError(t, err)

	p := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		p.SetSym(i, i, 4.0)
	}
	est, err := estimate.NewBaseWithCov(mat.NewVecDense(6, []float64{10, 2, 0, 1, 1, 0}), p)
	require.NoError(t, err)

	pred, err := f.Predict(est, 0.5)
	require.NoError(t, err)

	truth := mat.NewVecDense(6, []float64{12, 1, 0.5, 1, 1, 0})
	z, err := lidar.Observe(truth)
	require.NoError(t, err)

	m, err := mtt.NewMeasurement("lidar", z, mat.NewSymDense(3, nil), nil, time.Time{})
	require.NoError(t, err)

	upd, err := f.Update(pred, m, lidar)
	require.NoError(t, err)

	// measured position components match the truth after a single update
	for i := 0; i < 3; i++ {
		assert.InDelta(truth.AtVec(i), upd.Val().AtVec(i), 1e-6)
		assert.InDelta(0.0, upd.Cov().At(i, i), 1e-6)
	}
}

func TestKFInnovation(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cv1, kalman.DefaultTolerance())
	require.NoError(t, err)

	m, err := mtt.NewMeasurement("pos", mat.NewVecDense(1, []float64{3}), mat.NewSymDense(1, []float64{1}), nil, time.Time{})
	require.NoError(t, err)

	inn, err := f.Innovation(init0, m, pos)
	assert.NoError(err)
	assert.Equal(3.0, inn.Gamma.AtVec(0))
	assert.InDelta(9.0/26.0, inn.Mahalanobis(), 1e-12)

	cam, err := sensor.NewCamera("pos", nil, sensor.Intrinsics{FocalRow: 1, FocalCol: 1}, sensor.FullFOV)
	require.NoError(t, err)
	_, err = f.Innovation(init0, m, cam)
	assert.True(mtt.IsConfiguration(err))

	_, err = f.Innovation(init0, m, lidar)
	assert.True(mtt.IsConfiguration(err))
}

func TestKFMeasurementTransform(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cv3, kalman.DefaultTolerance())
	require.NoError(t, err)

	p := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		p.SetSym(i, i, 1.0)
	}
	est, err := estimate.NewBaseWithCov(mat.NewVecDense(6, []float64{10, 0, 0, 0, 0, 0}), p)
	require.NoError(t, err)

	// the object is seen straight ahead by a sensor turned to the left at capture time
	tr := frame.NewYaw(0.5, r3.Vec{})
	z := tr.ToSensor(r3.Vec{X: 10})
	r := mat.NewSymDense(3, []float64{0.1, 0, 0, 0, 0.1, 0, 0, 0, 0.1})
	m, err := mtt.NewMeasurement("lidar", mat.NewVecDense(3, []float64{z.X, z.Y, z.Z}), r, tr, time.Time{})
	require.NoError(t, err)

	inn, err := f.Innovation(est, m, lidar)
	assert.NoError(err)
	assert.InDelta(0.0, inn.Mahalanobis(), 1e-9)
}
