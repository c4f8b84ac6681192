package track

import (
	"bytes"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/config"
	"github.com/milosgajdos/go-mtt/frame"
	"github.com/milosgajdos/go-mtt/motion"
	"github.com/milosgajdos/go-mtt/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	cv    *motion.ConstantVelocity
	front *sensor.Lidar
	rear  *sensor.Lidar
	cam   *sensor.Camera
	lidR  *mat.SymDense
	camR  *mat.SymDense
	t0    time.Time
)

const dt = 100 * time.Millisecond

func setup() {
	cv, _ = motion.NewConstantVelocity(3, 3.0)
	front, _ = sensor.NewLidar("front", nil, sensor.FOV{Min: -math.Pi / 4, Max: math.Pi / 4})
	rear, _ = sensor.NewLidar("rear", frame.NewYaw(math.Pi, r3.Vec{}), sensor.FOV{Min: -math.Pi / 4, Max: math.Pi / 4})
	cam, _ = sensor.NewCamera("camera", nil, sensor.Intrinsics{FocalRow: 1000, FocalCol: 1000, PrincipalRow: 600, PrincipalCol: 400}, sensor.FullFOV)

	lidR = mat.NewSymDense(3, []float64{0.01, 0, 0, 0, 0.01, 0, 0, 0, 0.01})
	camR = mat.NewSymDense(2, []float64{25, 0, 0, 25})
	t0 = time.Unix(1000, 0)
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

// truth returns target state at cycle k
func truth(k int) *mat.VecDense {
	s := float64(k) * dt.Seconds()
	return mat.NewVecDense(6, []float64{10 + 2*s, 1, 0, 2, 0, 0})
}

func observe(t *testing.T, s mtt.Sensor, r mat.Symmetric, x mat.Vector, ts time.Time) *mtt.Measurement {
	t.Helper()

	z, err := s.Observe(x)
	require.NoError(t, err)

	m, err := mtt.NewMeasurement(s.ID(), z, r, nil, ts)
	require.NoError(t, err)

	return m
}

func newManager(t *testing.T, cfg Config, sensors ...mtt.Sensor) *Manager {
	t.Helper()

	mg, err := NewManager(cv, cfg)
	require.NoError(t, err)

	for _, s := range sensors {
		require.NoError(t, mg.AddSensor(s))
	}

	return mg
}

// confirm runs cycles 0..4 observing the target with the front lidar
func confirm(t *testing.T, mg *Manager) {
	t.Helper()

	for k := 0; k < 5; k++ {
		ts := t0.Add(time.Duration(k) * dt)
		_, err := mg.Cycle(ts, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(k), ts)}})
		require.NoError(t, err)
	}
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.NoError(cfg.Validate())
	assert.Equal(0.995, cfg.GateProb)
	assert.InDelta(1.0/6.0, cfg.ScoreStep, 1e-12)
	assert.Equal(4, cfg.HitsToConfirm)
	assert.Equal(5, cfg.MaxMisses)
	assert.Equal(9.0, cfg.MaxPositionVariance)
	assert.Equal([]float64{50, 50, 5}, cfg.InitVelocityStd)
	assert.True(cfg.Concurrent)

	for _, mod := range []func(*Config){
		func(c *Config) { c.GateProb = 1 },
		func(c *Config) { c.ScoreStep = 0 },
		func(c *Config) { c.ScoreMin, c.ScoreMax = 1, 0 },
		func(c *Config) { c.ConfirmScore = 2 },
		func(c *Config) { c.HitsToConfirm = 0 },
		func(c *Config) { c.MaxMisses = -1 },
		func(c *Config) { c.MaxPredictDt = -1 },
		func(c *Config) { c.MaxPositionVariance = math.NaN() },
		func(c *Config) { c.Tolerance.MaxCond = 0 },
		func(c *Config) { c.InitVelocityStd = []float64{-1, 1, 1} },
	} {
		c := DefaultConfig()
		mod(&c)
		assert.True(mtt.IsConfiguration(c.Validate()))
	}

	f := 0.9
	tc := config.EmptyTuningConfig()
	tc.GateProb = &f
	assert.Equal(0.9, ConfigFromTuning(tc).GateProb)
}

func TestNewManager(t *testing.T) {
	assert := assert.New(t)

	mg, err := NewManager(cv, DefaultConfig())
	assert.NoError(err)
	assert.Equal(0, mg.Len())

	_, err = NewManager(nil, DefaultConfig())
	assert.True(mtt.IsConfiguration(err))

	bad := DefaultConfig()
	bad.InitVelocityStd = []float64{1, 1}
	_, err = NewManager(cv, bad)
	assert.True(mtt.IsConfiguration(err))

	// config is copied
	cfg := DefaultConfig()
	mg, err = NewManager(cv, cfg)
	require.NoError(t, err)
	cfg.InitVelocityStd[0] = 1
	assert.Equal(50.0, mg.Config().InitVelocityStd[0])
}

func TestAddSensor(t *testing.T) {
	assert := assert.New(t)

	mg, err := NewManager(cv, DefaultConfig())
	require.NoError(t, err)

	assert.NoError(mg.AddSensor(front))
	assert.NoError(mg.AddSensor(cam))
	assert.True(mtt.IsConfiguration(mg.AddSensor(front)))
	assert.True(mtt.IsConfiguration(mg.AddSensor(nil)))

	pos, err := sensor.NewLinear("pos", mat.NewDense(1, 2, []float64{1, 0}))
	require.NoError(t, err)
	assert.True(mtt.IsConfiguration(mg.AddSensor(pos)))

	sensors := mg.Sensors()
	assert.Len(sensors, 2)
	assert.Equal("front", sensors[0].ID())
	assert.Equal("camera", sensors[1].ID())
}

func TestCycleErrors(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)
	confirm(t, mg)
	before := mg.Tracks()

	ts := t0.Add(5 * dt)

	_, err := mg.Cycle(t0)
	assert.ErrorIs(err, ErrNotChronological)

	_, err = mg.Cycle(ts, mtt.Batch{Sensor: "unknown"})
	assert.True(mtt.IsConfiguration(err))

	// one batch per sensor and cycle
	_, err = mg.Cycle(ts,
		mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(5), ts)}},
		mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(5), ts)}},
	)
	assert.True(mtt.IsConfiguration(err))

	_, err = mg.Cycle(ts, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, cam, camR, truth(5), ts)}})
	assert.True(mtt.IsConfiguration(err))

	m, err := mtt.NewMeasurement("front", mat.NewVecDense(2, nil), camR, nil, ts)
	require.NoError(t, err)
	_, err = mg.Cycle(ts, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{m}})
	assert.True(mtt.IsConfiguration(err))

	// failed cycles leave tracks untouched
	after := mg.Tracks()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(before[i].Score, after[i].Score)
		assert.True(mat.Equal(before[i].Val(), after[i].Val()))
	}
}

func TestConfirmPersistentTarget(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)

	var total Counters
	for k := 0; k < 5; k++ {
		ts := t0.Add(time.Duration(k) * dt)
		rep, err := mg.Cycle(ts, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(k), ts)}})
		require.NoError(t, err)
		total.Add(rep.Counters)

		switch k {
		case 0:
			assert.Equal([]int64{1}, rep.Created)
			assert.Equal(0.0, rep.Dt)
		case 4:
			assert.Equal([]int64{1}, rep.Confirmed)
		default:
			assert.Empty(rep.Created)
			assert.Empty(rep.Confirmed)
			assert.InDelta(dt.Seconds(), rep.Dt, 1e-12)
			require.Len(t, rep.Associations, 1)
			assert.Equal([]int64{1}, rep.Associations[0].TrackIDs)
			assert.Len(rep.Associations[0].Pairs, 1)
		}
	}

	assert.Equal(5, total.Cycles)
	assert.Equal(1, total.Created)
	assert.Equal(4, total.Updated)
	assert.Equal(1, total.Confirmed)
	assert.Equal(0, total.Deleted)

	confirmed := mg.Confirmed()
	require.Len(t, confirmed, 1)
	tr := confirmed[0]
	assert.Equal(int64(1), tr.ID)
	assert.Equal(4, tr.Hits)
	assert.Equal(4, tr.Age)
	assert.Equal(0, tr.Misses)
	assert.InDelta(5.0/6.0, tr.Score, 1e-9)
	assert.Equal(t0, tr.Created)
	assert.Equal(t0.Add(4*dt), tr.Updated)

	x := truth(4)
	for i := 0; i < 3; i++ {
		assert.InDelta(x.AtVec(i), tr.Val().AtVec(i), 0.05)
	}
	assert.InDelta(2.0, tr.Val().AtVec(3), 0.5)
}

func TestDeleteVanishedTarget(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)
	confirm(t, mg)

	ts := t0.Add(5 * dt)
	rep, err := mg.Cycle(ts, mtt.Batch{Sensor: "front"})
	require.NoError(t, err)
	assert.Empty(rep.Deleted)
	assert.Equal([]int64{1}, rep.Associations[0].UnassignedTracks)

	tr, ok := mg.Track(1)
	require.True(t, ok)
	assert.Equal(1, tr.Misses)
	assert.Equal(0, tr.Hits)
	assert.InDelta(4.0/6.0, tr.Score, 1e-9)

	rep, err = mg.Cycle(ts.Add(dt), mtt.Batch{Sensor: "front"})
	require.NoError(t, err)
	assert.Equal([]int64{1}, rep.Deleted)
	assert.Equal(0, mg.Len())

	_, ok = mg.Track(1)
	assert.False(ok)
}

func TestDeleteTentativeTrack(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)

	rep, err := mg.Cycle(t0, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(0), t0)}})
	require.NoError(t, err)
	assert.Equal([]int64{1}, rep.Created)

	rep, err = mg.Cycle(t0.Add(dt), mtt.Batch{Sensor: "front"})
	require.NoError(t, err)
	assert.Equal([]int64{1}, rep.Deleted)
	assert.Empty(mg.Tracks())
}

func TestPositionVarianceGuard(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front, rear)

	_, err := mg.Cycle(t0, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(0), t0)}})
	require.NoError(t, err)

	// nobody sees the track; its position uncertainty grows past the guard
	rep, err := mg.Cycle(t0.Add(time.Second), mtt.Batch{Sensor: "rear"})
	require.NoError(t, err)
	assert.Equal([]int64{1}, rep.Deleted)
	assert.Equal(0, rep.Counters.Diverged)
}

func TestNoPenaltyOutsideFOV(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front, rear)
	confirm(t, mg)

	before, ok := mg.Track(1)
	require.True(t, ok)

	ts := t0.Add(5 * dt)
	rep, err := mg.Cycle(ts,
		mtt.Batch{Sensor: "rear"},
		mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(5), ts)}},
	)
	require.NoError(t, err)
	require.Len(t, rep.Associations, 2)
	assert.Equal("rear", rep.Associations[0].Sensor)
	assert.False(rep.Associations[0].Matrix.Visible(0))
	assert.True(rep.Associations[1].Matrix.Visible(0))

	tr, ok := mg.Track(1)
	require.True(t, ok)
	assert.InDelta(before.Score+1.0/6.0, tr.Score, 1e-9)
	assert.Equal(0, tr.Misses)

	// only the rear sensor reports: the track is not seen and keeps its score
	rep, err = mg.Cycle(ts.Add(dt), mtt.Batch{Sensor: "rear"})
	require.NoError(t, err)
	assert.Empty(rep.Deleted)

	after, ok := mg.Track(1)
	require.True(t, ok)
	assert.Equal(tr.Score, after.Score)
	assert.Equal(0, after.Misses)
	assert.Equal(tr.Hits, after.Hits)
	assert.Equal(tr.Age+1, after.Age)
	assert.Equal(Confirmed, after.Status)
}

func TestCameraUpdate(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front, cam)
	confirm(t, mg)

	ts := t0.Add(5 * dt)
	far, err := mtt.NewMeasurement("camera", mat.NewVecDense(2, []float64{5000, 5000}), camR, nil, ts)
	require.NoError(t, err)

	rep, err := mg.Cycle(ts, mtt.Batch{Sensor: "camera", Measurements: []*mtt.Measurement{
		observe(t, cam, camR, truth(5), ts),
		far,
	}})
	require.NoError(t, err)

	assert.Equal(1, rep.Counters.Updated)
	assert.Equal(1, rep.Counters.Associated)
	assert.Equal([]int{1}, rep.Associations[0].UnassignedMeasurements)
	// cameras do not initiate tracks
	assert.Empty(rep.Created)
	assert.Equal(1, mg.Len())

	tr, ok := mg.Track(1)
	require.True(t, ok)
	assert.Equal(ts, tr.Updated)
}

func TestUndefinedProjectionNoPenalty(t *testing.T) {
	assert := assert.New(t)

	wide, err := sensor.NewLidar("wide", nil, sensor.FullFOV)
	require.NoError(t, err)

	mg := newManager(t, DefaultConfig(), wide, cam)

	// the track sits in the camera plane where the projection is undefined
	x := mat.NewVecDense(6, []float64{0, 1, 0, 0, 0, 0})
	rep, err := mg.Cycle(t0, mtt.Batch{Sensor: "wide", Measurements: []*mtt.Measurement{observe(t, wide, lidR, x, t0)}})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, rep.Created)

	before, ok := mg.Track(1)
	require.True(t, ok)

	z := mat.NewVecDense(2, []float64{600, 400})
	m, err := mtt.NewMeasurement("camera", z, camR, nil, t0)
	require.NoError(t, err)

	rep, err = mg.Cycle(t0, mtt.Batch{Sensor: "camera", Measurements: []*mtt.Measurement{m}})
	require.NoError(t, err)

	am := rep.Associations[0].Matrix
	assert.True(am.Undefined(0))
	assert.False(am.Visible(0))
	assert.Empty(rep.Deleted)

	after, ok := mg.Track(1)
	require.True(t, ok)
	assert.Equal(before.Score, after.Score)
	assert.Equal(0, after.Misses)
	assert.Equal(Tentative, after.Status)
}

// failing is a lidar whose measurement model fails after a number of evaluations
type failing struct {
	*sensor.Lidar
	left int
}

func (f *failing) Observe(x mat.Vector) (mat.Vector, error) {
	if f.left == 0 {
		return nil, errors.New("sensor fault")
	}
	f.left--

	return f.Lidar.Observe(x)
}

func TestUpdateFailureDeletesTrack(t *testing.T) {
	assert := assert.New(t)

	l, err := sensor.NewLidar("failing", nil, sensor.FOV{Min: -math.Pi / 4, Max: math.Pi / 4})
	require.NoError(t, err)
	// association evaluates the model once, the update fails
	s := &failing{Lidar: l, left: 1}

	mg := newManager(t, DefaultConfig(), s)

	meas := func(ts time.Time) *mtt.Measurement {
		m, err := mtt.NewMeasurement("failing", mat.NewVecDense(3, []float64{10, 1, 0}), lidR, nil, ts)
		require.NoError(t, err)
		return m
	}

	_, err = mg.Cycle(t0, mtt.Batch{Sensor: "failing", Measurements: []*mtt.Measurement{meas(t0)}})
	require.NoError(t, err)
	require.Equal(t, 1, mg.Len())

	rep, err := mg.Cycle(t0.Add(dt), mtt.Batch{Sensor: "failing", Measurements: []*mtt.Measurement{meas(t0.Add(dt))}})
	require.NoError(t, err)
	assert.Equal(1, rep.Counters.Associated)
	assert.Equal(0, rep.Counters.Updated)
	assert.Equal([]int64{1}, rep.Deleted)
	assert.Equal(0, rep.Counters.Diverged)
	assert.Empty(rep.Created)
	assert.Equal(0, mg.Len())
}

func TestConcurrentAssociation(t *testing.T) {
	assert := assert.New(t)

	side, err := sensor.NewLidar("side", frame.NewYaw(0.3, r3.Vec{X: 0.5}), sensor.FullFOV)
	require.NoError(t, err)

	run := func(concurrent bool) []*Track {
		cfg := DefaultConfig()
		cfg.Concurrent = concurrent
		mg := newManager(t, cfg, front, side)

		for k := 0; k < 8; k++ {
			ts := t0.Add(time.Duration(k) * dt)
			_, err := mg.Cycle(ts,
				mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(k), ts)}},
				mtt.Batch{Sensor: "side", Measurements: []*mtt.Measurement{observe(t, side, lidR, truth(k), ts)}},
			)
			require.NoError(t, err)
		}

		return mg.Tracks()
	}

	serial := run(false)
	parallel := run(true)

	require.Equal(t, len(serial), len(parallel))
	for i := range serial {
		assert.Equal(serial[i].ID, parallel[i].ID)
		assert.Equal(serial[i].Status, parallel[i].Status)
		assert.Equal(serial[i].Score, parallel[i].Score)
		assert.True(mat.EqualApprox(serial[i].Val(), parallel[i].Val(), 1e-12))
		assert.True(mat.EqualApprox(serial[i].Cov(), parallel[i].Cov(), 1e-12))
	}
}

func TestTrackNumbering(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.MaxTracks = 2
	mg := newManager(t, cfg, front)

	meas := func(ts time.Time, ys ...float64) mtt.Batch {
		b := mtt.Batch{Sensor: "front"}
		for _, y := range ys {
			b.Measurements = append(b.Measurements, observe(t, front, lidR, mat.NewVecDense(6, []float64{20, y, 0, 0, 0, 0}), ts))
		}
		return b
	}

	rep, err := mg.Cycle(t0, meas(t0, -5, 0, 5))
	require.NoError(t, err)
	assert.Equal([]int64{1, 2}, rep.Created)
	assert.Equal(2, mg.Len())

	mg.Reset()
	assert.Equal(0, mg.Len())

	// cycle time is forgotten after reset
	rep, err = mg.Cycle(t0.Add(-time.Second), meas(t0, 0))
	require.NoError(t, err)
	assert.Equal([]int64{3}, rep.Created)
	assert.Equal(0.0, rep.Dt)

	ids := []int64{}
	for _, tr := range mg.Tracks() {
		ids = append(ids, tr.ID)
	}
	assert.Equal([]int64{3}, ids)
}

func TestMaxPredictDt(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.MaxPredictDt = 1.0
	mg := newManager(t, cfg, front)

	_, err := mg.Cycle(t0)
	require.NoError(t, err)

	rep, err := mg.Cycle(t0.Add(10 * time.Second))
	require.NoError(t, err)
	assert.Equal(1.0, rep.Dt)
}

func TestPredictElapsedTime(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)
	assert.Equal(0.0, mg.Config().MaxPredictDt)
	confirm(t, mg)

	// the target keeps moving through a 3 s dropout
	ts := t0.Add(4*dt + 3*time.Second)
	rep, err := mg.Cycle(ts, mtt.Batch{Sensor: "front", Measurements: []*mtt.Measurement{observe(t, front, lidR, truth(34), ts)}})
	require.NoError(t, err)

	assert.InDelta(3.0, rep.Dt, 1e-9)
	assert.Equal(1, rep.Counters.Updated)
	assert.Empty(rep.Created)

	tr, ok := mg.Track(1)
	require.True(t, ok)
	assert.InDelta(truth(34).AtVec(0), tr.Val().AtVec(0), 0.5)
}

func TestSnapshots(t *testing.T) {
	assert := assert.New(t)

	mg := newManager(t, DefaultConfig(), front)
	confirm(t, mg)

	tr, ok := mg.Track(1)
	require.True(t, ok)
	tr.Score = -1
	tr.Status = Deleted

	again, ok := mg.Track(1)
	require.True(t, ok)
	assert.InDelta(5.0/6.0, again.Score, 1e-9)
	assert.Equal(Confirmed, again.Status)
	assert.Equal(again.Val(), again.Estimate().Val())
}

func TestCountersAdd(t *testing.T) {
	assert := assert.New(t)

	var c Counters
	c.Add(Counters{Cycles: 1, Updated: 2, Dropped: 1})
	c.Add(Counters{Cycles: 1, Created: 3, Diverged: 1, Deleted: 1})
	assert.Equal(Counters{Cycles: 2, Updated: 2, Created: 3, Diverged: 1, Deleted: 1, Dropped: 1}, c)
}

func TestLogStreams(t *testing.T) {
	assert := assert.New(t)

	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	mg := newManager(t, DefaultConfig(), front)
	confirm(t, mg)

	assert.Contains(diag.String(), "[track] ")
	assert.Contains(diag.String(), "track 1: created")
	assert.Contains(diag.String(), "track 1: confirmed")
}
