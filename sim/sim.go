// Package sim generates deterministic ground truth scenarios for multi-target trackers.
package sim

import (
	"sort"
	"time"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/noise"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// processNoise is noise which can be restarted from its seed
type processNoise interface {
	mtt.Noise
	Reset()
}

func newZeroNoise(size int) (processNoise, error) {
	return noise.NewZero(size)
}

func newGaussianNoise(mean []float64, cov mat.Symmetric, seed uint64) (processNoise, error) {
	return noise.NewGaussian(mean, cov, seed)
}

// Config configures a scenario
type Config struct {
	// Start is the time of step 0
	Start time.Time
	// Step is the time between two steps
	Step time.Duration
	// Seed seeds all random sources of the scenario
	Seed uint64
	// ProcessNoise enables target process noise drawn from the motion model
	ProcessNoise bool
}

// sensorEntry is a simulated sensor
type sensorEntry struct {
	s  mtt.Sensor
	r  *mat.SymDense
	pd float64
	n  processNoise
}

// Scenario simulates targets moving according to a motion model and observed by a set of sensors.
// Given the same Config, sensors and targets a Scenario produces the same measurements.
type Scenario struct {
	// m is motion model of the targets
	m mtt.Motion
	// cfg is scenario configuration
	cfg Config
	// targets are simulated targets
	targets []*Target
	// sensors are simulated sensors in registration order
	sensors []*sensorEntry
	// w is process noise
	w processNoise
	// rnd drives detection draws
	rnd *rand.Rand
	// step is the next step
	step int
}

// Frame is a single simulated step
type Frame struct {
	// Step is the step number
	Step int
	// Time is the time of the step
	Time time.Time
	// Truth maps target IDs to their states
	Truth map[int]mat.Vector
	// Batches contains one batch per sensor in registration order
	Batches []mtt.Batch
}

// New creates new scenario of targets moving according to m and returns it.
// It returns ConfigurationError if the time step is not positive.
func New(m mtt.Motion, cfg Config) (*Scenario, error) {
	if m == nil {
		return nil, mtt.NewConfigurationError("nil motion model")
	}

	if cfg.Step <= 0 {
		return nil, mtt.NewConfigurationError("invalid scenario step: %v", cfg.Step)
	}

	var w processNoise
	if cfg.ProcessNoise {
		var err error
		w, err = newProcessNoise(m, cfg.Step.Seconds(), cfg.Seed)
		if err != nil {
			return nil, err
		}
	}

	return &Scenario{
		m:   m,
		cfg: cfg,
		w:   w,
		rnd: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// AddTarget adds target with initial state x0 which exists between steps first and last.
// Negative last keeps the target for the rest of the scenario.
// It returns the ID of the new target or ConfigurationError if x0 does not match the motion model.
func (s *Scenario) AddTarget(x0 []float64, first, last int) (int, error) {
	if len(x0) != s.m.Dim() {
		return 0, mtt.NewConfigurationError("invalid target state dimension: %d != %d", len(x0), s.m.Dim())
	}

	if first < 0 || (last >= 0 && last < first) {
		return 0, mtt.NewConfigurationError("invalid target lifetime: [%d, %d]", first, last)
	}

	if floats.HasNaN(x0) {
		return 0, mtt.NewConfigurationError("invalid target state: NaN")
	}

	t := &Target{
		ID:    len(s.targets),
		First: first,
		Last:  last,
		x0:    mat.NewVecDense(len(x0), append([]float64(nil), x0...)),
	}
	t.x = mat.VecDenseCopyOf(t.x0)
	s.targets = append(s.targets, t)

	return t.ID, nil
}

// AddSensor adds sensor s with measurement noise covariance r and detection probability pd.
// It returns ConfigurationError if r does not match the sensor or pd is not in (0, 1].
func (s *Scenario) AddSensor(sen mtt.Sensor, r mat.Symmetric, pd float64) error {
	if sen == nil {
		return mtt.NewConfigurationError("nil sensor")
	}

	nx, nz := sen.Dims()
	if nx != s.m.Dim() {
		return mtt.NewConfigurationError("sensor %s state dimension mismatch: %d != %d", sen.ID(), nx, s.m.Dim())
	}

	if r == nil || r.SymmetricDim() != nz {
		return mtt.NewConfigurationError("sensor %s invalid noise covariance", sen.ID())
	}

	if pd <= 0 || pd > 1 {
		return mtt.NewConfigurationError("sensor %s invalid detection probability: %v", sen.ID(), pd)
	}

	c := mat.NewSymDense(nz, nil)
	c.CopySym(r)

	n, err := newGaussianNoise(make([]float64, nz), c, s.cfg.Seed+uint64(len(s.sensors))+1)
	if err != nil {
		return err
	}

	s.sensors = append(s.sensors, &sensorEntry{s: sen, r: c, pd: pd, n: n})

	return nil
}

// Targets returns scenario targets
func (s *Scenario) Targets() []*Target {
	return s.targets
}

// Next simulates the next step and returns it.
// Targets are propagated between steps; measurements are taken only of live targets in sensor FOV.
func (s *Scenario) Next() (*Frame, error) {
	k := s.step
	ts := s.cfg.Start.Add(time.Duration(k) * s.cfg.Step)

	if k > 0 {
		f := s.m.Transition(s.cfg.Step.Seconds())
		for _, t := range s.targets {
			if k <= t.First {
				continue
			}

			var w mat.Vector
			if s.w != nil {
				w = s.w.Sample()
			}
			t.propagate(f, w)
		}
	}

	fr := &Frame{
		Step:  k,
		Time:  ts,
		Truth: make(map[int]mat.Vector),
	}

	for _, t := range s.targets {
		if t.Alive(k) {
			fr.Truth[t.ID] = t.State()
		}
	}

	ids := make([]int, 0, len(fr.Truth))
	for id := range fr.Truth {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, e := range s.sensors {
		b := mtt.Batch{Sensor: e.s.ID()}
		for _, id := range ids {
			x := fr.Truth[id]
			if !e.s.InFOV(x) {
				continue
			}

			if s.rnd.Float64() >= e.pd {
				continue
			}

			z, err := e.s.Observe(x)
			if err != nil {
				return nil, err
			}

			zn := mat.VecDenseCopyOf(z)
			zn.AddVec(zn, e.n.Sample())

			m, err := mtt.NewMeasurement(e.s.ID(), zn, e.r, nil, ts)
			if err != nil {
				return nil, err
			}
			b.Measurements = append(b.Measurements, m)
		}
		fr.Batches = append(fr.Batches, b)
	}

	s.step++

	return fr, nil
}

// Reset rewinds the scenario to step 0.
// Replaying a reset scenario produces the same frames.
func (s *Scenario) Reset() {
	s.step = 0
	s.rnd = rand.New(rand.NewSource(s.cfg.Seed))

	if s.w != nil {
		s.w.Reset()
	}

	for _, e := range s.sensors {
		e.n.Reset()
	}

	for _, t := range s.targets {
		t.x = mat.VecDenseCopyOf(t.x0)
	}
}

// Run simulates n steps and returns them
func (s *Scenario) Run(n int) ([]*Frame, error) {
	frames := make([]*Frame, 0, n)
	for i := 0; i < n; i++ {
		fr, err := s.Next()
		if err != nil {
			return nil, err
		}
		frames = append(frames, fr)
	}

	return frames, nil
}
