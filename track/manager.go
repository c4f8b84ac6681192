package track

import (
	"errors"
	"math"
	"sort"
	"time"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/assoc"
	"github.com/milosgajdos/go-mtt/estimate"
	"github.com/milosgajdos/go-mtt/kalman"
	"github.com/milosgajdos/go-mtt/kalman/ekf"
	"github.com/milosgajdos/go-mtt/kalman/kf"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrNotChronological is returned when a cycle is older than the previous one
var ErrNotChronological = errors.New("cycle timestamps must be in chronological order")

// sensorEntry is a registered sensor with its filter and associator
type sensorEntry struct {
	s mtt.Sensor
	f kalman.Filter
	a *assoc.Associator
}

// Manager owns a set of tracks and advances it one cycle at a time.
// Manager is not safe for concurrent use.
type Manager struct {
	// m is motion model of tracked objects
	m mtt.Motion
	// cfg is manager configuration
	cfg Config
	// axes is the number of position axes of the state
	axes int
	// sensors are registered sensors indexed by ID
	sensors map[string]*sensorEntry
	// order is sensor registration order
	order []string
	// tracks are live tracks ordered by ID
	tracks []*Track
	// nextID is the ID of the next created track
	nextID int64
	// last is the time of the last cycle
	last time.Time
	// started is set after the first cycle
	started bool
}

// NewManager creates new track manager for objects moving according to m and returns it.
// Motion state must be laid out as positions followed by velocities.
// It returns ConfigurationError if cfg is invalid or does not match m.
func NewManager(m mtt.Motion, cfg Config) (*Manager, error) {
	if m == nil {
		return nil, mtt.NewConfigurationError("nil motion model")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nx := m.Dim()
	if nx <= 0 || nx%2 != 0 {
		return nil, mtt.NewConfigurationError("invalid motion model dimension: %d", nx)
	}

	axes := nx / 2
	if len(cfg.InitVelocityStd) != axes {
		return nil, mtt.NewConfigurationError("invalid initial velocity std dimension: %d != %d", len(cfg.InitVelocityStd), axes)
	}

	cfg.InitVelocityStd = append([]float64(nil), cfg.InitVelocityStd...)

	return &Manager{
		m:       m,
		cfg:     cfg,
		axes:    axes,
		sensors: make(map[string]*sensorEntry),
		nextID:  1,
	}, nil
}

// AddSensor registers sensor s with the manager.
// Sensors with a fixed measurement matrix are filtered with KF, other sensors with EKF.
// It returns ConfigurationError if s is already registered or its state dimension does not match.
func (mg *Manager) AddSensor(s mtt.Sensor) error {
	if s == nil {
		return mtt.NewConfigurationError("nil sensor")
	}

	if _, ok := mg.sensors[s.ID()]; ok {
		return mtt.NewConfigurationError("duplicate sensor: %q", s.ID())
	}

	if nx, _ := s.Dims(); nx != mg.m.Dim() {
		return mtt.NewConfigurationError("sensor %q: state dimension %d != motion dimension %d", s.ID(), nx, mg.m.Dim())
	}

	if in, ok := s.(mtt.Initiator); ok {
		if _, nz := in.Dims(); nz != mg.axes {
			return mtt.NewConfigurationError("sensor %q: initiating measurement dimension %d != %d", s.ID(), nz, mg.axes)
		}
	}

	var f kalman.Filter
	var err error
	if _, ok := s.(mtt.Linear); ok {
		f, err = kf.New(mg.m, mg.cfg.Tolerance)
	} else {
		var opts []ekf.Option
		if mg.cfg.NumericJacobian {
			opts = append(opts, ekf.WithNumericJacobian())
		}
		f, err = ekf.New(mg.m, mg.cfg.Tolerance, opts...)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "sensor %q", s.ID())
	}

	a, err := assoc.New(f, assoc.Gate{Prob: mg.cfg.GateProb})
	if err != nil {
		return pkgerrors.Wrapf(err, "sensor %q", s.ID())
	}

	mg.sensors[s.ID()] = &sensorEntry{s: s, f: f, a: a}
	mg.order = append(mg.order, s.ID())

	return nil
}

// Sensors returns registered sensors in registration order
func (mg *Manager) Sensors() []mtt.Sensor {
	sensors := make([]mtt.Sensor, len(mg.order))
	for i, id := range mg.order {
		sensors[i] = mg.sensors[id].s
	}

	return sensors
}

// Config returns manager configuration
func (mg *Manager) Config() Config {
	cfg := mg.cfg
	cfg.InitVelocityStd = append([]float64(nil), mg.cfg.InitVelocityStd...)

	return cfg
}

// Cycle advances the track set to time ts using measurement batches given in arrival order.
// It predicts every track, associates every batch against the predicted tracks,
// corrects matched tracks, scores missed tracks, creates tracks from unassigned
// measurements and finally applies track lifecycle transitions.
// It returns ErrNotChronological if ts is before the previous cycle and ConfigurationError
// if a batch refers to an unknown sensor, repeats a sensor or contains invalid measurements.
// The track set is left unchanged when Cycle returns error. Once the batches are associated
// failures are scoped: a measurement with undefined model is dropped and a track whose
// update fails is deleted.
func (mg *Manager) Cycle(ts time.Time, batches ...mtt.Batch) (*Report, error) {
	if mg.started && ts.Before(mg.last) {
		return nil, ErrNotChronological
	}

	if err := mg.validate(batches); err != nil {
		return nil, err
	}

	dt := 0.0
	if mg.started {
		dt = ts.Sub(mg.last).Seconds()
	}
	if mg.cfg.MaxPredictDt > 0 && dt > mg.cfg.MaxPredictDt {
		dt = mg.cfg.MaxPredictDt
	}

	rep := &Report{Time: ts, Dt: dt}
	rep.Counters.Cycles = 1

	// (a) predict every track; diverged tracks do not take part in the cycle
	preds := make([]mtt.Estimate, len(mg.tracks))
	var cands []assoc.Candidate
	var live []int
	for i, t := range mg.tracks {
		pred, err := kalman.Predict(t.est, mg.m, dt, mg.cfg.Tolerance)
		if err != nil {
			if !mtt.IsNumerical(err) {
				return nil, pkgerrors.Wrapf(err, "track %d", t.ID)
			}
			opsf("track %d: prediction diverged: %v", t.ID, err)
			continue
		}
		preds[i] = pred
		cands = append(cands, assoc.Candidate{ID: t.ID, Estimate: pred})
		live = append(live, i)
	}
	rep.Counters.Predicted = len(live)

	// (b) associate every batch against the frozen predictions
	matrices, err := mg.associate(cands, batches)
	if err != nil {
		return nil, err
	}

	// serialisation point: the track set is mutated from here on
	mg.last = ts
	mg.started = true

	diverged := make(map[int64]bool)
	for i, t := range mg.tracks {
		if preds[i] == nil {
			diverged[t.ID] = true
			t.Status = Deleted
			continue
		}
		t.est = preds[i]
	}

	// (c) correct matched tracks in arrival order
	matched := make([]bool, len(live))
	seen := make([]bool, len(live))
	for k, b := range batches {
		e := mg.sensors[b.Sensor]
		am := matrices[k]
		pairs := am.Resolve()

		sa := SensorAssociation{
			Sensor:                 b.Sensor,
			TrackIDs:               make([]int64, len(live)),
			Matrix:                 am,
			Pairs:                  pairs,
			UnassignedMeasurements: am.UnassignedMeasurements(),
		}
		for row, i := range live {
			sa.TrackIDs[row] = mg.tracks[i].ID
			if am.Visible(row) {
				seen[row] = true
			}
		}
		for _, row := range am.UnassignedTracks() {
			sa.UnassignedTracks = append(sa.UnassignedTracks, sa.TrackIDs[row])
		}
		rep.Associations = append(rep.Associations, sa)
		rep.Counters.Associated += len(pairs)

		for _, p := range pairs {
			t := mg.tracks[live[p.Track]]
			if t.Status == Deleted {
				continue
			}

			m := b.Measurements[p.Measurement]
			upd, err := e.f.Update(t.est, m, e.s)
			if err != nil {
				switch {
				case mtt.IsDomain(err):
					opsf("sensor %s: track %d: dropped measurement %s: %v", b.Sensor, t.ID, m.ID(), err)
					rep.Counters.Dropped++
				case mtt.IsNumerical(err):
					opsf("sensor %s: track %d: update diverged: %v", b.Sensor, t.ID, err)
					diverged[t.ID] = true
					t.Status = Deleted
				default:
					opsf("sensor %s: track %d: update failed: %v", b.Sensor, t.ID, err)
					t.Status = Deleted
				}
				continue
			}

			t.est = upd
			t.Score += mg.cfg.ScoreStep
			t.clamp(mg.cfg.ScoreMin, mg.cfg.ScoreMax)
			t.Updated = ts
			matched[p.Track] = true
			rep.Counters.Updated++
		}
	}

	// (d) score missed tracks
	for row, i := range live {
		t := mg.tracks[i]
		if t.Status == Deleted {
			continue
		}

		switch {
		case matched[row]:
			t.Misses = 0
			t.Hits++
		case seen[row]:
			t.Score -= mg.cfg.ScoreStep
			t.clamp(mg.cfg.ScoreMin, mg.cfg.ScoreMax)
			t.Misses++
			t.Hits = 0
		}
		t.Age++
	}

	// (e) create tracks from unassigned measurements of initiating sensors
	for k, b := range batches {
		in, ok := mg.sensors[b.Sensor].s.(mtt.Initiator)
		if !ok {
			continue
		}

		for _, j := range rep.Associations[k].UnassignedMeasurements {
			if mg.cfg.MaxTracks > 0 && mg.liveCount() >= mg.cfg.MaxTracks {
				opsf("sensor %s: track limit %d reached, measurement %s not initiated", b.Sensor, mg.cfg.MaxTracks, b.Measurements[j].ID())
				break
			}

			t, err := mg.initiate(in, b.Measurements[j], ts)
			if err != nil {
				opsf("sensor %s: dropped measurement %s: %v", b.Sensor, b.Measurements[j].ID(), err)
				rep.Counters.Dropped++
				continue
			}

			diagf("track %d: created from sensor %s", t.ID, b.Sensor)
			mg.tracks = append(mg.tracks, t)
			rep.Created = append(rep.Created, t.ID)
			rep.Counters.Created++
		}
	}

	// (f) lifecycle transitions
	kept := mg.tracks[:0]
	for _, t := range mg.tracks {
		if t.Status != Deleted {
			if reason := mg.deleteReason(t); reason != "" {
				diagf("track %d: deleted: %s", t.ID, reason)
				t.Status = Deleted
			} else if t.Status == Tentative && (t.Score >= mg.cfg.ConfirmScore || t.Hits >= mg.cfg.HitsToConfirm) {
				diagf("track %d: confirmed: score %.3f hits %d", t.ID, t.Score, t.Hits)
				t.Status = Confirmed
				rep.Confirmed = append(rep.Confirmed, t.ID)
				rep.Counters.Confirmed++
			}
		}

		if t.Status == Deleted {
			if diverged[t.ID] {
				rep.Counters.Diverged++
			}
			rep.Deleted = append(rep.Deleted, t.ID)
			rep.Counters.Deleted++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(mg.tracks); i++ {
		mg.tracks[i] = nil
	}
	mg.tracks = kept

	tracef("cycle %s: dt=%.3f tracks=%d %+v", ts.Format(time.RFC3339Nano), dt, len(mg.tracks), rep.Counters)

	return rep, nil
}

// validate validates batches against registered sensors.
// Each sensor may deliver at most one batch per cycle.
func (mg *Manager) validate(batches []mtt.Batch) error {
	seen := make(map[string]int, len(batches))
	for k, b := range batches {
		e, ok := mg.sensors[b.Sensor]
		if !ok {
			return mtt.NewConfigurationError("batch %d: unknown sensor %q", k, b.Sensor)
		}

		if prev, ok := seen[b.Sensor]; ok {
			return mtt.NewConfigurationError("batch %d: sensor %q already delivered batch %d", k, b.Sensor, prev)
		}
		seen[b.Sensor] = k

		_, nz := e.s.Dims()
		for j, m := range b.Measurements {
			if m == nil {
				return mtt.NewConfigurationError("batch %d: nil measurement %d", k, j)
			}
			if m.Sensor() != b.Sensor {
				return mtt.NewConfigurationError("batch %d: measurement %d of sensor %q", k, j, m.Sensor())
			}
			if m.Dim() != nz {
				return mtt.NewConfigurationError("batch %d: measurement %d: invalid dimension: %d != %d", k, j, m.Dim(), nz)
			}
		}
	}

	return nil
}

// associate computes association matrices of all batches.
// Batches are associated concurrently when configured; candidates are read only.
func (mg *Manager) associate(cands []assoc.Candidate, batches []mtt.Batch) ([]*assoc.Matrix, error) {
	matrices := make([]*assoc.Matrix, len(batches))

	run := func(k int) error {
		b := batches[k]
		e := mg.sensors[b.Sensor]

		am, err := e.a.Associate(cands, b.Measurements, e.s)
		if err != nil {
			return pkgerrors.Wrapf(err, "sensor %q", b.Sensor)
		}
		matrices[k] = am

		return nil
	}

	if !mg.cfg.Concurrent || len(batches) < 2 {
		for k := range batches {
			if err := run(k); err != nil {
				return nil, err
			}
		}
		return matrices, nil
	}

	var g errgroup.Group
	for k := range batches {
		k := k
		g.Go(func() error {
			return run(k)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return matrices, nil
}

// initiate creates a tentative track from measurement m of sensor in
func (mg *Manager) initiate(in mtt.Initiator, m *mtt.Measurement, ts time.Time) (*Track, error) {
	pos, posCov, err := in.Initiate(m)
	if err != nil {
		return nil, err
	}

	nx := mg.m.Dim()
	x := mat.NewVecDense(nx, nil)
	p := mat.NewSymDense(nx, nil)
	for i := 0; i < mg.axes; i++ {
		x.SetVec(i, pos.AtVec(i))
		for j := i; j < mg.axes; j++ {
			p.SetSym(i, j, posCov.At(i, j))
		}
		std := mg.cfg.InitVelocityStd[i]
		p.SetSym(mg.axes+i, mg.axes+i, std*std)
	}

	est, err := estimate.NewBaseWithCov(x, p)
	if err != nil {
		return nil, err
	}

	t := &Track{
		ID:      mg.nextID,
		Status:  Tentative,
		Score:   mg.cfg.InitialScore,
		Created: ts,
		Updated: ts,
		est:     est,
	}
	mg.nextID++

	return t, nil
}

// deleteReason returns the reason track t must be deleted or empty string if it is healthy
func (mg *Manager) deleteReason(t *Track) string {
	switch {
	case t.Status == Confirmed && t.Score < mg.cfg.DeleteScore:
		return "confirmed track score below threshold"
	case t.Status == Tentative && t.Score < mg.cfg.TentativeDeleteScore:
		return "tentative track score below threshold"
	case t.Misses > mg.cfg.MaxMisses:
		return "too many consecutive misses"
	}

	cov := t.est.Cov()
	for i := 0; i < mg.axes; i++ {
		if v := cov.At(i, i); math.IsNaN(v) || v > mg.cfg.MaxPositionVariance {
			return "position variance above threshold"
		}
	}

	return ""
}

// liveCount returns the number of tracks which are not deleted
func (mg *Manager) liveCount() int {
	n := 0
	for _, t := range mg.tracks {
		if t.Status != Deleted {
			n++
		}
	}

	return n
}

// Tracks returns snapshots of all tracks ordered by ID
func (mg *Manager) Tracks() []*Track {
	tracks := make([]*Track, len(mg.tracks))
	for i, t := range mg.tracks {
		tracks[i] = t.snapshot()
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })

	return tracks
}

// Confirmed returns snapshots of confirmed tracks ordered by ID
func (mg *Manager) Confirmed() []*Track {
	var tracks []*Track
	for _, t := range mg.Tracks() {
		if t.Status == Confirmed {
			tracks = append(tracks, t)
		}
	}

	return tracks
}

// Track returns snapshot of track with given id.
// It returns false if no such track exists.
func (mg *Manager) Track(id int64) (*Track, bool) {
	for _, t := range mg.tracks {
		if t.ID == id {
			return t.snapshot(), true
		}
	}

	return nil, false
}

// Len returns the number of tracks
func (mg *Manager) Len() int {
	return len(mg.tracks)
}

// Reset removes all tracks and forgets the last cycle time.
// Track IDs keep increasing after Reset.
func (mg *Manager) Reset() {
	mg.tracks = nil
	mg.last = time.Time{}
	mg.started = false
}
