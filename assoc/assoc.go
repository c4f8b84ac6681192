// Package assoc builds gated association matrices between tracks and measurements
// and resolves them with greedy global nearest neighbour assignment.
package assoc

import (
	"math"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/kalman"
	"github.com/pkg/errors"
)

// Candidate is a track estimate considered for association
type Candidate struct {
	// ID is track ID
	ID int64
	// Estimate is predicted track estimate
	Estimate mtt.Estimate
}

// Associator computes association matrices
type Associator struct {
	// f computes innovations
	f kalman.Filter
	// gate is validation gate
	gate Gate
}

// New creates new Associator which computes innovations using filter f and returns it.
// It returns ConfigurationError if f is nil or gate is invalid.
func New(f kalman.Filter, gate Gate) (*Associator, error) {
	if f == nil {
		return nil, mtt.NewConfigurationError("nil filter")
	}

	if err := gate.Validate(); err != nil {
		return nil, err
	}

	return &Associator{
		f:    f,
		gate: gate,
	}, nil
}

// Gate returns associator validation gate
func (a *Associator) Gate() Gate {
	return a.gate
}

// Associate builds association matrix between candidates and measurements produced by sensor s.
// Pairs outside the sensor field of view, outside the gate or with undefined
// measurement model are unreachable. The field of view of each pair is evaluated with the
// sensor mounted at the transform the measurement was captured with.
// A row is visible if the measurement model was defined for at least one measurement in
// the field of view; with no measurements, if the track is in the field of view of s.
// Associate does not modify any of its inputs.
// It returns ConfigurationError if any measurement was produced by another sensor or has invalid dimension.
func (a *Associator) Associate(cands []Candidate, meas []*mtt.Measurement, s mtt.Sensor) (*Matrix, error) {
	_, nz := s.Dims()
	for j, m := range meas {
		if m.Sensor() != s.ID() {
			opsf("sensor %s: rejected batch: measurement %s of sensor %s", s.ID(), m.ID(), m.Sensor())
			return nil, mtt.NewConfigurationError("measurement %d: sensor %q != %q", j, m.Sensor(), s.ID())
		}
		if m.Dim() != nz {
			return nil, mtt.NewConfigurationError("measurement %d: invalid dimension: %d != %d", j, m.Dim(), nz)
		}
	}

	am := newMatrix(len(cands), len(meas))
	threshold := a.gate.Threshold(nz)

	for i, c := range cands {
		x := c.Estimate.Val()
		if len(meas) == 0 {
			am.visible[i] = s.InFOV(x)
			continue
		}

		for j, m := range meas {
			if !mtt.SensorAt(s, m).InFOV(x) {
				continue
			}

			inn, err := a.f.Innovation(c.Estimate, m, s)
			if err != nil {
				if mtt.IsDomain(err) || mtt.IsNumerical(err) {
					diagf("sensor %s: track %d: measurement %s: undefined: %v", s.ID(), c.ID, m.ID(), err)
					am.undefined[i] = true
					continue
				}
				return nil, errors.Wrapf(err, "track %d", c.ID)
			}

			am.visible[i] = true

			d2 := inn.Mahalanobis()
			tracef("sensor %s: track %d: measurement %d: d2=%.4f gate=%.4f", s.ID(), c.ID, j, d2, threshold)

			if math.IsNaN(d2) || d2 > threshold {
				continue
			}
			am.d.Set(i, j, d2)
		}
	}

	return am, nil
}
