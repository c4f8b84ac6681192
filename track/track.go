// Package track maintains a set of tracks over time from sensor measurement batches.
package track

import (
	"time"

	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// Status is the lifecycle status of a track
type Status string

const (
	// Tentative is a new track which needs confirmation
	Tentative Status = "tentative"
	// Confirmed is a stable track with sufficient history
	Confirmed Status = "confirmed"
	// Deleted is a track marked for removal
	Deleted Status = "deleted"
)

// Track is a tracked object.
// Track values returned by Manager are snapshots and are not updated by later cycles.
type Track struct {
	// ID is unique track identifier, never reused
	ID int64
	// Status is track lifecycle status
	Status Status
	// Score is track quality in [ScoreMin, ScoreMax]
	Score float64
	// Age is the number of cycles since the track was created
	Age int
	// Hits is the number of consecutive cycles the track was matched
	Hits int
	// Misses is the number of consecutive cycles the track was missed by every sensor which could see it
	Misses int
	// Created is the time the track was created
	Created time.Time
	// Updated is the time the track was last corrected by a measurement
	Updated time.Time

	// est is vehicle frame state estimate
	est mtt.Estimate
}

// Val returns track state
func (t *Track) Val() mat.Vector {
	return t.est.Val()
}

// Cov returns track state covariance
func (t *Track) Cov() mat.Symmetric {
	return t.est.Cov()
}

// Estimate returns track state estimate
func (t *Track) Estimate() mtt.Estimate {
	return t.est
}

// snapshot returns a copy of the track
func (t *Track) snapshot() *Track {
	c := *t
	return &c
}

// clamp clamps track score to [lo, hi]
func (t *Track) clamp(lo, hi float64) {
	if t.Score < lo {
		t.Score = lo
	}
	if t.Score > hi {
		t.Score = hi
	}
}

var _ mtt.Estimate = (*Track)(nil)
