package track

import (
	"time"

	"github.com/milosgajdos/go-mtt/assoc"
)

// Counters tally the work done in a cycle
type Counters struct {
	Cycles     int // Processed cycles
	Predicted  int // Predicted tracks
	Associated int // Resolved track to measurement pairs
	Updated    int // Successful measurement updates
	Created    int // Created tracks
	Confirmed  int // Confirmed tracks
	Deleted    int // Deleted tracks, including diverged ones
	Diverged   int // Tracks deleted for numerical divergence
	Dropped    int // Measurements dropped for undefined measurement model
}

// Add adds o to c
func (c *Counters) Add(o Counters) {
	c.Cycles += o.Cycles
	c.Predicted += o.Predicted
	c.Associated += o.Associated
	c.Updated += o.Updated
	c.Created += o.Created
	c.Confirmed += o.Confirmed
	c.Deleted += o.Deleted
	c.Diverged += o.Diverged
	c.Dropped += o.Dropped
}

// SensorAssociation is the association result of one sensor batch
type SensorAssociation struct {
	// Sensor is sensor ID
	Sensor string
	// TrackIDs maps association matrix rows to track IDs
	TrackIDs []int64
	// Matrix is the association matrix
	Matrix *assoc.Matrix
	// Pairs are resolved assignments in the order they were made
	Pairs []assoc.Pair
	// UnassignedTracks are IDs of tracks left without a measurement
	UnassignedTracks []int64
	// UnassignedMeasurements are batch indices of measurements left without a track
	UnassignedMeasurements []int
}

// Report describes the outcome of a cycle
type Report struct {
	// Time is cycle time
	Time time.Time
	// Dt is the prediction step in seconds
	Dt float64
	// Associations are per sensor association results in batch order
	Associations []SensorAssociation
	// Created are IDs of created tracks
	Created []int64
	// Confirmed are IDs of tracks confirmed in the cycle
	Confirmed []int64
	// Deleted are IDs of tracks deleted in the cycle
	Deleted []int64
	// Counters tally the work done in the cycle
	Counters Counters
}
