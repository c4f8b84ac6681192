package sensor

import (
	"math"

	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/spatial/r3"
)

// FullFOV is a field of view which covers every azimuth
var FullFOV = FOV{Min: -math.Pi, Max: math.Pi}

// FOV is a horizontal field of view given as an azimuth interval in radians.
// Azimuth is measured in the sensor frame from the +X axis towards +Y.
type FOV struct {
	Min float64
	Max float64
}

// Validate validates field of view
func (f FOV) Validate() error {
	if math.IsNaN(f.Min) || math.IsNaN(f.Max) || f.Min > f.Max {
		return mtt.NewConfigurationError("invalid field of view: [%v, %v]", f.Min, f.Max)
	}

	return nil
}

// Contains returns true if sensor frame point p lies in the field of view.
// Interval bounds are inclusive.
func (f FOV) Contains(p r3.Vec) bool {
	az := math.Atan2(p.Y, p.X)

	return az >= f.Min && az <= f.Max
}
