package assoc

import (
	"math"

	"github.com/milosgajdos/go-mtt/matrix"
	"gonum.org/v1/gonum/mat"
)

// Pair is a resolved track to measurement assignment given as matrix indices
type Pair struct {
	// Track is the row index of the track
	Track int
	// Measurement is the column index of the measurement
	Measurement int
}

// Matrix is a gated association matrix of squared Mahalanobis distances.
// Unreachable pairs hold +Inf. Matrix keeps track of rows and columns
// which have not been assigned yet.
type Matrix struct {
	rows, cols int
	// d holds distances; nil when the matrix is empty
	d *mat.Dense
	// visible marks rows whose track the sensor could observe
	visible []bool
	// undefined marks rows for which the measurement model was undefined
	undefined []bool
	// tracks are remaining unassigned rows
	tracks []int
	// meas are remaining unassigned columns
	meas []int
}

// NewMatrix creates new rows x cols association matrix from row-major distances and returns it.
// A nil dist creates a matrix with every pair unreachable. Every row is marked visible.
// It panics if dist is not nil and its length is not rows*cols.
func NewMatrix(rows, cols int, dist []float64) *Matrix {
	m := newMatrix(rows, cols)
	for i := range m.visible {
		m.visible[i] = true
	}

	if m.d == nil {
		return m
	}

	if dist != nil {
		if len(dist) != rows*cols {
			panic(mat.ErrShape)
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				m.d.Set(i, j, dist[i*cols+j])
			}
		}
	}

	return m
}

func newMatrix(rows, cols int) *Matrix {
	m := &Matrix{
		rows:      rows,
		cols:      cols,
		visible:   make([]bool, rows),
		undefined: make([]bool, rows),
		tracks:    make([]int, rows),
		meas:      make([]int, cols),
	}

	for i := range m.tracks {
		m.tracks[i] = i
	}

	for j := range m.meas {
		m.meas[j] = j
	}

	if rows > 0 && cols > 0 {
		inf := make([]float64, rows*cols)
		for i := range inf {
			inf[i] = math.Inf(1)
		}
		m.d = mat.NewDense(rows, cols, inf)
	}

	return m
}

// Dims returns the number of tracks and measurements
func (m *Matrix) Dims() (int, int) {
	return m.rows, m.cols
}

// At returns distance between track i and measurement j
func (m *Matrix) At(i, j int) float64 {
	if m.d == nil {
		panic(mat.ErrIndexOutOfRange)
	}
	return m.d.At(i, j)
}

// Dense returns a copy of the distance matrix.
// It returns an empty matrix if there are no tracks or no measurements.
func (m *Matrix) Dense() *mat.Dense {
	if m.d == nil {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(m.d)
}

// Visible returns true if the sensor could observe track i: the track was in the sensor
// field of view and its measurement model was defined.
func (m *Matrix) Visible(i int) bool {
	return m.visible[i]
}

// Undefined returns true if the measurement model was undefined for track i
func (m *Matrix) Undefined(i int) bool {
	return m.undefined[i]
}

// Finite returns the number of reachable pairs
func (m *Matrix) Finite() int {
	n := 0
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if !math.IsInf(m.d.At(i, j), 1) {
				n++
			}
		}
	}

	return n
}

// ClosestPair returns the reachable pair with the smallest distance among unassigned
// tracks and measurements and marks both as assigned. Ties are broken in favour of the
// first pair in row-major order. It returns false if no reachable pair remains.
func (m *Matrix) ClosestPair() (int, int, bool) {
	if m.d == nil {
		return -1, -1, false
	}

	i, j, ok := matrix.ArgMin(m.d, m.tracks, m.meas)
	if !ok {
		return -1, -1, false
	}

	m.tracks = remove(m.tracks, i)
	m.meas = remove(m.meas, j)

	return i, j, true
}

// Resolve greedily assigns closest pairs until no reachable pair remains and returns them
// in the order they were assigned.
func (m *Matrix) Resolve() []Pair {
	var pairs []Pair
	for {
		i, j, ok := m.ClosestPair()
		if !ok {
			return pairs
		}
		pairs = append(pairs, Pair{Track: i, Measurement: j})
	}
}

// UnassignedTracks returns row indices of unassigned tracks in ascending order
func (m *Matrix) UnassignedTracks() []int {
	return append([]int(nil), m.tracks...)
}

// UnassignedMeasurements returns column indices of unassigned measurements in ascending order
func (m *Matrix) UnassignedMeasurements() []int {
	return append([]int(nil), m.meas...)
}

// remove removes v from sorted s preserving order
func remove(s []int, v int) []int {
	for k := range s {
		if s[k] == v {
			return append(s[:k], s[k+1:]...)
		}
	}

	return s
}
