package sim

import (
	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/mat"
)

// Target is a simulated ground truth object
type Target struct {
	// ID is target identifier
	ID int
	// First is the first step the target exists in
	First int
	// Last is the last step the target exists in; negative means forever
	Last int
	// x0 is target state in step First
	x0 *mat.VecDense
	// x is target state in the vehicle frame
	x *mat.VecDense
}

// State returns a copy of target state
func (t *Target) State() mat.Vector {
	return mat.VecDenseCopyOf(t.x)
}

// Alive returns true if the target exists in step k
func (t *Target) Alive(k int) bool {
	return k >= t.First && (t.Last < 0 || k <= t.Last)
}

// propagate propagates target state through transition f and adds process noise sample w
func (t *Target) propagate(f mat.Matrix, w mat.Vector) {
	out := new(mat.VecDense)
	out.MulVec(f, t.x)

	if w != nil && w.Len() == out.Len() {
		out.AddVec(out, w)
	}

	t.x = out
}

// newProcessNoise returns process noise of m for elapsed time dt
func newProcessNoise(m mtt.Motion, dt float64, seed uint64) (processNoise, error) {
	q := m.Noise(dt)

	var zero = true
	for i := 0; i < q.SymmetricDim(); i++ {
		if q.At(i, i) != 0 {
			zero = false
			break
		}
	}

	if zero {
		return newZeroNoise(q.SymmetricDim())
	}

	return newGaussianNoise(make([]float64, q.SymmetricDim()), q, seed)
}
