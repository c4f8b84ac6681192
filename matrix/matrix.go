package matrix

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotPSD is returned when a matrix has eigenvalues below the negative tolerance
	ErrNotPSD = errors.New("matrix is not positive semi-definite")
	// ErrNotFinite is returned when a matrix contains NaN or infinite elements
	ErrNotFinite = errors.New("matrix contains non-finite elements")
)

// Identity returns n x n identity matrix
func Identity(n int) *mat.DiagDense {
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1.0)
	}

	return eye
}

// Symmetrize returns (m + m')/2 as a symmetric matrix.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}

	return s
}

// IsFinite returns true if all elements of m are finite
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// MinEigen returns the smallest eigenvalue of s.
// It returns error if the eigen decomposition fails.
func MinEigen(s mat.Symmetric) (float64, error) {
	if !IsFinite(s) {
		return 0, ErrNotFinite
	}

	var es mat.EigenSym
	if ok := es.Factorize(s, false); !ok {
		return 0, errors.New("eigen decomposition failed")
	}

	return floats.Min(es.Values(nil)), nil
}

// IsPSD returns true if every eigenvalue of s is greater than or equal to -tol
func IsPSD(s mat.Symmetric, tol float64) bool {
	minEig, err := MinEigen(s)
	if err != nil {
		return false
	}

	return minEig >= -tol
}

// Regularize returns a positive semi-definite copy of s.
// Negative eigenvalues not smaller than -tol are clipped to zero.
// It returns ErrNotPSD if s has an eigenvalue below -tol and ErrNotFinite if s has non-finite elements.
func Regularize(s mat.Symmetric, tol float64) (*mat.SymDense, error) {
	if !IsFinite(s) {
		return nil, ErrNotFinite
	}

	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return nil, errors.New("eigen decomposition failed")
	}

	vals := es.Values(nil)
	if minEig := floats.Min(vals); minEig >= 0 {
		out := mat.NewSymDense(s.SymmetricDim(), nil)
		out.CopySym(s)
		return out, nil
	} else if minEig < -tol {
		return nil, errors.Wrapf(ErrNotPSD, "min eigenvalue %v", minEig)
	}

	for i := range vals {
		if vals[i] < 0 {
			vals[i] = 0
		}
	}

	v := &mat.Dense{}
	es.VectorsTo(v)

	vd := &mat.Dense{}
	vd.Mul(v, mat.NewDiagDense(len(vals), vals))
	out := &mat.Dense{}
	out.Mul(vd, v.T())

	return Symmetrize(out), nil
}

// ArgMin returns the row and column of the smallest finite element of m among the given rows and columns.
// Ties are broken in favour of the first element found scanning rows then columns in the given order.
// It returns false if there is no finite element.
func ArgMin(m mat.Matrix, rows, cols []int) (int, int, bool) {
	minVal := math.Inf(1)
	mi, mj := -1, -1

	for _, i := range rows {
		for _, j := range cols {
			v := m.At(i, j)
			if v < minVal {
				minVal = v
				mi, mj = i, j
			}
		}
	}

	if mi < 0 {
		return -1, -1, false
	}

	return mi, mj, true
}

// Diag returns diagonal elements of m.
// It panics if m is not square.
func Diag(m mat.Matrix) []float64 {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}

	d := make([]float64, r)
	for i := range d {
		d[i] = m.At(i, i)
	}

	return d
}
