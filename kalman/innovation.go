package kalman

import (
	"math"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Innovation is the discrepancy between a measurement and its prediction
type Innovation struct {
	// Gamma is innovation vector z - h(x)
	Gamma *mat.VecDense
	// S is innovation covariance H*P*H' + R
	S *mat.SymDense
	// SInv is inverse of innovation covariance
	SInv *mat.SymDense
	// H is measurement matrix the innovation was linearised with
	H *mat.Dense
	// R is measurement covariance
	R *mat.SymDense
}

// NewInnovation computes innovation of measurement z with covariance r against estimate est,
// given predicted measurement hx and measurement matrix h.
// It returns ConfigurationError if dimensions do not match and NumericalError if S is not invertible.
func NewInnovation(est mtt.Estimate, z, hx mat.Vector, h mat.Matrix, r mat.Symmetric, tol Tolerance) (*Innovation, error) {
	nx := est.Val().Len()
	nz := z.Len()

	if hx.Len() != nz || r.SymmetricDim() != nz {
		return nil, mtt.NewConfigurationError("invalid measurement dimensions: z: %d, h(x): %d, R: %d", nz, hx.Len(), r.SymmetricDim())
	}

	if rows, cols := h.Dims(); rows != nz || cols != nx {
		return nil, mtt.NewConfigurationError("invalid measurement matrix dimensions: [%d x %d]", rows, cols)
	}

	gamma := &mat.VecDense{}
	gamma.SubVec(z, hx)

	// H*P*H' + R
	hp := &mat.Dense{}
	hp.Mul(h, est.Cov())
	hph := &mat.Dense{}
	hph.Mul(hp, h.T())

	s := mat.NewSymDense(nz, nil)
	for i := 0; i < nz; i++ {
		for j := i; j < nz; j++ {
			s.SetSym(i, j, (hph.At(i, j)+hph.At(j, i))/2+r.At(i, j))
		}
	}

	if c := mat.Cond(s, 2); math.IsNaN(c) || c > tol.MaxCond {
		return nil, mtt.NewNumericalError("innovation covariance", errors.Errorf("condition number %v exceeds %v", c, tol.MaxCond))
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, mtt.NewNumericalError("innovation covariance", errors.New("not positive definite"))
	}

	sInv := &mat.SymDense{}
	if err := chol.InverseTo(sInv); err != nil {
		return nil, mtt.NewNumericalError("innovation covariance", err)
	}

	rr := mat.NewSymDense(nz, nil)
	rr.CopySym(r)

	return &Innovation{
		Gamma: gamma,
		S:     s,
		SInv:  sInv,
		H:     mat.DenseCopyOf(h),
		R:     rr,
	}, nil
}

// Mahalanobis returns squared Mahalanobis distance gamma'*S^-1*gamma
func (i *Innovation) Mahalanobis() float64 {
	return mat.Inner(i.Gamma, i.SInv, i.Gamma)
}
