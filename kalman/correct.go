package kalman

import (
	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/estimate"
	"github.com/milosgajdos/go-mtt/matrix"
	"gonum.org/v1/gonum/mat"
)

// Gain returns Kalman gain P*H'*S^-1 for estimate est and innovation inn
func Gain(est mtt.Estimate, inn *Innovation) *mat.Dense {
	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(est.Cov(), inn.H.T())

	gain := &mat.Dense{}
	gain.Mul(pxy, inn.SInv)

	return gain
}

// Correct corrects estimate est with innovation inn and returns corrected estimate.
// Covariance is updated in Joseph form, then symmetrised and regularised.
// It returns NumericalError if the corrected covariance is not positive semi-definite.
func Correct(est mtt.Estimate, inn *Innovation, tol Tolerance) (mtt.Estimate, error) {
	x := est.Val()
	p := est.Cov()
	nx := x.Len()

	if _, cols := inn.H.Dims(); cols != nx {
		return nil, mtt.NewConfigurationError("invalid innovation for %d dimensional state", nx)
	}

	gain := Gain(est, inn)

	// x + K*gamma
	corr := &mat.VecDense{}
	corr.MulVec(gain, inn.Gamma)
	xNext := &mat.VecDense{}
	xNext.AddVec(x, corr)

	// eye - K*H
	a := &mat.Dense{}
	a.Mul(gain, inn.H)
	a.Sub(matrix.Identity(nx), a)

	// (I-K*H)*P*(I-K*H)'
	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, inn.R)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	pCorr := &mat.Dense{}
	pCorr.Add(apa, krk)

	pNext, err := matrix.Regularize(matrix.Symmetrize(pCorr), tol.PSD)
	if err != nil {
		return nil, mtt.NewNumericalError("correct covariance", err)
	}

	return estimate.NewBaseWithCov(xNext, pNext)
}
