package assoc

import (
	mtt "github.com/milosgajdos/go-mtt"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultGateProb is the default probability mass of the validation gate
const DefaultGateProb = 0.995

// Gate is a chi-square validation gate
type Gate struct {
	// Prob is the probability that a true measurement falls inside the gate
	Prob float64
}

// DefaultGate returns gate with DefaultGateProb
func DefaultGate() Gate {
	return Gate{Prob: DefaultGateProb}
}

// Validate validates gate parameters
func (g Gate) Validate() error {
	if !(g.Prob > 0 && g.Prob < 1) {
		return mtt.NewConfigurationError("invalid gate probability: %v", g.Prob)
	}

	return nil
}

// Threshold returns the largest squared Mahalanobis distance accepted by the gate
// for a measurement of dimension dim.
func (g Gate) Threshold(dim int) float64 {
	return distuv.ChiSquared{K: float64(dim)}.Quantile(g.Prob)
}
