package track

import (
	"math"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/assoc"
	"github.com/milosgajdos/go-mtt/config"
	"github.com/milosgajdos/go-mtt/kalman"
)

// Config holds track manager configuration
type Config struct {
	GateProb             float64 // Probability mass of the association gate
	ScoreStep            float64 // Score change per matched or missed cycle
	InitialScore         float64 // Score of a new track
	ScoreMin             float64 // Lower score bound
	ScoreMax             float64 // Upper score bound
	ConfirmScore         float64 // Score at which tentative tracks are confirmed
	HitsToConfirm        int     // Consecutive hits at which tentative tracks are confirmed
	DeleteScore          float64 // Score below which confirmed tracks are deleted
	TentativeDeleteScore float64 // Score below which tentative tracks are deleted
	MaxMisses            int     // Consecutive misses above which tracks are deleted

	MaxPositionVariance float64   // Position variance above which tracks are deleted (m²)
	InitVelocityStd     []float64 // Standard deviation of initial velocity per axis (m/s)
	MaxPredictDt        float64   // Maximum dt (seconds) per predict step; zero means no limit
	MaxTracks           int       // Maximum number of tracks; zero means unlimited

	Tolerance       kalman.Tolerance // Numerical tolerance
	Concurrent      bool             // Associate sensor batches concurrently
	NumericJacobian bool             // Use finite difference Jacobians for nonlinear sensors
}

// DefaultConfig returns default track manager configuration
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		GateProb:             cfg.GetGateProb(),
		ScoreStep:            cfg.GetScoreStep(),
		InitialScore:         cfg.GetInitialScore(),
		ScoreMin:             cfg.GetScoreMin(),
		ScoreMax:             cfg.GetScoreMax(),
		ConfirmScore:         cfg.GetConfirmScore(),
		HitsToConfirm:        cfg.GetHitsToConfirm(),
		DeleteScore:          cfg.GetDeleteScore(),
		TentativeDeleteScore: cfg.GetTentativeDeleteScore(),
		MaxMisses:            cfg.GetMaxMisses(),
		MaxPositionVariance:  cfg.GetMaxPositionVariance(),
		InitVelocityStd:      cfg.GetInitVelocityStd(),
		MaxPredictDt:         cfg.GetMaxPredictDt(),
		MaxTracks:            cfg.GetMaxTracks(),
		Tolerance:            cfg.GetTolerance(),
		Concurrent:           cfg.GetConcurrent(),
		NumericJacobian:      cfg.GetNumericJacobian(),
	}
}

// Validate checks that the configuration values are valid.
// It returns ConfigurationError otherwise.
func (c Config) Validate() error {
	if err := (assoc.Gate{Prob: c.GateProb}).Validate(); err != nil {
		return err
	}

	if !(c.ScoreStep > 0) {
		return mtt.NewConfigurationError("invalid score step: %v", c.ScoreStep)
	}

	if !(c.ScoreMin < c.ScoreMax) {
		return mtt.NewConfigurationError("invalid score bounds: [%v, %v]", c.ScoreMin, c.ScoreMax)
	}

	for _, s := range []float64{c.InitialScore, c.ConfirmScore, c.DeleteScore, c.TentativeDeleteScore} {
		if math.IsNaN(s) || s < c.ScoreMin || s > c.ScoreMax {
			return mtt.NewConfigurationError("score threshold %v outside [%v, %v]", s, c.ScoreMin, c.ScoreMax)
		}
	}

	if c.HitsToConfirm < 1 || c.MaxMisses < 0 || c.MaxTracks < 0 {
		return mtt.NewConfigurationError("invalid counters: hits to confirm %d, max misses %d, max tracks %d",
			c.HitsToConfirm, c.MaxMisses, c.MaxTracks)
	}

	if !(c.MaxPositionVariance > 0) || !(c.MaxPredictDt >= 0) {
		return mtt.NewConfigurationError("invalid divergence guards: max position variance %v, max predict dt %v",
			c.MaxPositionVariance, c.MaxPredictDt)
	}

	if !(c.Tolerance.MaxCond > 0) || !(c.Tolerance.PSD >= 0) {
		return mtt.NewConfigurationError("invalid tolerance: %+v", c.Tolerance)
	}

	for i, v := range c.InitVelocityStd {
		if math.IsNaN(v) || v < 0 {
			return mtt.NewConfigurationError("invalid initial velocity std[%d]: %v", i, v)
		}
	}

	return nil
}
