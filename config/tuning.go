// Package config loads tracker tuning parameters from JSON files.
package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	mtt "github.com/milosgajdos/go-mtt"
	"github.com/milosgajdos/go-mtt/assoc"
	"github.com/milosgajdos/go-mtt/kalman"
	"github.com/pkg/errors"
)

// maxFileSize is the largest accepted config file size
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Tracker defaults. Score defaults follow a sliding window of 6 cycles.
const (
	DefaultScoreStep            = 1.0 / 6.0
	DefaultInitialScore         = 1.0 / 6.0
	DefaultScoreMin             = 0.0
	DefaultScoreMax             = 1.0
	DefaultConfirmScore         = 0.8
	DefaultHitsToConfirm        = 4
	DefaultDeleteScore          = 0.6
	DefaultTentativeDeleteScore = 0.1
	DefaultMaxMisses            = 5
	DefaultMaxPositionVariance  = 9.0
	DefaultMaxPredictDt         = 0.0
	DefaultMaxTracks            = 0
	DefaultProcessNoise         = 3.0
)

// DefaultInitVelocityStd is the default standard deviation of initial track velocity per axis
var DefaultInitVelocityStd = []float64{50, 50, 5}

// TuningConfig holds optional tracker tuning parameters.
// Unset fields fall back to defaults through the Get* methods.
type TuningConfig struct {
	// Association
	GateProb *float64 `json:"gate_prob,omitempty"`

	// Track score
	ScoreStep            *float64 `json:"score_step,omitempty"`
	InitialScore         *float64 `json:"initial_score,omitempty"`
	ScoreMin             *float64 `json:"score_min,omitempty"`
	ScoreMax             *float64 `json:"score_max,omitempty"`
	ConfirmScore         *float64 `json:"confirm_score,omitempty"`
	HitsToConfirm        *int     `json:"hits_to_confirm,omitempty"`
	DeleteScore          *float64 `json:"delete_score,omitempty"`
	TentativeDeleteScore *float64 `json:"tentative_delete_score,omitempty"`
	MaxMisses            *int     `json:"max_misses,omitempty"`

	// Divergence guards
	MaxPositionVariance *float64 `json:"max_position_variance,omitempty"`
	MaxPredictDt        *float64 `json:"max_predict_dt,omitempty"` // seconds
	MaxCond             *float64 `json:"max_cond,omitempty"`
	PSDTolerance        *float64 `json:"psd_tolerance,omitempty"`

	// Track initialisation and motion
	InitVelocityStd []float64 `json:"init_velocity_std,omitempty"`
	ProcessNoise    *float64  `json:"process_noise,omitempty"`
	MaxTracks       *int      `json:"max_tracks,omitempty"`

	// Execution
	Concurrent      *bool `json:"concurrent,omitempty"`
	NumericJacobian *bool `json:"numeric_jacobian,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have .json extension and be at most 1MB large.
// Fields omitted from the file fall back to defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, mtt.NewConfigurationError("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, mtt.NewConfigurationError("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func positive(name string, v *float64) error {
	if v != nil && !(*v > 0) {
		return mtt.NewConfigurationError("%s must be positive, got %v", name, *v)
	}
	return nil
}

func nonNegative(name string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || *v < 0) {
		return mtt.NewConfigurationError("%s must be non-negative, got %v", name, *v)
	}
	return nil
}

// Validate checks that the set values are valid.
func (c *TuningConfig) Validate() error {
	if c.GateProb != nil {
		if err := (assoc.Gate{Prob: *c.GateProb}).Validate(); err != nil {
			return err
		}
	}

	for _, check := range []struct {
		name     string
		v        *float64
		positive bool
	}{
		{"score_step", c.ScoreStep, true},
		{"max_position_variance", c.MaxPositionVariance, true},
		{"max_predict_dt", c.MaxPredictDt, false},
		{"max_cond", c.MaxCond, true},
		{"psd_tolerance", c.PSDTolerance, false},
		{"process_noise", c.ProcessNoise, false},
	} {
		validate := nonNegative
		if check.positive {
			validate = positive
		}
		if err := validate(check.name, check.v); err != nil {
			return err
		}
	}

	if c.GetScoreMin() >= c.GetScoreMax() {
		return mtt.NewConfigurationError("score_min must be below score_max, got [%v, %v]", c.GetScoreMin(), c.GetScoreMax())
	}

	for name, v := range map[string]float64{
		"initial_score":          c.GetInitialScore(),
		"confirm_score":          c.GetConfirmScore(),
		"delete_score":           c.GetDeleteScore(),
		"tentative_delete_score": c.GetTentativeDeleteScore(),
	} {
		if v < c.GetScoreMin() || v > c.GetScoreMax() {
			return mtt.NewConfigurationError("%s must be within [%v, %v], got %v", name, c.GetScoreMin(), c.GetScoreMax(), v)
		}
	}

	if c.HitsToConfirm != nil && *c.HitsToConfirm < 1 {
		return mtt.NewConfigurationError("hits_to_confirm must be at least 1, got %d", *c.HitsToConfirm)
	}

	if c.MaxMisses != nil && *c.MaxMisses < 0 {
		return mtt.NewConfigurationError("max_misses must be non-negative, got %d", *c.MaxMisses)
	}

	if c.MaxTracks != nil && *c.MaxTracks < 0 {
		return mtt.NewConfigurationError("max_tracks must be non-negative, got %d", *c.MaxTracks)
	}

	if c.InitVelocityStd != nil {
		if len(c.InitVelocityStd) == 0 {
			return mtt.NewConfigurationError("init_velocity_std must not be empty")
		}
		for i, v := range c.InitVelocityStd {
			if math.IsNaN(v) || v < 0 {
				return mtt.NewConfigurationError("init_velocity_std[%d] must be non-negative, got %v", i, v)
			}
		}
	}

	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetGateProb returns gate probability
func (c *TuningConfig) GetGateProb() float64 {
	return getFloat(c.GateProb, assoc.DefaultGateProb)
}

// GetScoreStep returns score change per cycle
func (c *TuningConfig) GetScoreStep() float64 {
	return getFloat(c.ScoreStep, DefaultScoreStep)
}

// GetInitialScore returns score of a new track
func (c *TuningConfig) GetInitialScore() float64 {
	return getFloat(c.InitialScore, DefaultInitialScore)
}

// GetScoreMin returns lower score bound
func (c *TuningConfig) GetScoreMin() float64 {
	return getFloat(c.ScoreMin, DefaultScoreMin)
}

// GetScoreMax returns upper score bound
func (c *TuningConfig) GetScoreMax() float64 {
	return getFloat(c.ScoreMax, DefaultScoreMax)
}

// GetConfirmScore returns score at which tentative tracks are confirmed
func (c *TuningConfig) GetConfirmScore() float64 {
	return getFloat(c.ConfirmScore, DefaultConfirmScore)
}

// GetHitsToConfirm returns consecutive hits at which tentative tracks are confirmed
func (c *TuningConfig) GetHitsToConfirm() int {
	return getInt(c.HitsToConfirm, DefaultHitsToConfirm)
}

// GetDeleteScore returns score below which confirmed tracks are deleted
func (c *TuningConfig) GetDeleteScore() float64 {
	return getFloat(c.DeleteScore, DefaultDeleteScore)
}

// GetTentativeDeleteScore returns score below which tentative tracks are deleted
func (c *TuningConfig) GetTentativeDeleteScore() float64 {
	return getFloat(c.TentativeDeleteScore, DefaultTentativeDeleteScore)
}

// GetMaxMisses returns consecutive misses above which tracks are deleted
func (c *TuningConfig) GetMaxMisses() int {
	return getInt(c.MaxMisses, DefaultMaxMisses)
}

// GetMaxPositionVariance returns position variance above which tracks are deleted
func (c *TuningConfig) GetMaxPositionVariance() float64 {
	return getFloat(c.MaxPositionVariance, DefaultMaxPositionVariance)
}

// GetMaxPredictDt returns the largest prediction step in seconds; zero disables the limit
func (c *TuningConfig) GetMaxPredictDt() float64 {
	return getFloat(c.MaxPredictDt, DefaultMaxPredictDt)
}

// GetTolerance returns numerical tolerance
func (c *TuningConfig) GetTolerance() kalman.Tolerance {
	def := kalman.DefaultTolerance()
	return kalman.Tolerance{
		MaxCond: getFloat(c.MaxCond, def.MaxCond),
		PSD:     getFloat(c.PSDTolerance, def.PSD),
	}
}

// GetInitVelocityStd returns standard deviation of initial track velocity per axis
func (c *TuningConfig) GetInitVelocityStd() []float64 {
	if c.InitVelocityStd == nil {
		return append([]float64(nil), DefaultInitVelocityStd...)
	}
	return append([]float64(nil), c.InitVelocityStd...)
}

// GetProcessNoise returns process noise intensity of the motion model
func (c *TuningConfig) GetProcessNoise() float64 {
	return getFloat(c.ProcessNoise, DefaultProcessNoise)
}

// GetMaxTracks returns the largest number of tracks; zero means unlimited
func (c *TuningConfig) GetMaxTracks() int {
	return getInt(c.MaxTracks, DefaultMaxTracks)
}

// GetConcurrent returns true if sensors are associated concurrently
func (c *TuningConfig) GetConcurrent() bool {
	if c.Concurrent == nil {
		return true
	}
	return *c.Concurrent
}

// GetNumericJacobian returns true if nonlinear sensors use finite difference Jacobians
func (c *TuningConfig) GetNumericJacobian() bool {
	if c.NumericJacobian == nil {
		return false
	}
	return *c.NumericJacobian
}
