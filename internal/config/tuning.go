package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrInvalidTuning is returned (wrapped) by Validate when a tuning value is
// outside its accepted range.
var ErrInvalidTuning = errors.New("invalid tuning")

// TuningConfig represents the root configuration for tuning parameters.
// Every field is optional; the Get* accessors supply defaults so a partial
// document is safe to load.
type TuningConfig struct {
	// Odometry params
	FeatureThreshold         *int     `json:"feature_threshold,omitempty"`
	MinFeatures              *int     `json:"min_features,omitempty"`
	ImageDifferenceThreshold *float64 `json:"image_difference_threshold,omitempty"` // px²
	EssentialMatProb         *float64 `json:"essential_mat_prob,omitempty"`
	EssentialMatThreshold    *float64 `json:"essential_mat_threshold,omitempty"` // px
	LegacyAngleScaling       *bool    `json:"legacy_angle_scaling,omitempty"`

	// Optical flow params
	LKWindowSize         *int     `json:"lk_window_size,omitempty"`
	LKMaxLevel           *int     `json:"lk_max_level,omitempty"`
	LKMaxIterations      *int     `json:"lk_max_iterations,omitempty"`
	LKEpsilon            *float64 `json:"lk_epsilon,omitempty"`
	LKMinEigenThreshold  *float64 `json:"lk_min_eigen_threshold,omitempty"`
	FeaturePreBlurRadius *float64 `json:"feature_pre_blur_radius,omitempty"`

	// Fiducial detector params. Decimate, Blur, Threads and RefineEdges are
	// handed to the marker detector as l6fusion.DetectorSettings.
	TagFamily     *string `json:"tag_family,omitempty"`
	Decimate      *int    `json:"decimate,omitempty"`
	Blur          *int    `json:"blur,omitempty"`
	Threads       *int    `json:"threads,omitempty"`
	RefineEdges   *bool   `json:"refine_edges,omitempty"`
	NumIterations *int    `json:"num_iterations,omitempty"`

	// Fusion params
	HammingDist              *int     `json:"hamming_dist,omitempty"`
	DecisionMargin           *float64 `json:"decision_margin,omitempty"`
	DoMultiTarget            *bool    `json:"do_multi_target,omitempty"`
	DoSingleTargetAlways     *bool    `json:"do_single_target_always,omitempty"`
	SolvePNPEnabled          *bool    `json:"solve_pnp_enabled,omitempty"`
	ResetOdometryOnReacquire *bool    `json:"reset_odometry_on_reacquire,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		FeatureThreshold:         ptrInt(e.GetFeatureThreshold()),
		MinFeatures:              ptrInt(e.GetMinFeatures()),
		ImageDifferenceThreshold: ptrFloat64(e.GetImageDifferenceThreshold()),
		EssentialMatProb:         ptrFloat64(e.GetEssentialMatProb()),
		EssentialMatThreshold:    ptrFloat64(e.GetEssentialMatThreshold()),
		LegacyAngleScaling:       ptrBool(e.GetLegacyAngleScaling()),
		LKWindowSize:             ptrInt(e.GetLKWindowSize()),
		LKMaxLevel:               ptrInt(e.GetLKMaxLevel()),
		LKMaxIterations:          ptrInt(e.GetLKMaxIterations()),
		LKEpsilon:                ptrFloat64(e.GetLKEpsilon()),
		LKMinEigenThreshold:      ptrFloat64(e.GetLKMinEigenThreshold()),
		FeaturePreBlurRadius:     ptrFloat64(e.GetFeaturePreBlurRadius()),
		TagFamily:                ptrString(e.GetTagFamily()),
		Decimate:                 ptrInt(e.GetDecimate()),
		Blur:                     ptrInt(e.GetBlur()),
		Threads:                  ptrInt(e.GetThreads()),
		RefineEdges:              ptrBool(e.GetRefineEdges()),
		NumIterations:            ptrInt(e.GetNumIterations()),
		HammingDist:              ptrInt(e.GetHammingDist()),
		DecisionMargin:           ptrFloat64(e.GetDecisionMargin()),
		DoMultiTarget:            ptrBool(e.GetDoMultiTarget()),
		DoSingleTargetAlways:     ptrBool(e.GetDoSingleTargetAlways()),
		SolvePNPEnabled:          ptrBool(e.GetSolvePNPEnabled()),
		ResetOdometryOnReacquire: ptrBool(e.GetResetOdometryOnReacquire()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	data, err := readBoundedFile(path, ".json")
	if err != nil {
		return nil, err
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// readBoundedFile reads a config file after checking its extension and
// that it is no larger than 1MB.
func readBoundedFile(path string, exts ...string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	ok := false
	for _, want := range exts {
		if ext == want {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("config file must have one of %v extensions, got %q", exts, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/vision/l5odometry/
		"../../../../" + DefaultConfigPath,    // from internal/vision/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FeatureThreshold != nil && (*c.FeatureThreshold < 1 || *c.FeatureThreshold > 255) {
		return fmt.Errorf("%w: feature_threshold must be in [1, 255], got %d", ErrInvalidTuning, *c.FeatureThreshold)
	}
	if c.MinFeatures != nil && *c.MinFeatures < 0 {
		return fmt.Errorf("%w: min_features must be non-negative, got %d", ErrInvalidTuning, *c.MinFeatures)
	}
	if c.ImageDifferenceThreshold != nil && *c.ImageDifferenceThreshold < 0 {
		return fmt.Errorf("%w: image_difference_threshold must be non-negative, got %f", ErrInvalidTuning, *c.ImageDifferenceThreshold)
	}
	if c.EssentialMatProb != nil && (*c.EssentialMatProb <= 0 || *c.EssentialMatProb >= 1) {
		return fmt.Errorf("%w: essential_mat_prob must be in (0, 1), got %f", ErrInvalidTuning, *c.EssentialMatProb)
	}
	if c.EssentialMatThreshold != nil && *c.EssentialMatThreshold <= 0 {
		return fmt.Errorf("%w: essential_mat_threshold must be positive, got %f", ErrInvalidTuning, *c.EssentialMatThreshold)
	}
	if c.LKWindowSize != nil && (*c.LKWindowSize < 3 || *c.LKWindowSize%2 == 0) {
		return fmt.Errorf("%w: lk_window_size must be an odd number >= 3, got %d", ErrInvalidTuning, *c.LKWindowSize)
	}
	if c.LKMaxLevel != nil && *c.LKMaxLevel < 0 {
		return fmt.Errorf("%w: lk_max_level must be non-negative, got %d", ErrInvalidTuning, *c.LKMaxLevel)
	}
	if c.LKMaxIterations != nil && *c.LKMaxIterations < 1 {
		return fmt.Errorf("%w: lk_max_iterations must be positive, got %d", ErrInvalidTuning, *c.LKMaxIterations)
	}
	if c.FeaturePreBlurRadius != nil && *c.FeaturePreBlurRadius < 0 {
		return fmt.Errorf("%w: feature_pre_blur_radius must be non-negative, got %f", ErrInvalidTuning, *c.FeaturePreBlurRadius)
	}
	if c.TagFamily != nil {
		if _, ok := tagFamilies[*c.TagFamily]; !ok {
			return fmt.Errorf("%w: unknown tag_family %q", ErrInvalidTuning, *c.TagFamily)
		}
	}
	if c.Decimate != nil && *c.Decimate < 1 {
		return fmt.Errorf("%w: decimate must be >= 1, got %d", ErrInvalidTuning, *c.Decimate)
	}
	if c.Threads != nil && *c.Threads < 1 {
		return fmt.Errorf("%w: threads must be >= 1, got %d", ErrInvalidTuning, *c.Threads)
	}
	if c.NumIterations != nil && *c.NumIterations < 1 {
		return fmt.Errorf("%w: num_iterations must be >= 1, got %d", ErrInvalidTuning, *c.NumIterations)
	}
	if c.HammingDist != nil && *c.HammingDist < 0 {
		return fmt.Errorf("%w: hamming_dist must be non-negative, got %d", ErrInvalidTuning, *c.HammingDist)
	}
	if c.DecisionMargin != nil && *c.DecisionMargin < 0 {
		return fmt.Errorf("%w: decision_margin must be non-negative, got %f", ErrInvalidTuning, *c.DecisionMargin)
	}
	return nil
}

// tagFamilies maps supported fiducial families to their printed edge length
// in metres.
var tagFamilies = map[string]float64{
	"36h11": 0.1651, // 6.5 in
	"16h5":  0.1524, // 6 in
}

// GetFeatureThreshold returns the FAST intensity threshold.
func (c *TuningConfig) GetFeatureThreshold() int {
	if c.FeatureThreshold == nil {
		return 10
	}
	return *c.FeatureThreshold
}

// GetMinFeatures returns the min_features value or the default.
func (c *TuningConfig) GetMinFeatures() int {
	if c.MinFeatures == nil {
		return 500
	}
	return *c.MinFeatures
}

// GetImageDifferenceThreshold returns the minimum motion confidence (px²)
// required before a frame pair is handed to the motion estimator.
func (c *TuningConfig) GetImageDifferenceThreshold() float64 {
	if c.ImageDifferenceThreshold == nil {
		return 150
	}
	return *c.ImageDifferenceThreshold
}

// GetEssentialMatProb returns the essential_mat_prob value or the default.
func (c *TuningConfig) GetEssentialMatProb() float64 {
	if c.EssentialMatProb == nil {
		return 0.999
	}
	return *c.EssentialMatProb
}

// GetEssentialMatThreshold returns the essential_mat_threshold value or the default.
func (c *TuningConfig) GetEssentialMatThreshold() float64 {
	if c.EssentialMatThreshold == nil {
		return 1.0
	}
	return *c.EssentialMatThreshold
}

// GetLegacyAngleScaling reports whether odometry angles are scaled by π/180
// after conversion, reproducing the behaviour of older releases.
func (c *TuningConfig) GetLegacyAngleScaling() bool {
	if c.LegacyAngleScaling == nil {
		return false
	}
	return *c.LegacyAngleScaling
}

// GetLKWindowSize returns the lk_window_size value or the default.
func (c *TuningConfig) GetLKWindowSize() int {
	if c.LKWindowSize == nil {
		return 21
	}
	return *c.LKWindowSize
}

// GetLKMaxLevel returns the lk_max_level value or the default.
func (c *TuningConfig) GetLKMaxLevel() int {
	if c.LKMaxLevel == nil {
		return 3
	}
	return *c.LKMaxLevel
}

// GetLKMaxIterations returns the lk_max_iterations value or the default.
func (c *TuningConfig) GetLKMaxIterations() int {
	if c.LKMaxIterations == nil {
		return 30
	}
	return *c.LKMaxIterations
}

// GetLKEpsilon returns the lk_epsilon value or the default.
func (c *TuningConfig) GetLKEpsilon() float64 {
	if c.LKEpsilon == nil {
		return 0.01
	}
	return *c.LKEpsilon
}

// GetLKMinEigenThreshold returns the lk_min_eigen_threshold value or the default.
func (c *TuningConfig) GetLKMinEigenThreshold() float64 {
	if c.LKMinEigenThreshold == nil {
		return 1e-4
	}
	return *c.LKMinEigenThreshold
}

// GetFeaturePreBlurRadius returns the Gaussian radius applied before feature
// detection. Zero disables the blur.
func (c *TuningConfig) GetFeaturePreBlurRadius() float64 {
	if c.FeaturePreBlurRadius == nil {
		return 0
	}
	return *c.FeaturePreBlurRadius
}

// GetTagFamily returns the tag_family value or the default.
func (c *TuningConfig) GetTagFamily() string {
	if c.TagFamily == nil {
		return "36h11"
	}
	return *c.TagFamily
}

// GetTagSize returns the edge length in metres of the configured tag family.
func (c *TuningConfig) GetTagSize() float64 {
	if size, ok := tagFamilies[c.GetTagFamily()]; ok {
		return size
	}
	return tagFamilies["36h11"]
}

// GetDecimate returns the decimate value or the default.
func (c *TuningConfig) GetDecimate() int {
	if c.Decimate == nil {
		return 1
	}
	return *c.Decimate
}

// GetBlur returns the blur value or the default.
func (c *TuningConfig) GetBlur() int {
	if c.Blur == nil {
		return 0
	}
	return *c.Blur
}

// GetThreads returns the threads value or the default.
func (c *TuningConfig) GetThreads() int {
	if c.Threads == nil {
		return 4
	}
	return *c.Threads
}

// GetRefineEdges returns the refine_edges value or the default.
func (c *TuningConfig) GetRefineEdges() bool {
	if c.RefineEdges == nil {
		return true
	}
	return *c.RefineEdges
}

// GetNumIterations returns the pose refinement iteration budget.
func (c *TuningConfig) GetNumIterations() int {
	if c.NumIterations == nil {
		return 40
	}
	return *c.NumIterations
}

// GetHammingDist returns the hamming_dist value or the default.
func (c *TuningConfig) GetHammingDist() int {
	if c.HammingDist == nil {
		return 0
	}
	return *c.HammingDist
}

// GetDecisionMargin returns the decision_margin value or the default.
func (c *TuningConfig) GetDecisionMargin() float64 {
	if c.DecisionMargin == nil {
		return 35
	}
	return *c.DecisionMargin
}

// GetDoMultiTarget returns the do_multi_target value or the default.
func (c *TuningConfig) GetDoMultiTarget() bool {
	if c.DoMultiTarget == nil {
		return false
	}
	return *c.DoMultiTarget
}

// GetDoSingleTargetAlways returns the do_single_target_always value or the default.
func (c *TuningConfig) GetDoSingleTargetAlways() bool {
	if c.DoSingleTargetAlways == nil {
		return false
	}
	return *c.DoSingleTargetAlways
}

// GetSolvePNPEnabled returns the solve_pnp_enabled value or the default.
func (c *TuningConfig) GetSolvePNPEnabled() bool {
	if c.SolvePNPEnabled == nil {
		return true
	}
	return *c.SolvePNPEnabled
}

// GetResetOdometryOnReacquire returns the reset_odometry_on_reacquire value
// or the default (disabled).
func (c *TuningConfig) GetResetOdometryOnReacquire() bool {
	if c.ResetOdometryOnReacquire == nil {
		return false
	}
	return *c.ResetOdometryOnReacquire
}
