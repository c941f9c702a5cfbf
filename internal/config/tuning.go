package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Smoothing policy names accepted in the tuning file.
const (
	SmoothingFixed    = "fixed"
	SmoothingAdaptive = "adaptive"
)

// TuningConfig represents the root configuration for pipeline tuning
// parameters. Fields omitted from the JSON file retain their defaults via the
// Get* accessors, so partial configs are safe.
type TuningConfig struct {
	// Calibration params
	CalibrationSamples *int `json:"calibration_samples,omitempty"`

	// Smoothing params
	SmoothingPolicy  *string  `json:"smoothing_policy,omitempty"` // "fixed" or "adaptive"
	SmoothingAlpha   *float64 `json:"smoothing_alpha,omitempty"`
	AdaptiveAlphaMin *float64 `json:"adaptive_alpha_min,omitempty"`
	AdaptiveAlphaMax *float64 `json:"adaptive_alpha_max,omitempty"`

	// Classification params
	DeadzoneFloorMG        *float64 `json:"deadzone_floor_mg,omitempty"`
	DeadzoneNoiseScale     *float64 `json:"deadzone_noise_scale,omitempty"`
	BaseThresholdFloorMG   *float64 `json:"base_threshold_floor_mg,omitempty"`
	BaseThresholdNoiseScale *float64 `json:"base_threshold_noise_scale,omitempty"`

	// Timing params (duration strings like "5s")
	ActivityTimeout *string `json:"activity_timeout,omitempty"`
	StuckResetAfter *string `json:"stuck_reset_after,omitempty"`
	TickInterval    *string `json:"tick_interval,omitempty"`

	// Scheduler params
	DrainBudget  *int `json:"drain_budget,omitempty"`
	BacklogTicks *int `json:"backlog_ticks,omitempty"`
	PurgeCap     *int `json:"purge_cap,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the current directory. Panics if
// the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
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
	if c.CalibrationSamples != nil && *c.CalibrationSamples < 1 {
		return fmt.Errorf("calibration_samples must be positive, got %d", *c.CalibrationSamples)
	}

	if c.SmoothingPolicy != nil {
		switch *c.SmoothingPolicy {
		case SmoothingFixed, SmoothingAdaptive:
		default:
			return fmt.Errorf("smoothing_policy must be %q or %q, got %q",
				SmoothingFixed, SmoothingAdaptive, *c.SmoothingPolicy)
		}
	}

	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}

	if c.AdaptiveAlphaMin != nil && c.AdaptiveAlphaMax != nil {
		if *c.AdaptiveAlphaMin > *c.AdaptiveAlphaMax {
			return fmt.Errorf("adaptive_alpha_min %f exceeds adaptive_alpha_max %f",
				*c.AdaptiveAlphaMin, *c.AdaptiveAlphaMax)
		}
	}

	for name, v := range map[string]*string{
		"activity_timeout": c.ActivityTimeout,
		"stuck_reset_after": c.StuckResetAfter,
		"tick_interval":    c.TickInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.DrainBudget != nil && *c.DrainBudget < 1 {
		return fmt.Errorf("drain_budget must be positive, got %d", *c.DrainBudget)
	}
	if c.BacklogTicks != nil && *c.BacklogTicks < 1 {
		return fmt.Errorf("backlog_ticks must be positive, got %d", *c.BacklogTicks)
	}
	if c.PurgeCap != nil && *c.PurgeCap < 0 {
		return fmt.Errorf("purge_cap must be non-negative, got %d", *c.PurgeCap)
	}

	return nil
}

// GetCalibrationSamples returns the calibration_samples value or the default.
func (c *TuningConfig) GetCalibrationSamples() int {
	if c.CalibrationSamples == nil {
		return 60 // default
	}
	return *c.CalibrationSamples
}

// GetSmoothingPolicy returns the smoothing_policy value or the default.
func (c *TuningConfig) GetSmoothingPolicy() string {
	if c.SmoothingPolicy == nil {
		return SmoothingFixed
	}
	return *c.SmoothingPolicy
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.15
	}
	return *c.SmoothingAlpha
}

// GetAdaptiveAlphaMin returns the adaptive_alpha_min value or the default.
func (c *TuningConfig) GetAdaptiveAlphaMin() float64 {
	if c.AdaptiveAlphaMin == nil {
		return 0.05
	}
	return *c.AdaptiveAlphaMin
}

// GetAdaptiveAlphaMax returns the adaptive_alpha_max value or the default.
func (c *TuningConfig) GetAdaptiveAlphaMax() float64 {
	if c.AdaptiveAlphaMax == nil {
		return 0.5
	}
	return *c.AdaptiveAlphaMax
}

// GetDeadzoneFloorMG returns the deadzone_floor_mg value or the default.
func (c *TuningConfig) GetDeadzoneFloorMG() float64 {
	if c.DeadzoneFloorMG == nil {
		return 250
	}
	return *c.DeadzoneFloorMG
}

// GetDeadzoneNoiseScale returns the deadzone_noise_scale value or the default.
func (c *TuningConfig) GetDeadzoneNoiseScale() float64 {
	if c.DeadzoneNoiseScale == nil {
		return 2.5
	}
	return *c.DeadzoneNoiseScale
}

// GetBaseThresholdFloorMG returns the base_threshold_floor_mg value or the default.
func (c *TuningConfig) GetBaseThresholdFloorMG() float64 {
	if c.BaseThresholdFloorMG == nil {
		return 300
	}
	return *c.BaseThresholdFloorMG
}

// GetBaseThresholdNoiseScale returns the base_threshold_noise_scale value or the default.
func (c *TuningConfig) GetBaseThresholdNoiseScale() float64 {
	if c.BaseThresholdNoiseScale == nil {
		return 4
	}
	return *c.BaseThresholdNoiseScale
}

// GetActivityTimeout parses and returns the ActivityTimeout as a time.Duration.
func (c *TuningConfig) GetActivityTimeout() time.Duration {
	if c.ActivityTimeout == nil || *c.ActivityTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ActivityTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetStuckResetAfter parses and returns the StuckResetAfter as a time.Duration.
func (c *TuningConfig) GetStuckResetAfter() time.Duration {
	if c.StuckResetAfter == nil || *c.StuckResetAfter == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StuckResetAfter)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
// The default approximates a 60 tick/second cadence.
func (c *TuningConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 16 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return 16 * time.Millisecond // default on parse error
	}
	return d
}

// GetDrainBudget returns the drain_budget value or the default.
func (c *TuningConfig) GetDrainBudget() int {
	if c.DrainBudget == nil {
		return 20
	}
	return *c.DrainBudget
}

// GetBacklogTicks returns the backlog_ticks value or the default.
func (c *TuningConfig) GetBacklogTicks() int {
	if c.BacklogTicks == nil {
		return 60
	}
	return *c.BacklogTicks
}

// GetPurgeCap returns the purge_cap value or the default.
func (c *TuningConfig) GetPurgeCap() int {
	if c.PurgeCap == nil {
		return 1000
	}
	return *c.PurgeCap
}
