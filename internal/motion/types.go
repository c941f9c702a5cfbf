// Package motion implements the per-stream signal processing pipeline:
// automatic baseline/noise calibration, noise-derived deadzone and level
// thresholds, a hysteresis-based motion level state machine, exponential
// smoothing of display values, and the registry that owns the per-stream
// state.
package motion

import (
	"math"
	"time"
)

// Vec3 is a tri-axial acceleration value in milli-g.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm returns the Euclidean magnitude of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether all three components are finite numbers.
func (v Vec3) IsFinite() bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Phase is the lifecycle phase of a stream.
type Phase int

const (
	PhaseCalibrating Phase = iota
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseCalibrating:
		return "calibrating"
	case PhaseReady:
		return "ready"
	}
	return "unknown"
}

// Quality grades the noise magnitude measured at calibration completion.
type Quality int

const (
	QualityGood Quality = iota
	QualityFair
	QualityPoor
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	}
	return "unknown"
}

// QualityForNoise grades a composite noise magnitude (mg). Boundaries are
// strict: 250 is still good, 500 is still fair.
func QualityForNoise(noise float64) Quality {
	switch {
	case noise > 500:
		return QualityPoor
	case noise > 250:
		return QualityFair
	default:
		return QualityGood
	}
}

// Motion levels, ordinal 0..5.
const (
	LevelStill = iota
	LevelMicro
	LevelSlight
	LevelModerate
	LevelActive
	LevelEnergetic

	MaxLevel = LevelEnergetic
)

var levelLabels = [MaxLevel + 1]string{
	"still", "micro", "slight", "moderate", "active", "energetic",
}

// LevelLabel returns the display label for a motion level. Out-of-range
// levels report as "unknown".
func LevelLabel(level int) string {
	if level < 0 || level > MaxLevel {
		return "unknown"
	}
	return levelLabels[level]
}

// CalibrationResult captures the outcome of one completed calibration for
// persistence and display.
type CalibrationResult struct {
	StreamID      int
	Baseline      Vec3
	Noise         float64
	Quality       Quality
	Deadzone      float64
	BaseThreshold float64
	SampleCount   int
	CompletedAt   time.Time
}

// Transition captures one motion level change for persistence.
type Transition struct {
	StreamID  int
	FromLevel int
	ToLevel   int
	Distance  float64
	At        time.Time
}
