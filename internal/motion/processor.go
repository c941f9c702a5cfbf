package motion

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion.report/internal/config"
)

// levelMultipliers scale the base threshold into the per-level boundaries.
// thresholds[L-1] is the boundary for entering level L.
var levelMultipliers = [MaxLevel + 1]float64{1, 1.8, 3.5, 6, 10, 16}

// Params are the tuning knobs for one stream processor. All streams in a
// registry share the same Params.
type Params struct {
	// CalibrationSamples is the number of valid samples accrued before a
	// calibration completes.
	CalibrationSamples int

	// Smoothing selects the EMA factor for display values.
	Smoothing SmoothingPolicy

	// DeadzoneFloor and DeadzoneNoiseScale size the deadzone:
	// max(DeadzoneFloor, noise*DeadzoneNoiseScale).
	DeadzoneFloor      float64
	DeadzoneNoiseScale float64

	// ThresholdFloor and ThresholdNoiseScale size the base level threshold:
	// max(ThresholdFloor, noise*ThresholdNoiseScale).
	ThresholdFloor      float64
	ThresholdNoiseScale float64

	// ActivityTimeout is how long after the last sample a stream counts as
	// active.
	ActivityTimeout time.Duration

	// StuckResetAfter is how long a non-zero level may persist below the
	// deadzone before it is forced back to zero.
	StuckResetAfter time.Duration
}

// DefaultParams returns the canonical deployment tuning.
func DefaultParams() Params {
	return Params{
		CalibrationSamples:  60,
		Smoothing:           FixedAlpha(0.15),
		DeadzoneFloor:       250,
		DeadzoneNoiseScale:  2.5,
		ThresholdFloor:      300,
		ThresholdNoiseScale: 4,
		ActivityTimeout:     5 * time.Second,
		StuckResetAfter:     2 * time.Second,
	}
}

// ParamsFromTuning builds Params from a tuning config file.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	p := Params{
		CalibrationSamples:  cfg.GetCalibrationSamples(),
		DeadzoneFloor:       cfg.GetDeadzoneFloorMG(),
		DeadzoneNoiseScale:  cfg.GetDeadzoneNoiseScale(),
		ThresholdFloor:      cfg.GetBaseThresholdFloorMG(),
		ThresholdNoiseScale: cfg.GetBaseThresholdNoiseScale(),
		ActivityTimeout:     cfg.GetActivityTimeout(),
		StuckResetAfter:     cfg.GetStuckResetAfter(),
	}
	switch cfg.GetSmoothingPolicy() {
	case config.SmoothingAdaptive:
		na := DefaultNoiseAdaptive()
		na.Min = cfg.GetAdaptiveAlphaMin()
		na.Max = cfg.GetAdaptiveAlphaMax()
		p.Smoothing = na
	default:
		p.Smoothing = FixedAlpha(cfg.GetSmoothingAlpha())
	}
	return p
}

// Processor owns the calibration, thresholds, smoothing and motion
// classification for a single sensor stream. It is not safe for concurrent
// use; the owning Registry serialises access.
type Processor struct {
	id     int
	params Params

	phase  Phase
	calBuf []Vec3

	baseline      Vec3
	noise         float64
	quality       Quality
	deadzone      float64
	baseThreshold float64
	thresholds    [MaxLevel + 1]float64

	smoothed Vec3
	rawLast  Vec3
	distance float64

	level           int
	lastLevelChange time.Time
	lastUpdate      time.Time
	calibrations    int
}

// NewProcessor creates a processor for the given stream id, starting in the
// calibrating phase.
func NewProcessor(id int, params Params) *Processor {
	p := &Processor{
		id:       id,
		params:   params,
		phase:    PhaseCalibrating,
		calBuf:   make([]Vec3, 0, params.CalibrationSamples),
		deadzone: params.DeadzoneFloor,
	}
	return p
}

// ID returns the stream id.
func (p *Processor) ID() int { return p.id }

// StartCalibration discards any accrued calibration buffer and re-enters the
// calibrating phase. Prior smoothed values and motion level are preserved
// until the new calibration completes.
func (p *Processor) StartCalibration() {
	p.phase = PhaseCalibrating
	p.calBuf = p.calBuf[:0]
}

// IngestResult reports what one sample did to the stream state so callers
// can persist level transitions and completed calibrations.
type IngestResult struct {
	Accepted     bool
	LevelChanged bool
	FromLevel    int
	ToLevel      int
	Distance     float64
	Calibration  *CalibrationResult
}

// Ingest processes one raw sample observed at the given time.
//
// Samples with any non-finite component are rejected without touching state.
// While calibrating, the sample accrues into the calibration buffer and the
// displayed value tracks the raw sample directly. Once ready, the sample
// updates the smoothed display value and runs motion classification against
// the raw (undamped) deviation from baseline.
func (p *Processor) Ingest(raw Vec3, now time.Time) IngestResult {
	if !raw.IsFinite() {
		return IngestResult{}
	}

	p.rawLast = raw
	p.lastUpdate = now

	if p.phase == PhaseCalibrating {
		p.smoothed = raw
		p.calBuf = append(p.calBuf, raw)
		if len(p.calBuf) >= p.params.CalibrationSamples {
			cal := p.finishCalibration(now)
			return IngestResult{Accepted: true, Calibration: &cal}
		}
		return IngestResult{Accepted: true}
	}

	alpha := p.params.Smoothing.Alpha(p.noise)
	p.smoothed.X += (raw.X - p.smoothed.X) * alpha
	p.smoothed.Y += (raw.Y - p.smoothed.Y) * alpha
	p.smoothed.Z += (raw.Z - p.smoothed.Z) * alpha

	// Classification uses the raw deviation so motion detection is not
	// damped by the display smoothing.
	distance := raw.Sub(p.baseline).Norm()
	p.distance = distance

	effective := distance
	if effective < p.deadzone {
		effective = 0
	}

	candidate := 0
	for l := MaxLevel; l >= 1; l-- {
		if effective >= p.thresholds[l-1] {
			candidate = l
			break
		}
	}

	// Decreases must clear the current level's boundary by a margin before
	// they are accepted, so values oscillating on a boundary do not flicker.
	if candidate < p.level {
		if effective >= p.thresholds[p.level-1]-0.2*p.thresholds[0] {
			candidate = p.level
		}
	}

	// Stuck-state recovery: a non-zero level that the hysteresis keeps
	// holding while the deviation sits inside the deadzone is forced back to
	// still after StuckResetAfter.
	if p.level > 0 && candidate == p.level && effective < p.deadzone &&
		now.Sub(p.lastLevelChange) > p.params.StuckResetAfter {
		candidate = 0
	}

	if candidate < 0 {
		candidate = 0
	} else if candidate > MaxLevel {
		candidate = MaxLevel
	}

	res := IngestResult{Accepted: true, Distance: distance, FromLevel: p.level, ToLevel: candidate}
	if candidate != p.level {
		p.lastLevelChange = now
		res.LevelChanged = true
	}
	p.level = candidate
	return res
}

// finishCalibration derives baseline, noise and all noise-scaled parameters
// from the accrued buffer, then flips the stream to ready.
func (p *Processor) finishCalibration(now time.Time) CalibrationResult {
	n := len(p.calBuf)
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for i, s := range p.calBuf {
		xs[i], ys[i], zs[i] = s.X, s.Y, s.Z
	}

	p.baseline = Vec3{
		X: stat.Mean(xs, nil),
		Y: stat.Mean(ys, nil),
		Z: stat.Mean(zs, nil),
	}

	sdx := stat.PopStdDev(xs, nil)
	sdy := stat.PopStdDev(ys, nil)
	sdz := stat.PopStdDev(zs, nil)
	p.noise = Vec3{X: sdx, Y: sdy, Z: sdz}.Norm()

	p.quality = QualityForNoise(p.noise)
	p.deadzone = max(p.params.DeadzoneFloor, p.noise*p.params.DeadzoneNoiseScale)
	p.baseThreshold = max(p.params.ThresholdFloor, p.noise*p.params.ThresholdNoiseScale)
	for i, m := range levelMultipliers {
		p.thresholds[i] = p.baseThreshold * m
	}

	p.smoothed = p.baseline
	p.phase = PhaseReady
	p.calibrations++

	return CalibrationResult{
		StreamID:      p.id,
		Baseline:      p.baseline,
		Noise:         p.noise,
		Quality:       p.quality,
		Deadzone:      p.deadzone,
		BaseThreshold: p.baseThreshold,
		SampleCount:   n,
		CompletedAt:   now,
	}
}

// IsActive reports whether the stream has seen a sample within the activity
// timeout. A stream that has never seen a sample is inactive.
func (p *Processor) IsActive(now time.Time) bool {
	if p.lastUpdate.IsZero() {
		return false
	}
	return now.Sub(p.lastUpdate) < p.params.ActivityTimeout
}

// Snapshot returns an immutable copy of the display-relevant state.
func (p *Processor) Snapshot(now time.Time) StreamSnapshot {
	s := StreamSnapshot{
		ID:                  p.id,
		Phase:               p.phase.String(),
		Quality:             p.quality.String(),
		Noise:               p.noise,
		Deadzone:            p.deadzone,
		BaseThreshold:       p.baseThreshold,
		MotionLevel:         p.level,
		MotionLabel:         LevelLabel(p.level),
		Distance:            p.distance,
		Smoothed:            p.smoothed,
		Raw:                 p.rawLast,
		IsActive:            p.IsActive(now),
		CalibrationProgress: len(p.calBuf),
		CalibrationTarget:   p.params.CalibrationSamples,
		Calibrated:          p.calibrations > 0,
	}
	return s
}
