package motion

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// feedCalibration drives a processor through a full calibration with
// identical samples, yielding zero noise and floor-valued deadzone and
// thresholds (250 / 300..4800 mg).
func feedCalibration(t *testing.T, p *Processor, sample Vec3) {
	t.Helper()
	var done *CalibrationResult
	for i := 0; i < p.params.CalibrationSamples; i++ {
		res := p.Ingest(sample, t0.Add(time.Duration(i)*16*time.Millisecond))
		require.True(t, res.Accepted)
		if res.Calibration != nil {
			require.Nil(t, done, "calibration completed more than once")
			done = res.Calibration
		}
	}
	require.NotNil(t, done, "calibration did not complete")
}

func TestCalibrationCompletesExactlyOnce(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	sample := Vec3{X: 0, Y: 0, Z: 1000}

	for i := 0; i < 59; i++ {
		res := p.Ingest(sample, t0)
		assert.True(t, res.Accepted)
		assert.Nil(t, res.Calibration)
	}
	assert.Equal(t, PhaseCalibrating, p.phase)
	assert.Equal(t, 59, len(p.calBuf))

	res := p.Ingest(sample, t0)
	require.NotNil(t, res.Calibration)
	assert.Equal(t, PhaseReady, p.phase)
	assert.Equal(t, 60, res.Calibration.SampleCount)
}

func TestBaselineIsPerAxisMean(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	for i := 0; i < 60; i++ {
		x := 10.0
		if i%2 == 1 {
			x = 20.0
		}
		p.Ingest(Vec3{X: x, Y: 0, Z: 1000}, t0)
	}

	assert.InDelta(t, 15.0, p.baseline.X, 1e-9)
	assert.InDelta(t, 0.0, p.baseline.Y, 1e-9)
	assert.InDelta(t, 1000.0, p.baseline.Z, 1e-9)
}

func TestQualityBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		noise float64
		want  Quality
	}{
		{250.0, QualityGood},
		{250.1, QualityFair},
		{500.0, QualityFair},
		{500.1, QualityPoor},
		{0, QualityGood},
		{10000, QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityForNoise(tt.noise), "noise %v", tt.noise)
	}
}

func TestNoiseScaledParameters(t *testing.T) {
	t.Parallel()

	t.Run("quiet hardware gets the floors", func(t *testing.T) {
		t.Parallel()
		p := NewProcessor(1, DefaultParams())
		feedCalibration(t, p, Vec3{Z: 1000})

		assert.InDelta(t, 0, p.noise, 1e-9)
		assert.Equal(t, 250.0, p.deadzone)
		assert.Equal(t, 300.0, p.baseThreshold)
	})

	t.Run("noise scales deadzone and threshold", func(t *testing.T) {
		t.Parallel()
		p := NewProcessor(1, DefaultParams())
		// alternate z = ±200 around 0: per-axis population stddev is
		// exactly 200 and the composite noise is 200
		for i := 0; i < 60; i++ {
			z := 200.0
			if i%2 == 1 {
				z = -200.0
			}
			p.Ingest(Vec3{Z: z}, t0)
		}

		require.InDelta(t, 200.0, p.noise, 1e-9)
		assert.InDelta(t, 500.0, p.deadzone, 1e-9)  // noise*2.5 beats the 250 floor
		assert.InDelta(t, 800.0, p.baseThreshold, 1e-9) // noise*4 beats the 300 floor
		assert.Equal(t, QualityGood, p.quality)
	})
}

func TestThresholdsStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	// calibrate with alternating ±a samples so the composite noise is a
	for _, amplitude := range []float64{0, 50, 200, 450, 1000} {
		p := NewProcessor(1, DefaultParams())
		for i := 0; i < 60; i++ {
			z := amplitude
			if i%2 == 1 {
				z = -amplitude
			}
			p.Ingest(Vec3{Z: z}, t0)
		}
		require.Equal(t, PhaseReady, p.phase)

		require.Positive(t, p.baseThreshold)
		for i := 1; i <= MaxLevel; i++ {
			assert.Greater(t, p.thresholds[i], p.thresholds[i-1],
				"thresholds must be strictly increasing (noise %v)", amplitude)
		}
	}
}

func TestSmoothedTracksRawWhileCalibrating(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	p.Ingest(Vec3{X: 100, Y: 200, Z: 300}, t0)
	assert.Equal(t, Vec3{X: 100, Y: 200, Z: 300}, p.smoothed)

	p.Ingest(Vec3{X: -50, Y: 0, Z: 900}, t0)
	assert.Equal(t, Vec3{X: -50, Y: 0, Z: 900}, p.smoothed)
}

func TestSmoothingAfterCalibration(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	// smoothed resets to baseline on calibration completion
	assert.Equal(t, Vec3{Z: 1000}, p.smoothed)

	p.Ingest(Vec3{X: 100, Z: 1000}, t0.Add(time.Second))
	assert.InDelta(t, 15.0, p.smoothed.X, 1e-9) // 0 + (100-0)*0.15
	assert.InDelta(t, 1000.0, p.smoothed.Z, 1e-9)
}

func TestClassificationUsesRawDistance(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	// a single large excursion must classify immediately even though the
	// smoothed display value has barely moved
	res := p.Ingest(Vec3{X: 2000, Z: 1000}, t0.Add(time.Second))
	assert.Equal(t, 2000.0, res.Distance)
	assert.Less(t, p.smoothed.X, 500.0)
	// 2000 >= thresholds[3] (1800) but < thresholds[4] (3000)
	assert.Equal(t, LevelActive, p.level)
}

func TestDeadzoneGatesSmallDeviations(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	res := p.Ingest(Vec3{X: 249, Z: 1000}, t0.Add(time.Second))
	assert.Equal(t, LevelStill, p.level)
	assert.Equal(t, 249.0, res.Distance)
}

func TestLevelBoundaries(t *testing.T) {
	t.Parallel()

	// with zero noise: thresholds are 300, 540, 1050, 1800, 3000, 4800
	tests := []struct {
		distance float64
		want     int
	}{
		{0, LevelStill},
		{299, LevelStill},
		{300, LevelMicro},
		{539, LevelMicro},
		{540, LevelSlight},
		{1050, LevelModerate},
		{1800, LevelActive},
		{3000, LevelEnergetic},
		{99999, LevelEnergetic},
	}

	for _, tt := range tests {
		p := NewProcessor(1, DefaultParams())
		feedCalibration(t, p, Vec3{Z: 1000})
		p.Ingest(Vec3{X: tt.distance, Z: 1000}, t0.Add(time.Second))
		assert.Equal(t, tt.want, p.level, "distance %v", tt.distance)
	}
}

func TestHysteresisHoldsOnBoundaryOscillation(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	// enter slight (thresholds[1] = 540)
	p.Ingest(Vec3{X: 540, Z: 1000}, t0.Add(time.Second))
	require.Equal(t, LevelSlight, p.level)

	// oscillate exactly on the boundary; the decrease margin is
	// 0.2*300 = 60, so 539.9 must not drop the level
	changes := 0
	for i := 0; i < 10; i++ {
		x := 540.0
		if i%2 == 1 {
			x = 539.9
		}
		res := p.Ingest(Vec3{X: x, Z: 1000}, t0.Add(time.Second+time.Duration(i)*16*time.Millisecond))
		if res.LevelChanged {
			changes++
		}
	}
	assert.Equal(t, LevelSlight, p.level)
	assert.Zero(t, changes, "boundary oscillation must not toggle the level")
}

func TestHysteresisAcceptsConfirmedDecrease(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	p.Ingest(Vec3{X: 540, Z: 1000}, t0.Add(time.Second))
	require.Equal(t, LevelSlight, p.level)

	// 479 clears 540 - 60, so the drop to micro is accepted
	p.Ingest(Vec3{X: 479, Z: 1000}, t0.Add(2*time.Second))
	assert.Equal(t, LevelMicro, p.level)
}

func TestReturnToStillResetsOnce(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})

	p.Ingest(Vec3{X: 600, Z: 1000}, t0.Add(time.Second))
	require.Equal(t, LevelSlight, p.level)

	// hold below the deadzone past the stuck-reset window: the level must
	// come back to still exactly once, with no further change events
	changes := 0
	for ms := 0; ms <= 2100; ms += 100 {
		res := p.Ingest(Vec3{X: 10, Z: 1000}, t0.Add(time.Second+time.Duration(ms)*time.Millisecond))
		if res.LevelChanged {
			changes++
		}
	}
	assert.Equal(t, LevelStill, p.level)
	assert.Equal(t, 1, changes, "reset to still must happen exactly once")
}

func TestNonFiniteSampleLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})
	p.Ingest(Vec3{X: 600, Z: 1000}, t0.Add(time.Second))

	before := p.Snapshot(t0.Add(time.Second))
	for _, bad := range []Vec3{
		{X: math.NaN(), Y: 0, Z: 1000},
		{X: 0, Y: math.Inf(1), Z: 1000},
		{X: 0, Y: 0, Z: math.Inf(-1)},
	} {
		res := p.Ingest(bad, t0.Add(2*time.Second))
		assert.False(t, res.Accepted)
	}
	after := p.Snapshot(t0.Add(time.Second))

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("state changed by non-finite sample (-before +after):\n%s", diff)
	}
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()

	samples := make([]Vec3, 0, 200)
	for i := 0; i < 200; i++ {
		samples = append(samples, Vec3{
			X: float64((i*37)%500) - 250,
			Y: float64((i*91)%300) - 150,
			Z: 1000 + float64((i*13)%100),
		})
	}

	run := func() StreamSnapshot {
		p := NewProcessor(2, DefaultParams())
		for i, s := range samples {
			p.Ingest(s, t0.Add(time.Duration(i)*16*time.Millisecond))
		}
		return p.Snapshot(t0.Add(4 * time.Second))
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay diverged (-first +second):\n%s", diff)
	}
}

func TestRecalibrationPreservesDisplayState(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	feedCalibration(t, p, Vec3{Z: 1000})
	p.Ingest(Vec3{X: 600, Z: 1000}, t0.Add(time.Second))
	require.Equal(t, LevelSlight, p.level)

	p.StartCalibration()
	assert.Equal(t, PhaseCalibrating, p.phase)
	assert.Empty(t, p.calBuf)
	// prior classification stays on display until the new calibration lands
	assert.Equal(t, LevelSlight, p.level)

	feedCalibration(t, p, Vec3{Z: 980})
	assert.Equal(t, PhaseReady, p.phase)
	assert.InDelta(t, 980.0, p.baseline.Z, 1e-9)
}

func TestIsActive(t *testing.T) {
	t.Parallel()

	p := NewProcessor(1, DefaultParams())
	assert.False(t, p.IsActive(t0), "never-seen stream is inactive")

	p.Ingest(Vec3{Z: 1000}, t0)
	assert.True(t, p.IsActive(t0.Add(4999*time.Millisecond)))
	assert.False(t, p.IsActive(t0.Add(5000*time.Millisecond)))
}

func TestAdaptiveSmoothingDampsNoisyStreams(t *testing.T) {
	t.Parallel()

	params := DefaultParams()
	params.Smoothing = DefaultNoiseAdaptive()
	p := NewProcessor(1, params)

	// noisy calibration: composite noise 400 -> alpha clamped low
	for i := 0; i < 60; i++ {
		z := 400.0
		if i%2 == 1 {
			z = -400.0
		}
		p.Ingest(Vec3{Z: z}, t0)
	}
	require.InDelta(t, 400.0, p.noise, 1e-9)

	alpha := params.Smoothing.Alpha(p.noise)
	assert.Less(t, alpha, 0.15)
	assert.GreaterOrEqual(t, alpha, 0.05)
}
