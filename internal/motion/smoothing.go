package motion

// SmoothingPolicy chooses the EMA factor applied to display values. The
// factor may depend on the stream's measured calibration noise, which is why
// it is a policy rather than a constant: the numeric front-end wants a fixed
// factor, the graph front-end wants heavier smoothing on noisier hardware.
type SmoothingPolicy interface {
	// Alpha returns the EMA factor for a stream whose last calibration
	// measured the given composite noise (mg).
	Alpha(noise float64) float64
}

// FixedAlpha applies the same EMA factor to every stream.
type FixedAlpha float64

// Alpha implements SmoothingPolicy.
func (a FixedAlpha) Alpha(float64) float64 { return float64(a) }

// NoiseAdaptive derives the EMA factor linearly from calibration noise and
// clamps it to [Min, Max]: quiet hardware gets a responsive display, noisy
// hardware gets heavier damping. At zero noise the factor is Max; it loses
// Max-Min over NoiseSpan mg of noise.
type NoiseAdaptive struct {
	Min       float64
	Max       float64
	NoiseSpan float64
}

// DefaultNoiseAdaptive matches the graph front-end tuning: factor in
// [0.05, 0.5], fully damped by 450mg of noise.
func DefaultNoiseAdaptive() NoiseAdaptive {
	return NoiseAdaptive{Min: 0.05, Max: 0.5, NoiseSpan: 450}
}

// Alpha implements SmoothingPolicy.
func (n NoiseAdaptive) Alpha(noise float64) float64 {
	span := n.NoiseSpan
	if span <= 0 {
		span = 450
	}
	alpha := n.Max - (n.Max-n.Min)*(noise/span)
	if alpha < n.Min {
		return n.Min
	}
	if alpha > n.Max {
		return n.Max
	}
	return alpha
}
