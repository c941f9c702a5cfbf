package motion

// StreamSnapshot is an immutable per-tick copy of one stream's display
// state. Presentation layers consume snapshots only and never touch live
// processor state.
type StreamSnapshot struct {
	ID                  int     `json:"id"`
	Phase               string  `json:"phase"`
	Quality             string  `json:"quality"`
	Noise               float64 `json:"noise_mg"`
	Deadzone            float64 `json:"deadzone_mg"`
	BaseThreshold       float64 `json:"base_threshold_mg"`
	MotionLevel         int     `json:"motion_level"`
	MotionLabel         string  `json:"motion_label"`
	Distance            float64 `json:"distance_mg"`
	Smoothed            Vec3    `json:"smoothed"`
	Raw                 Vec3    `json:"raw"`
	IsActive            bool    `json:"is_active"`
	CalibrationProgress int     `json:"calibration_progress"`
	CalibrationTarget   int     `json:"calibration_target"`
	Calibrated          bool    `json:"calibrated"`
}

// AggregateSnapshot summarises the registry for the stats surface. The
// ingestion figures (messages/sec, backlog) are filled in by the scheduler's
// stats, not by the registry.
type AggregateSnapshot struct {
	ActiveStreamCount   int     `json:"active_stream_count"`
	RegisteredCount     int     `json:"registered_count"`
	WellCalibratedCount int     `json:"well_calibrated_count"`
	WellCalibratedRatio float64 `json:"well_calibrated_ratio"`
	MessagesPerSecond   float64 `json:"messages_per_second"`
	BacklogActive       bool    `json:"backlog_active"`
}
