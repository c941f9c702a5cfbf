package motion

import (
	"sort"
	"sync"

	"github.com/banshee-data/motion.report/internal/timeutil"
)

// MaxStreams is the highest stream id the registry accepts. The wire parser
// enforces the same bound, so out-of-range ids normally never get here.
const MaxStreams = 6

// Registry maps stream ids to their processors. It is the single owner of
// all mutable stream state; every mutation happens under one lock so
// presentation reads and the ingestion path never observe torn state.
type Registry struct {
	mu      sync.Mutex
	streams map[int]*Processor
	params  Params
	clock   timeutil.Clock
}

// NewRegistry creates an empty registry.
func NewRegistry(params Params, clock timeutil.Clock) *Registry {
	return &Registry{
		streams: make(map[int]*Processor),
		params:  params,
		clock:   clock,
	}
}

// Register creates a stream if absent. It is idempotent: re-registering an
// existing stream never resets its calibration or baseline. Reports whether
// a stream was created.
func (r *Registry) Register(id int) bool {
	if id < 1 || id > MaxStreams {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(id) != nil
}

// getOrCreateLocked returns the processor for id, creating it on first
// sight. Returns the existing processor untouched when already present.
func (r *Registry) getOrCreateLocked(id int) *Processor {
	if p, ok := r.streams[id]; ok {
		return p
	}
	p := NewProcessor(id, r.params)
	r.streams[id] = p
	return p
}

// Dispatch routes one sample to its stream, auto-registering unseen ids.
// The boolean is false only for out-of-range ids.
func (r *Registry) Dispatch(id int, raw Vec3) (IngestResult, bool) {
	if id < 1 || id > MaxStreams {
		return IngestResult{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.getOrCreateLocked(id)
	return p.Ingest(raw, r.clock.Now()), true
}

// StartCalibration re-enters calibration for one stream. Only currently
// active streams are eligible; inactive or unknown ids are silently skipped.
// Reports whether a calibration was started.
func (r *Registry) StartCalibration(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.streams[id]
	if !ok || !p.IsActive(r.clock.Now()) {
		return false
	}
	p.StartCalibration()
	return true
}

// StartCalibrationAll re-enters calibration for every active stream and
// returns how many were restarted.
func (r *Registry) StartCalibrationAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	started := 0
	for _, p := range r.streams {
		if p.IsActive(now) {
			p.StartCalibration()
			started++
		}
	}
	return started
}

// ActiveStreams returns the sorted ids of streams seen within the activity
// timeout.
func (r *Registry) ActiveStreams() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	var ids []int
	for id, p := range r.streams {
		if p.IsActive(now) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Snapshots returns immutable per-stream copies sorted by id.
func (r *Registry) Snapshots() []StreamSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	snaps := make([]StreamSnapshot, 0, len(r.streams))
	for _, p := range r.streams {
		snaps = append(snaps, p.Snapshot(now))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Aggregate summarises the registry. Ingestion figures (messages/sec,
// backlog) are zero here; the caller merges them from the scheduler stats.
func (r *Registry) Aggregate() AggregateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()

	agg := AggregateSnapshot{RegisteredCount: len(r.streams)}
	for _, p := range r.streams {
		if !p.IsActive(now) {
			continue
		}
		agg.ActiveStreamCount++
		if p.calibrations > 0 && p.quality == QualityGood {
			agg.WellCalibratedCount++
		}
	}
	// guard the ratio: idle registries report zero, not NaN
	if agg.ActiveStreamCount > 0 {
		agg.WellCalibratedRatio = float64(agg.WellCalibratedCount) / float64(agg.ActiveStreamCount)
	}
	return agg
}
