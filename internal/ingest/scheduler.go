// Package ingest pulls parsed sensor lines into the motion registry at a
// bounded rate. The scheduler protects the pipeline from input backlog: each
// tick drains a fixed budget of lines, and a sustained backlog triggers one
// bounded purge of stale pending input — a freshness-over-completeness
// tradeoff, never an error.
package ingest

import (
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/wire"
)

// LineSource is the non-blocking read side of a sensor line feed. TryReadLine
// returns the next complete line if one is pending; it never waits.
type LineSource interface {
	TryReadLine() (string, bool)
}

// Recorder receives pipeline events worth persisting. A nil Recorder on the
// scheduler disables persistence.
type Recorder interface {
	RecordTransition(tr motion.Transition) error
	RecordCalibration(cal motion.CalibrationResult) error
}

// Options tune the scheduler. Zero values fall back to the canonical
// deployment defaults.
type Options struct {
	// DrainBudget is the maximum number of lines consumed per tick.
	DrainBudget int
	// BacklogTicks is how many consecutive full-budget ticks indicate a
	// sustained backlog.
	BacklogTicks int
	// PurgeCap bounds how many pending lines one purge may discard.
	PurgeCap int
}

func (o Options) withDefaults() Options {
	if o.DrainBudget <= 0 {
		o.DrainBudget = 20
	}
	if o.BacklogTicks <= 0 {
		o.BacklogTicks = 60
	}
	if o.PurgeCap <= 0 {
		o.PurgeCap = 1000
	}
	return o
}

// Stats is a snapshot of scheduler observability counters.
type Stats struct {
	MessagesPerSecond float64 `json:"messages_per_second"`
	BacklogTicks      int     `json:"backlog_ticks"`
	BacklogActive     bool    `json:"backlog_active"`
	Purges            int64   `json:"purges"`
	PurgedLines       int64   `json:"purged_lines"`
	InvalidLines      int64   `json:"invalid_lines"`
	TotalLines        int64   `json:"total_lines"`
}

// Scheduler drains a line source into the registry with bounded work per
// tick. Tick is driven by a single goroutine; Stats may be read from others.
type Scheduler struct {
	src      LineSource
	registry *motion.Registry
	clock    timeutil.Clock
	recorder Recorder
	opts     Options

	mu           sync.Mutex
	backlogCount int
	purges       int64
	purgedLines  int64
	invalidLines int64
	totalLines   int64
	windowStart  time.Time
	windowCount  int
	mps          float64
}

// NewScheduler creates a scheduler. recorder may be nil.
func NewScheduler(src LineSource, registry *motion.Registry, clock timeutil.Clock, recorder Recorder, opts Options) *Scheduler {
	return &Scheduler{
		src:      src,
		registry: registry,
		clock:    clock,
		recorder: recorder,
		opts:     opts.withDefaults(),
		windowStart: clock.Now(),
	}
}

// TickResult reports what one tick did.
type TickResult struct {
	Drained int
	Purged  int
}

// Tick drains at most the configured budget of pending lines, dispatching
// each parsed message to the registry. A full-budget drain implies more may
// be pending and advances the backlog counter; reaching the backlog
// threshold performs one bounded purge.
func (s *Scheduler) Tick() TickResult {
	var res TickResult

	for i := 0; i < s.opts.DrainBudget; i++ {
		line, ok := s.src.TryReadLine()
		if !ok {
			break
		}
		res.Drained++
		s.handleLine(line)
	}

	s.mu.Lock()
	if res.Drained == s.opts.DrainBudget {
		s.backlogCount++
	} else {
		s.backlogCount = 0
	}
	purgeDue := s.backlogCount >= s.opts.BacklogTicks
	s.mu.Unlock()

	if purgeDue {
		res.Purged = s.purge()
	}

	s.rollWindow(res.Drained)
	return res
}

// handleLine parses and dispatches one line. Invalid lines are dropped with
// no registry effect.
func (s *Scheduler) handleLine(line string) {
	s.mu.Lock()
	s.totalLines++
	s.mu.Unlock()

	msg := wire.Parse(line)
	switch msg.Kind {
	case wire.KindRegistration:
		s.registry.Register(msg.ID)

	case wire.KindData:
		result, ok := s.registry.Dispatch(msg.ID, motion.Vec3{X: msg.X, Y: msg.Y, Z: msg.Z})
		if !ok || s.recorder == nil {
			return
		}
		now := s.clock.Now()
		if result.LevelChanged {
			tr := motion.Transition{
				StreamID:  msg.ID,
				FromLevel: result.FromLevel,
				ToLevel:   result.ToLevel,
				Distance:  result.Distance,
				At:        now,
			}
			if err := s.recorder.RecordTransition(tr); err != nil {
				monitoring.Logf("failed to record transition for stream %d: %v", msg.ID, err)
			}
		}
		if result.Calibration != nil {
			if err := s.recorder.RecordCalibration(*result.Calibration); err != nil {
				monitoring.Logf("failed to record calibration for stream %d: %v", msg.ID, err)
			}
		}

	default:
		s.mu.Lock()
		s.invalidLines++
		s.mu.Unlock()
	}
}

// purge discards pending lines up to the purge cap and resets the backlog
// counter. The cap keeps a single tick's work bounded even when the source
// is hopelessly behind.
func (s *Scheduler) purge() int {
	discarded := 0
	for discarded < s.opts.PurgeCap {
		if _, ok := s.src.TryReadLine(); !ok {
			break
		}
		discarded++
	}

	s.mu.Lock()
	s.backlogCount = 0
	s.purges++
	s.purgedLines += int64(discarded)
	s.mu.Unlock()

	monitoring.Logf("sustained ingest backlog: purged %d pending lines", discarded)
	return discarded
}

// rollWindow maintains the rolling messages-per-second figure over 1000ms
// wall-clock windows.
func (s *Scheduler) rollWindow(drained int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windowCount += drained
	elapsed := s.clock.Now().Sub(s.windowStart)
	if elapsed >= time.Second {
		s.mps = float64(s.windowCount) / elapsed.Seconds()
		s.windowCount = 0
		s.windowStart = s.clock.Now()
	}
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		MessagesPerSecond: s.mps,
		BacklogTicks:      s.backlogCount,
		BacklogActive:     s.backlogCount > 0,
		Purges:            s.purges,
		PurgedLines:       s.purgedLines,
		InvalidLines:      s.invalidLines,
		TotalLines:        s.totalLines,
	}
}
