package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion.report/internal/motion"
)

// historySample is one tick's worth of per-stream display state.
type historySample struct {
	at    time.Time
	snaps []motion.StreamSnapshot
}

// historyBuffer is a fixed-capacity ring of recent ticks backing the debug
// chart. Appends overwrite the oldest sample once full.
type historyBuffer struct {
	mu      sync.Mutex
	samples []historySample
	next    int
	full    bool
}

func newHistoryBuffer(capacity int) *historyBuffer {
	return &historyBuffer{samples: make([]historySample, capacity)}
}

func (h *historyBuffer) Append(at time.Time, snaps []motion.StreamSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = historySample{at: at, snaps: snaps}
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

// Ordered returns the samples oldest first.
func (h *historyBuffer) Ordered() []historySample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]historySample, h.next)
		copy(out, h.samples[:h.next])
		return out
	}
	out := make([]historySample, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	out = append(out, h.samples[:h.next]...)
	return out
}

// renderChart serves an interactive line chart of recent per-stream motion
// distance and level, for eyeballing threshold tuning without a frontend.
func (s *Server) renderChart(w http.ResponseWriter, r *http.Request) {
	samples := s.history.Ordered()
	if len(samples) == 0 {
		http.Error(w, "No samples recorded yet", http.StatusServiceUnavailable)
		return
	}

	xs := make([]string, len(samples))
	distances := map[int][]opts.LineData{}
	levels := map[int][]opts.LineData{}
	for i, sample := range samples {
		xs[i] = sample.at.Format("15:04:05.000")
		for _, snap := range sample.snaps {
			distances[snap.ID] = append(distances[snap.ID], opts.LineData{Value: snap.Distance})
			levels[snap.ID] = append(levels[snap.ID], opts.LineData{Value: snap.MotionLevel})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Motion distance by stream",
			Subtitle: fmt.Sprintf("last %d ticks, %s", len(samples), s.units),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs)
	for id := 1; id <= motion.MaxStreams; id++ {
		if pts, ok := distances[id]; ok {
			line.AddSeries(fmt.Sprintf("stream %d distance", id), pts)
		}
	}

	levelLine := charts.NewLine()
	levelLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Motion level by stream"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	levelLine.SetXAxis(xs)
	for id := 1; id <= motion.MaxStreams; id++ {
		if pts, ok := levels[id]; ok {
			levelLine.AddSeries(fmt.Sprintf("stream %d level", id), pts)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		return
	}
	levelLine.Render(w)
}
