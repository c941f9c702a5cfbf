package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/units"
	"github.com/banshee-data/motion.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the live registry state and stored history over HTTP.
// db may be nil when persistence is disabled; the history endpoints then
// report 404.
type Server struct {
	registry  *motion.Registry
	scheduler *ingest.Scheduler
	db        *db.DB
	units     string
	history   *historyBuffer
}

func NewServer(registry *motion.Registry, scheduler *ingest.Scheduler, db *db.DB, targetUnits string) *Server {
	if !units.IsValid(targetUnits) {
		targetUnits = units.MG
	}
	return &Server{
		registry:  registry,
		scheduler: scheduler,
		db:        db,
		units:     targetUnits,
		history:   newHistoryBuffer(600),
	}
}

// ObserveTick records the current per-stream state into the chart history.
// The main loop calls this once per scheduler tick.
func (s *Server) ObserveTick(now time.Time) {
	s.history.Append(now, s.registry.Snapshots())
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/streams", s.listStreams)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/register", s.registerStream)
	mux.HandleFunc("/api/calibrate", s.startCalibration)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/calibrations", s.listCalibrations)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/live", s.liveEvents)
	mux.HandleFunc("/api/ws", s.liveSocket)
	mux.HandleFunc("/debug/levels-chart", s.renderChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// unitsFor resolves the display units for one request: a valid ?units= query
// parameter overrides the server default.
func (s *Server) unitsFor(r *http.Request) string {
	if u := r.URL.Query().Get("units"); units.IsValid(u) {
		return u
	}
	return s.units
}

// convertSnapshot rescales the mg-denominated display fields to the target
// units. Snapshots are value copies so this never touches live state.
func convertSnapshot(snap motion.StreamSnapshot, target string) motion.StreamSnapshot {
	if target == units.MG {
		return snap
	}
	snap.Noise = units.ConvertAcceleration(snap.Noise, target)
	snap.Deadzone = units.ConvertAcceleration(snap.Deadzone, target)
	snap.BaseThreshold = units.ConvertAcceleration(snap.BaseThreshold, target)
	snap.Distance = units.ConvertAcceleration(snap.Distance, target)
	return snap
}

func (s *Server) currentStreams(target string) []motion.StreamSnapshot {
	snaps := s.registry.Snapshots()
	for i := range snaps {
		snaps[i] = convertSnapshot(snaps[i], target)
	}
	return snaps
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.currentStreams(s.unitsFor(r))); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write streams")
	}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	agg := s.registry.Aggregate()
	ingestStats := s.scheduler.Stats()
	agg.MessagesPerSecond = ingestStats.MessagesPerSecond
	agg.BacklogActive = ingestStats.BacklogActive

	payload := map[string]any{
		"streams": agg,
		"ingest":  ingestStats,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
	}
}

func (s *Server) registerStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return
	}
	if !s.registry.Register(id) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Stream id %d out of range", id))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"registered": id})
}

// startCalibration re-enters calibration for one stream (?id=N) or all
// active streams (?id=all). Inactive streams are skipped, matching the
// registry's gating.
func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	target := r.FormValue("id")
	if target == "all" {
		started := s.registry.StartCalibrationAll()
		json.NewEncoder(w).Encode(map[string]any{"started": started})
		return
	}

	id, err := strconv.Atoi(target)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'id' parameter")
		return
	}
	if !s.registry.StartCalibration(id) {
		s.writeJSONError(w, http.StatusConflict,
			fmt.Sprintf("Stream %d is not active", id))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"started": 1})
}

// historyParams parses the shared stream/limit query parameters.
func historyParams(r *http.Request) (streamID, limit int, err error) {
	if v := r.URL.Query().Get("stream"); v != "" {
		streamID, err = strconv.Atoi(v)
		if err != nil || streamID < 1 {
			return 0, 0, fmt.Errorf("invalid 'stream' parameter")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid 'limit' parameter")
		}
	}
	return streamID, limit, nil
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence is disabled")
		return
	}

	streamID, limit, err := historyParams(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.Transitions(streamID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve transitions: %v", err))
		return
	}
	target := s.unitsFor(r)
	for i := range rows {
		rows[i].Distance = units.ConvertAcceleration(rows[i].Distance, target)
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write transitions")
	}
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence is disabled")
		return
	}

	streamID, limit, err := historyParams(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.Calibrations(streamID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve calibrations: %v", err))
		return
	}
	target := s.unitsFor(r)
	for i := range rows {
		rows[i].Noise = units.ConvertAcceleration(rows[i].Noise, target)
		rows[i].Deadzone = units.ConvertAcceleration(rows[i].Deadzone, target)
		rows[i].BaseThreshold = units.ConvertAcceleration(rows[i].BaseThreshold, target)
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write calibrations")
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]any{
		"units":       s.units,
		"max_streams": motion.MaxStreams,
		"persistence": s.db != nil,
		"version":     version.String(),
	}
	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}

// liveEvents pushes stream snapshots as server-sent events until the client
// disconnects.
func (s *Server) liveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.currentStreams(s.units))
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
