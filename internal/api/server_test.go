package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// sliceSource feeds a fixed set of lines then reports empty.
type sliceSource struct{ lines []string }

func (s *sliceSource) TryReadLine() (string, bool) {
	if len(s.lines) == 0 {
		return "", false
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, true
}

type testHarness struct {
	server   *Server
	clock    *timeutil.MockClock
	registry *motion.Registry
	mux      *http.ServeMux
}

func newTestHarness(t *testing.T, store *db.DB) *testHarness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry := motion.NewRegistry(motion.DefaultParams(), clock)
	sched := ingest.NewScheduler(&sliceSource{}, registry, clock, nil, ingest.Options{})
	server := NewServer(registry, sched, store, "mg")
	return &testHarness{
		server:   server,
		clock:    clock,
		registry: registry,
		mux:      server.ServeMux(),
	}
}

func (h *testHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func TestListStreamsEmpty(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	rec := h.get(t, "/api/streams")
	require.Equal(t, http.StatusOK, rec.Code)

	var snaps []motion.StreamSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	assert.Empty(t, snaps)
}

func TestRegisterThenListStreams(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	rec := h.postForm(t, "/api/register", url.Values{"id": {"3"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.get(t, "/api/streams")
	var snaps []motion.StreamSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].ID)
	assert.Equal(t, "calibrating", snaps[0].Phase)
}

func TestRegisterRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	rec := h.postForm(t, "/api/register", url.Values{"id": {"7"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.postForm(t, "/api/register", url.Values{"id": {"zero"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalibrateInactiveStreamConflicts(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.registry.Register(1)

	// registered but never fed: inactive, so calibration is refused
	rec := h.postForm(t, "/api/calibrate", url.Values{"id": {"1"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCalibrateActiveStream(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.registry.Dispatch(1, motion.Vec3{X: 1, Y: 2, Z: 3})

	rec := h.postForm(t, "/api/calibrate", url.Values{"id": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["started"])
}

func TestCalibrateAllCountsActiveOnly(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.registry.Dispatch(1, motion.Vec3{})
	h.registry.Dispatch(2, motion.Vec3{})
	h.registry.Register(5) // never fed, stays inactive

	rec := h.postForm(t, "/api/calibrate", url.Values{"id": {"all"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["started"])
}

func TestStatsMergesIngestFigures(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.registry.Dispatch(1, motion.Vec3{})

	rec := h.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Streams motion.AggregateSnapshot `json:"streams"`
		Ingest  ingest.Stats             `json:"ingest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Streams.ActiveStreamCount)
	assert.Equal(t, 1, payload.Streams.RegisteredCount)
	assert.False(t, payload.Streams.BacklogActive)
}

func TestHistoryEndpointsWithoutDB(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/transitions").Code)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/calibrations").Code)
}

func TestTransitionsFromDB(t *testing.T) {
	t.Parallel()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.MigrateUp("../../migrations"))

	require.NoError(t, store.RecordTransition("s1", motion.Transition{
		StreamID: 2, FromLevel: 0, ToLevel: 3, Distance: 1900,
		At: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	h := newTestHarness(t, store)
	rec := h.get(t, "/api/transitions?stream=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []db.TransitionRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].ToLevel)
	assert.Equal(t, 1900.0, rows[0].Distance)
}

func TestStreamsUnitsQueryOverride(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	h.registry.Register(1)

	rec := h.get(t, "/api/streams?units=g")
	require.Equal(t, http.StatusOK, rec.Code)

	var snaps []motion.StreamSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	// the 250mg deadzone floor rendered in g
	assert.InDelta(t, 0.25, snaps[0].Deadzone, 1e-9)

	// invalid override falls back to the server default
	rec = h.get(t, "/api/streams?units=furlongs")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	assert.InDelta(t, 250.0, snaps[0].Deadzone, 1e-9)
}

func TestShowConfig(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	rec := h.get(t, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "mg", cfg["units"])
	assert.Equal(t, false, cfg["persistence"])
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	rec := h.postForm(t, "/api/streams", url.Values{})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = h.get(t, "/api/calibrate")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChartNeedsSamples(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, h.get(t, "/debug/levels-chart").Code)

	h.registry.Dispatch(1, motion.Vec3{X: 10, Y: 0, Z: 0})
	h.server.ObserveTick(h.clock.Now())

	rec := h.get(t, "/debug/levels-chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Motion distance by stream")
}
