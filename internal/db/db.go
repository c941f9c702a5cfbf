// Package db persists calibration results and motion level transitions to
// SQLite and serves query and admin surfaces over them.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the SQLite database at path. Schema setup
// is handled by MigrateUp, which the caller runs before first use.
func NewDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{DB: sqldb, path: path}, nil
}

// CalibrationRow is one persisted calibration result.
type CalibrationRow struct {
	SessionID     string    `json:"session_id"`
	StreamID      int       `json:"stream_id"`
	Noise         float64   `json:"noise_mg"`
	Quality       string    `json:"quality"`
	Deadzone      float64   `json:"deadzone_mg"`
	BaseThreshold float64   `json:"base_threshold_mg"`
	BaselineX     float64   `json:"baseline_x"`
	BaselineY     float64   `json:"baseline_y"`
	BaselineZ     float64   `json:"baseline_z"`
	SampleCount   int       `json:"sample_count"`
	CompletedAt   time.Time `json:"completed_at"`
}

// TransitionRow is one persisted motion level transition.
type TransitionRow struct {
	SessionID string    `json:"session_id"`
	StreamID  int       `json:"stream_id"`
	FromLevel int       `json:"from_level"`
	ToLevel   int       `json:"to_level"`
	Distance  float64   `json:"distance_mg"`
	At        time.Time `json:"at"`
}

// RecordCalibration inserts one completed calibration.
func (db *DB) RecordCalibration(sessionID string, cal motion.CalibrationResult) error {
	_, err := db.Exec(
		`INSERT INTO calibrations (
			session_id, stream_id, noise, quality, deadzone, base_threshold,
			baseline_x, baseline_y, baseline_z, sample_count, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, cal.StreamID, cal.Noise, cal.Quality.String(), cal.Deadzone,
		cal.BaseThreshold, cal.Baseline.X, cal.Baseline.Y, cal.Baseline.Z,
		cal.SampleCount, cal.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record calibration: %w", err)
	}
	return nil
}

// RecordTransition inserts one motion level transition.
func (db *DB) RecordTransition(sessionID string, tr motion.Transition) error {
	_, err := db.Exec(
		`INSERT INTO transitions (
			session_id, stream_id, from_level, to_level, distance, at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, tr.StreamID, tr.FromLevel, tr.ToLevel, tr.Distance, tr.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Calibrations returns the most recent calibrations, newest first. streamID
// zero means all streams.
func (db *DB) Calibrations(streamID, limit int) ([]CalibrationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT session_id, stream_id, noise, quality, deadzone, base_threshold,
		baseline_x, baseline_y, baseline_z, sample_count, completed_at
		FROM calibrations`
	args := []any{}
	if streamID > 0 {
		query += ` WHERE stream_id = ?`
		args = append(args, streamID)
	}
	query += ` ORDER BY completed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalibrationRow
	for rows.Next() {
		var c CalibrationRow
		if err := rows.Scan(
			&c.SessionID, &c.StreamID, &c.Noise, &c.Quality, &c.Deadzone,
			&c.BaseThreshold, &c.BaselineX, &c.BaselineY, &c.BaselineZ,
			&c.SampleCount, &c.CompletedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transitions returns the most recent level transitions, newest first.
// streamID zero means all streams.
func (db *DB) Transitions(streamID, limit int) ([]TransitionRow, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT session_id, stream_id, from_level, to_level, distance, at
		FROM transitions`
	args := []any{}
	if streamID > 0 {
		query += ` WHERE stream_id = ?`
		args = append(args, streamID)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var tr TransitionRow
		if err := rows.Scan(
			&tr.SessionID, &tr.StreamID, &tr.FromLevel, &tr.ToLevel,
			&tr.Distance, &tr.At,
		); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SessionTransitions returns all transitions for one ingest session in
// chronological order, for offline plotting.
func (db *DB) SessionTransitions(sessionID string) ([]TransitionRow, error) {
	rows, err := db.Query(
		`SELECT session_id, stream_id, from_level, to_level, distance, at
		FROM transitions WHERE session_id = ? ORDER BY at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var tr TransitionRow
		if err := rows.Scan(
			&tr.SessionID, &tr.StreamID, &tr.FromLevel, &tr.ToLevel,
			&tr.Distance, &tr.At,
		); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts debugging endpoints (live SQL, backup download)
// on the given mux under /debug/. These are reachable only over
// localhost/Tailscale, not publicly.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Motion DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, "Failed to create backup", http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, "Failed to open backup", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backupPath+".gz"))
		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, f); err != nil {
			monitoring.Logf("failed to stream backup: %v", err)
		}
	}))
}
