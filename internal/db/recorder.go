package db

import (
	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/motion"
)

// SessionRecorder binds a database to one ingest session so every event it
// writes carries the same session id. One recorder is created per process
// start; replays of the same fixture produce distinct sessions.
type SessionRecorder struct {
	db        *DB
	sessionID string
}

// NewSessionRecorder creates a recorder with a fresh session id.
func NewSessionRecorder(db *DB) *SessionRecorder {
	return &SessionRecorder{db: db, sessionID: uuid.NewString()}
}

// SessionID returns the id stamped on every recorded event.
func (r *SessionRecorder) SessionID() string { return r.sessionID }

func (r *SessionRecorder) RecordTransition(tr motion.Transition) error {
	return r.db.RecordTransition(r.sessionID, tr)
}

func (r *SessionRecorder) RecordCalibration(cal motion.CalibrationResult) error {
	return r.db.RecordCalibration(r.sessionID, cal)
}
