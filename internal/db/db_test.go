package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/motion"
)

const migrationsDir = "../../migrations"

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion_test.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.MigrateUp(migrationsDir))
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.MigrateUp(migrationsDir))

	version, dirty, err := db.MigrateVersion(migrationsDir)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRecordAndQueryCalibrations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	session := uuid.NewString()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cal := motion.CalibrationResult{
		StreamID:      2,
		Baseline:      motion.Vec3{X: 10, Y: -20, Z: 980},
		Noise:         180,
		Quality:       motion.QualityGood,
		Deadzone:      450,
		BaseThreshold: 720,
		SampleCount:   60,
		CompletedAt:   at,
	}
	require.NoError(t, db.RecordCalibration(session, cal))

	rows, err := db.Calibrations(2, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, session, got.SessionID)
	assert.Equal(t, 2, got.StreamID)
	assert.Equal(t, 180.0, got.Noise)
	assert.Equal(t, "good", got.Quality)
	assert.Equal(t, 450.0, got.Deadzone)
	assert.Equal(t, 720.0, got.BaseThreshold)
	assert.Equal(t, 10.0, got.BaselineX)
	assert.Equal(t, 980.0, got.BaselineZ)
	assert.Equal(t, 60, got.SampleCount)
	assert.True(t, got.CompletedAt.Equal(at))

	// stream filter excludes other streams
	rows, err = db.Calibrations(3, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordAndQueryTransitions(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	session := uuid.NewString()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.RecordTransition(session, motion.Transition{
			StreamID:  1,
			FromLevel: i,
			ToLevel:   i + 1,
			Distance:  float64(400 * (i + 1)),
			At:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	rows, err := db.Transitions(1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// newest first
	assert.Equal(t, 3, rows[0].ToLevel)
	assert.Equal(t, 1, rows[2].ToLevel)

	// limit applies
	rows, err = db.Transitions(0, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSessionTransitionsChronological(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	session := uuid.NewString()
	other := uuid.NewString()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordTransition(session, motion.Transition{
		StreamID: 1, FromLevel: 0, ToLevel: 2, Distance: 1200, At: base.Add(2 * time.Second),
	}))
	require.NoError(t, db.RecordTransition(session, motion.Transition{
		StreamID: 1, FromLevel: 2, ToLevel: 0, Distance: 0, At: base.Add(5 * time.Second),
	}))
	require.NoError(t, db.RecordTransition(other, motion.Transition{
		StreamID: 4, FromLevel: 0, ToLevel: 1, Distance: 400, At: base,
	}))

	rows, err := db.SessionTransitions(session)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].ToLevel)
	assert.Equal(t, 0, rows[1].ToLevel)
	assert.True(t, rows[0].At.Before(rows[1].At))
}

func TestMigrateDownDropsTables(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.MigrateDown(migrationsDir))

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('calibrations','transitions')`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}
