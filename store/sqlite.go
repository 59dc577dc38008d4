package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite session store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS qibla_sessions (
		session_id   TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		device_lat   REAL NOT NULL,
		device_lng   REAL NOT NULL,
		target_lat   REAL NOT NULL,
		target_lng   REAL NOT NULL,
		bearing      REAL NOT NULL,
		distance_km  REAL NOT NULL,
		device_type  TEXT,
		os           TEXT,
		outcome      TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL,
		ended_at     DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_qibla_sessions_user
		ON qibla_sessions (user_id, created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Save persists a new session.
func (s *SQLiteStore) Save(session *Session) error {
	query := `
	INSERT OR REPLACE INTO qibla_sessions (
		session_id, user_id, device_lat, device_lng, target_lat, target_lng,
		bearing, distance_km, device_type, os, outcome, created_at, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		session.SessionID,
		session.UserID,
		session.DeviceLat,
		session.DeviceLng,
		session.TargetLat,
		session.TargetLng,
		session.Bearing,
		session.DistanceKM,
		session.DeviceType,
		session.OS,
		session.Outcome,
		session.CreatedAt.UTC(),
		nullTime(session.EndedAt),
	)

	if err != nil {
		return fmt.Errorf("sqlite: failed to save session: %w", err)
	}
	return nil
}

// End records the outcome of an open session.
func (s *SQLiteStore) End(sessionID, outcome string, endedAt time.Time) error {
	_, err := s.db.Exec(
		"UPDATE qibla_sessions SET outcome = ?, ended_at = ? WHERE session_id = ? AND ended_at IS NULL",
		outcome, endedAt.UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to end session: %w", err)
	}
	return nil
}

// ListByUser returns a user's sessions, newest first.
func (s *SQLiteStore) ListByUser(userID string, limit int) ([]*Session, error) {
	query := `
	SELECT session_id, user_id, device_lat, device_lng, target_lat, target_lng,
		   bearing, distance_km, device_type, os, outcome, created_at, ended_at
	FROM qibla_sessions
	WHERE user_id = ?
	ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanSession scans a session row shared by the SQL backends.
func scanSession(rows *sql.Rows) (*Session, error) {
	var (
		session    Session
		deviceType sql.NullString
		os         sql.NullString
		endedAt    sql.NullTime
	)
	err := rows.Scan(
		&session.SessionID,
		&session.UserID,
		&session.DeviceLat,
		&session.DeviceLng,
		&session.TargetLat,
		&session.TargetLng,
		&session.Bearing,
		&session.DistanceKM,
		&deviceType,
		&os,
		&session.Outcome,
		&session.CreatedAt,
		&endedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	session.DeviceType = deviceType.String
	session.OS = os.String
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}
	return &session, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
