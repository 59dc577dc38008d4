package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements SessionStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL session store on an open connection.
// The connection must be opened with parseTime=true.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL session store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS qibla_sessions (
		session_id   VARCHAR(64) PRIMARY KEY,
		user_id      VARCHAR(255) NOT NULL,
		device_lat   DECIMAL(10, 7) NOT NULL,
		device_lng   DECIMAL(11, 7) NOT NULL,
		target_lat   DECIMAL(10, 7) NOT NULL,
		target_lng   DECIMAL(11, 7) NOT NULL,
		bearing      DOUBLE NOT NULL,
		distance_km  DOUBLE NOT NULL,
		device_type  VARCHAR(20),
		os           VARCHAR(100),
		outcome      VARCHAR(32) NOT NULL DEFAULT '',
		created_at   TIMESTAMP(6) NOT NULL,
		ended_at     TIMESTAMP(6) NULL DEFAULT NULL,

		INDEX idx_qibla_sessions_user (user_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

// Save persists a new session.
func (s *MySQLStore) Save(session *Session) error {
	query := `
	INSERT INTO qibla_sessions (
		session_id, user_id, device_lat, device_lng, target_lat, target_lng,
		bearing, distance_km, device_type, os, outcome, created_at, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		user_id = VALUES(user_id),
		device_lat = VALUES(device_lat),
		device_lng = VALUES(device_lng),
		target_lat = VALUES(target_lat),
		target_lng = VALUES(target_lng),
		bearing = VALUES(bearing),
		distance_km = VALUES(distance_km),
		device_type = VALUES(device_type),
		os = VALUES(os),
		outcome = VALUES(outcome),
		created_at = VALUES(created_at),
		ended_at = VALUES(ended_at)
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
		return fmt.Errorf("mysql: failed to save session: %w", err)
	}
	return nil
}

// End records the outcome of an open session.
func (s *MySQLStore) End(sessionID, outcome string, endedAt time.Time) error {
	_, err := s.db.Exec(
		"UPDATE qibla_sessions SET outcome = ?, ended_at = ? WHERE session_id = ? AND ended_at IS NULL",
		outcome, endedAt.UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to end session: %w", err)
	}
	return nil
}

// ListByUser returns a user's sessions, newest first.
func (s *MySQLStore) ListByUser(userID string, limit int) ([]*Session, error) {
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
		return nil, fmt.Errorf("mysql: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
