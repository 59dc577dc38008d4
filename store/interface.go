package store

import "time"

// Session is the stored record of one Qibla-finding session.
// This is a copy of the main session fields to avoid circular imports.
type Session struct {
	SessionID  string
	UserID     string
	DeviceLat  float64
	DeviceLng  float64
	TargetLat  float64
	TargetLng  float64
	Bearing    float64
	DistanceKM float64
	DeviceType string
	OS         string

	// Outcome is the final compass state, e.g. "ready" or "error". Empty
	// while the session is open.
	Outcome   string
	CreatedAt time.Time
	// EndedAt is zero while the session is open.
	EndedAt time.Time
}

// Open reports whether the session has not been ended.
func (s *Session) Open() bool {
	return s.EndedAt.IsZero()
}

// Duration returns how long the session lasted, or zero if it is still open.
func (s *Session) Duration() time.Duration {
	if s.Open() {
		return 0
	}
	return s.EndedAt.Sub(s.CreatedAt)
}

// SessionStore defines the interface for session history backends.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Save persists a new session. If a session with the same ID exists,
	// it will be overwritten.
	Save(session *Session) error

	// End records the outcome and end time of a session. Ending an unknown
	// or already ended session is not an error and leaves the first end intact.
	End(sessionID, outcome string, endedAt time.Time) error

	// ListByUser returns up to limit sessions for a user, newest first.
	// A limit of 0 means no limit.
	ListByUser(userID string, limit int) ([]*Session, error)

	// Close releases any resources held by the store.
	Close() error
}

// BearingCache memoizes computed bearings by coordinate-pair key.
// Implementations must be safe for concurrent use.
type BearingCache interface {
	// Get returns the cached bearing for key. ok is false on a miss.
	Get(key string) (bearing float64, ok bool, err error)

	// Set stores bearing under key. After ttl the entry is dropped;
	// a ttl of 0 keeps it until Close.
	Set(key string, bearing float64, ttl time.Duration) error

	// Close releases any resources held by the cache.
	Close() error
}
