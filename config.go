package qibla

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/aadithya-v/qibla/store"
)

// Config contains configuration options for a Finder.
type Config struct {
	// Target is the coordinate the compass points at.
	// Default: the Kaaba.
	Target *GeoCoordinate

	// BearingCacheTTL is how long a memoized bearing is kept.
	// Default: 30 days.
	BearingCacheTTL time.Duration

	// CoordinatePrecision is the number of decimal places of the coordinates
	// used as memo keys. 6 places is about 11 cm at the equator.
	// Default: 6.
	CoordinatePrecision int

	// GeoIPDatabasePath is the path to a MaxMind GeoLite2-City.mmdb file.
	// Optional; enables Finder.LocateIP.
	GeoIPDatabasePath string

	// SessionStore is the storage backend for session history.
	// Default: SQLite store (creates qibla.db in current directory).
	SessionStore store.SessionStore

	// BearingCache memoizes bearings per coordinate pair.
	// Default: in-memory cache.
	BearingCache store.BearingCache

	// DatabasePath is the path for the default SQLite database.
	// Only used if SessionStore is nil.
	// Default: "qibla.db".
	DatabasePath string

	// Logger receives structured logs. Default: disabled.
	Logger *zerolog.Logger

	// Clock is the time source for session timestamps. Default: wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	target := Kaaba
	logger := zerolog.Nop()
	return Config{
		Target:              &target,
		BearingCacheTTL:     30 * 24 * time.Hour,
		CoordinatePrecision: 6,
		DatabasePath:        "qibla.db",
		Logger:              &logger,
		Clock:               clock.New(),
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Target == nil {
		c.Target = defaults.Target
	}
	if c.BearingCacheTTL <= 0 {
		c.BearingCacheTTL = defaults.BearingCacheTTL
	}
	if c.CoordinatePrecision <= 0 {
		c.CoordinatePrecision = defaults.CoordinatePrecision
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
	if c.Clock == nil {
		c.Clock = defaults.Clock
	}
}
