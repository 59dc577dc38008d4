package qibla

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aadithya-v/qibla/store"
)

// Finder creates Qibla sessions and keeps their history.
type Finder struct {
	config   Config
	logger   zerolog.Logger
	sessions store.SessionStore
	bearings store.BearingCache
	geoip    *GeoIPReader
}

// New creates a new Finder with the given configuration.
// If SessionStore or BearingCache are not provided, defaults are used:
// - SessionStore: SQLite (creates qibla.db)
// - BearingCache: in-memory
func New(cfg Config) (*Finder, error) {
	cfg.applyDefaults()

	if err := cfg.Target.Validate(); err != nil {
		return nil, fmt.Errorf("qibla: target: %w", err)
	}

	f := &Finder{
		config: cfg,
		logger: *cfg.Logger,
	}

	if cfg.SessionStore != nil {
		f.sessions = cfg.SessionStore
	} else {
		sqliteStore, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("qibla: failed to initialize SQLite store: %w", err)
		}
		f.sessions = sqliteStore
	}

	if cfg.BearingCache != nil {
		f.bearings = cfg.BearingCache
	} else {
		f.bearings = store.NewMemoryCache()
	}

	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("qibla: failed to initialize GeoIP: %w", err)
		}
		f.geoip = geoip
	}

	return f, nil
}

// Close releases all resources held by the Finder.
func (f *Finder) Close() error {
	var errs []error

	if f.sessions != nil {
		if err := f.sessions.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if f.bearings != nil {
		if err := f.bearings.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if f.geoip != nil {
		if err := f.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("qibla: errors during close: %v", errs)
	}
	return nil
}

// Target returns the coordinate the compass points at.
func (f *Finder) Target() GeoCoordinate {
	return *f.config.Target
}

// LocateIP returns a LocationProvider that resolves ip through the GeoIP
// database. Without a database it always fails with ErrLocationUnavailable.
func (f *Finder) LocateIP(ip string) LocationProvider {
	if f.geoip == nil {
		return LocationFunc(func(ctx context.Context) (GeoCoordinate, error) {
			return GeoCoordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, ErrGeoIPDatabaseNotConfigured)
		})
	}
	return f.geoip.Locator(ip)
}

// Bearing returns the bearing from device to the configured target, using
// the memo cache. Cache failures are logged and the bearing is computed anyway.
func (f *Finder) Bearing(device GeoCoordinate) float64 {
	target := *f.config.Target
	key := f.bearingKey(device, target)

	if cached, ok, err := f.bearings.Get(key); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("bearing cache read failed")
	} else if ok {
		return cached
	}

	bearing := Bearing(device, target)
	if err := f.bearings.Set(key, bearing, f.config.BearingCacheTTL); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("bearing cache write failed")
	}
	return bearing
}

// Begin starts a session for userID: it obtains the device position once from
// loc, computes the bearing, and records the session. The returned session's
// compass is idle until StartCompass is called.
//
// A position that cannot be obtained yields ErrLocationUnavailable.
func (f *Finder) Begin(
	ctx context.Context,
	userID string,
	device DeviceInfo,
	loc LocationProvider,
	sensor OrientationSensorProvider,
) (*Session, error) {
	coord, err := locate(ctx, loc)
	if err != nil {
		f.logger.Info().Err(err).Str("user_id", userID).Msg("qibla location unavailable")
		return nil, err
	}

	bearing := f.Bearing(coord)
	s := newSession(uuid.NewString(), userID, coord, *f.config.Target, bearing, sensor,
		f.sessions, f.config.Clock, f.logger.With().Str("user_id", userID).Logger())

	if err := f.sessions.Save(s.record(device)); err != nil {
		return nil, fmt.Errorf("qibla: failed to save session: %w", err)
	}

	f.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", userID).
		Float64("bearing", bearing).
		Float64("distance_km", s.DistanceKM).
		Msg("qibla session started")

	return s, nil
}

// History returns up to limit sessions for a user, newest first.
// A limit of 0 means no limit.
func (f *Finder) History(userID string, limit int) ([]*SessionRecord, error) {
	storeSessions, err := f.sessions.ListByUser(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("qibla: failed to list sessions: %w", err)
	}

	records := make([]*SessionRecord, len(storeSessions))
	for i, s := range storeSessions {
		records[i] = storeToRecord(s)
	}
	return records, nil
}

func (f *Finder) bearingKey(device, target GeoCoordinate) string {
	p := f.config.CoordinatePrecision
	return fmt.Sprintf("%.*f,%.*f>%.*f,%.*f",
		p, device.Latitude, p, device.Longitude,
		p, target.Latitude, p, target.Longitude)
}
