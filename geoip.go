package qibla

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader provides IP geolocation using a MaxMind GeoLite2-City database.
type GeoIPReader struct {
	db   *geoip2.Reader
	path string
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}

	return &GeoIPReader{
		db:   db,
		path: dbPath,
	}, nil
}

// Lookup returns the approximate coordinate of an IP address.
func (r *GeoIPReader) Lookup(ip string) (GeoCoordinate, error) {
	if r == nil || r.db == nil {
		return GeoCoordinate{}, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return GeoCoordinate{}, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return GeoCoordinate{}, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	// MaxMind reports 0,0 when it has no position for the address.
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return GeoCoordinate{}, fmt.Errorf("%w: no position for %s", ErrGeoIPLookupFailed, ip)
	}

	return GeoCoordinate{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// Locator returns a LocationProvider resolving ip through this database.
func (r *GeoIPReader) Locator(ip string) LocationProvider {
	return LocationFunc(func(ctx context.Context) (GeoCoordinate, error) {
		return r.Lookup(ip)
	})
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
