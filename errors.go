package qibla

import "errors"

var (
	// ErrLocationUnavailable is returned when the device position could not be
	// obtained, whether access was denied or the position was unknown.
	ErrLocationUnavailable = errors.New("qibla: location access needed")

	// ErrSensorPermissionDenied is returned when the user or platform refused
	// access to the orientation sensor.
	ErrSensorPermissionDenied = errors.New("qibla: orientation sensor permission denied")

	// ErrSensorUnsupported is returned when the platform has no orientation sensor.
	ErrSensorUnsupported = errors.New("qibla: orientation sensor not supported")

	// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
	ErrInvalidCoordinate = errors.New("qibla: invalid coordinate")

	// ErrTrackerStopped is returned from Start when the tracker was stopped
	// before the permission request resolved.
	ErrTrackerStopped = errors.New("qibla: heading tracker stopped")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("qibla: session closed")

	// ErrGeoIPDatabaseNotConfigured is returned when GeoIP lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("qibla: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when IP geolocation lookup fails.
	ErrGeoIPLookupFailed = errors.New("qibla: GeoIP lookup failed")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("qibla: invalid IP address")
)
