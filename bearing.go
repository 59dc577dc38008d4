package qibla

import (
	"fmt"
	"math"
)

// GeoCoordinate is a point on the Earth's surface in decimal degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Kaaba is the default target coordinate.
var Kaaba = GeoCoordinate{Latitude: 21.4225, Longitude: 39.8262}

// Validate reports ErrInvalidCoordinate if the latitude is outside [-90,90],
// the longitude outside [-180,180], or either is not finite.
func (c GeoCoordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return fmt.Errorf("%w: %v,%v", ErrInvalidCoordinate, c.Latitude, c.Longitude)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// degenerateEpsilon bounds both atan2 operands below which the bearing is undefined.
const degenerateEpsilon = 1e-12

// Bearing returns the initial great-circle bearing from device to target in
// degrees clockwise from true north, in [0, 360). The Earth is modelled as a
// sphere. Inputs are not validated; callers pass coordinates obtained from a
// geolocation source.
//
// When the two points coincide the bearing is undefined and 0 is returned.
func Bearing(device, target GeoCoordinate) float64 {
	deviceLat := degToRad(device.Latitude)
	targetLat := degToRad(target.Latitude)
	dLon := degToRad(target.Longitude - device.Longitude)

	y := math.Sin(dLon) * math.Cos(targetLat)
	x := math.Cos(deviceLat)*math.Sin(targetLat) -
		math.Sin(deviceLat)*math.Cos(targetLat)*math.Cos(dLon)

	if math.Abs(y) < degenerateEpsilon && math.Abs(x) < degenerateEpsilon {
		return 0
	}

	brng := math.Mod(radToDeg(math.Atan2(y, x))+360, 360)
	if brng >= 360 {
		brng = 0
	}
	return brng
}

// QiblaBearing returns the bearing from device to the Kaaba.
func QiblaBearing(device GeoCoordinate) float64 {
	return Bearing(device, Kaaba)
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
