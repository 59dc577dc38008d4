package qibla

import "sync"

// Rotation returns the angle, in degrees, by which a north-up arrow must be
// turned so it points along bearing while the device faces heading.
//
// The result is not normalized: renderers animate between successive values,
// and wrapping to [0, 360) would make the arrow spin the long way round when
// the heading crosses north.
func Rotation(bearing, heading float64) float64 {
	return bearing - heading
}

// CompassReconciler combines a fixed bearing with the latest device heading.
// The zero value knows neither.
type CompassReconciler struct {
	mu         sync.RWMutex
	bearing    float64
	hasBearing bool
	heading    float64
	hasHeading bool
	rotation   float64
}

// NewCompassReconciler returns a reconciler for the given bearing.
func NewCompassReconciler(bearing float64) *CompassReconciler {
	return &CompassReconciler{bearing: bearing, hasBearing: true}
}

// SetBearing records the target bearing.
func (r *CompassReconciler) SetBearing(bearing float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bearing = bearing
	r.hasBearing = true
	r.recompute()
}

// Update records a new heading and returns the resulting rotation. ok is false
// while the bearing is unknown.
func (r *CompassReconciler) Update(heading float64) (rotation float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.heading = heading
	r.hasHeading = true
	r.recompute()
	return r.rotation, r.hasBearing
}

// Clear forgets the heading, e.g. after the sensor listener is removed.
func (r *CompassReconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hasHeading = false
	r.rotation = 0
}

// Rotation returns the current rotation. ok is false unless both the bearing
// and a heading are known.
func (r *CompassReconciler) Rotation() (rotation float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasBearing || !r.hasHeading {
		return 0, false
	}
	return r.rotation, true
}

func (r *CompassReconciler) recompute() {
	if r.hasBearing && r.hasHeading {
		r.rotation = Rotation(r.bearing, r.heading)
	}
}
