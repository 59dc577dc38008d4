package qibla

import (
	"context"
	"errors"
	"math"
	"sync"
)

// OrientationEvent is one reading from a device orientation sensor. Either
// field may be absent.
type OrientationEvent struct {
	// CompassHeading is a tilt-compensated heading, degrees clockwise from north.
	CompassHeading *float64 `json:"compass_heading,omitempty"`

	// Alpha is the generic orientation alpha angle, degrees counter-clockwise
	// around the z axis.
	Alpha *float64 `json:"alpha,omitempty"`
}

// Heading extracts a heading in [0, 360) from the event, preferring
// CompassHeading over Alpha. ok is false if neither holds a finite value.
func (e OrientationEvent) Heading() (heading float64, ok bool) {
	if e.CompassHeading != nil && isFinite(*e.CompassHeading) {
		return normalizeDegrees(*e.CompassHeading), true
	}
	if e.Alpha != nil && isFinite(*e.Alpha) {
		return normalizeDegrees(360 - *e.Alpha), true
	}
	return 0, false
}

// OrientationSensorProvider is a source of device orientation events.
// Implementations hide the platform's permission model behind
// RequestPermission; providers that need no consent return nil immediately.
type OrientationSensorProvider interface {
	// Supported reports whether the platform exposes an orientation sensor.
	Supported() bool

	// RequiresPermission reports whether RequestPermission prompts the user.
	RequiresPermission() bool

	// RequestPermission blocks until the platform answers. It returns
	// ErrSensorPermissionDenied if access was refused.
	RequestPermission(ctx context.Context) error

	// Subscribe attaches handler to the event stream. The returned function
	// detaches it and is safe to call more than once.
	Subscribe(handler func(OrientationEvent)) (unsubscribe func(), err error)
}

// ErrFeedBusy is returned when subscribing to a feed that already has a listener.
var ErrFeedBusy = errors.New("qibla: event feed already has a listener")

// EventFeed carries orientation events from a transport to at most one listener.
type EventFeed struct {
	mu      sync.Mutex
	handler func(OrientationEvent)
	seq     uint64
}

// NewEventFeed returns an empty feed.
func NewEventFeed() *EventFeed {
	return &EventFeed{}
}

// Publish delivers ev to the listener, if any, and reports whether it was delivered.
// The handler runs on the caller's goroutine, so events are applied in publish order.
func (f *EventFeed) Publish(ev OrientationEvent) bool {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(ev)
	return true
}

// Listening reports whether a listener is attached.
func (f *EventFeed) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

func (f *EventFeed) subscribe(handler func(OrientationEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handler != nil {
		return nil, ErrFeedBusy
	}
	f.seq++
	seq := f.seq
	f.handler = handler

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// A stale unsubscribe must not detach a newer listener.
		if f.seq == seq {
			f.handler = nil
		}
	}, nil
}

// PermissionFunc asks the user for sensor access. It returns false if the
// user declined.
type PermissionFunc func(ctx context.Context) (granted bool, err error)

// gatedSensor requires an explicit, user-initiated permission request before
// events flow.
type gatedSensor struct {
	feed   *EventFeed
	prompt PermissionFunc
}

// NewGatedSensor returns a provider whose events only flow after prompt grants access.
func NewGatedSensor(feed *EventFeed, prompt PermissionFunc) OrientationSensorProvider {
	return &gatedSensor{feed: feed, prompt: prompt}
}

func (s *gatedSensor) Supported() bool { return s.feed != nil }
func (s *gatedSensor) RequiresPermission() bool { return true }

func (s *gatedSensor) RequestPermission(ctx context.Context) error {
	if s.prompt == nil {
		return ErrSensorPermissionDenied
	}
	granted, err := s.prompt(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return errors.Join(ErrSensorPermissionDenied, err)
	}
	if !granted {
		return ErrSensorPermissionDenied
	}
	return nil
}

func (s *gatedSensor) Subscribe(handler func(OrientationEvent)) (func(), error) {
	if s.feed == nil {
		return nil, ErrSensorUnsupported
	}
	return s.feed.subscribe(handler)
}

// openSensor delivers events without any permission step.
type openSensor struct {
	feed *EventFeed
}

// NewOpenSensor returns a provider that needs no permission.
func NewOpenSensor(feed *EventFeed) OrientationSensorProvider {
	return &openSensor{feed: feed}
}

func (s *openSensor) Supported() bool { return s.feed != nil }
func (s *openSensor) RequiresPermission() bool { return false }
func (s *openSensor) RequestPermission(ctx context.Context) error { return nil }

func (s *openSensor) Subscribe(handler func(OrientationEvent)) (func(), error) {
	if s.feed == nil {
		return nil, ErrSensorUnsupported
	}
	return s.feed.subscribe(handler)
}

// UnsupportedSensor is the provider for platforms without an orientation sensor.
type UnsupportedSensor struct{}

func (UnsupportedSensor) Supported() bool { return false }
func (UnsupportedSensor) RequiresPermission() bool { return false }
func (UnsupportedSensor) RequestPermission(ctx context.Context) error { return ErrSensorUnsupported }

func (UnsupportedSensor) Subscribe(func(OrientationEvent)) (func(), error) {
	return nil, ErrSensorUnsupported
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// normalizeDegrees maps any finite angle into [0, 360).
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
