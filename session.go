package qibla

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/aadithya-v/qibla/store"
)

// Update is what a compass display needs after every tracker event.
type Update struct {
	State TrackerState `json:"state"`

	// Heading is nil until the tracker is ready.
	Heading *float64 `json:"heading,omitempty"`

	// Rotation is nil unless both the bearing and a heading are known.
	Rotation *float64 `json:"rotation,omitempty"`

	// Err is set in the error state.
	Err error `json:"-"`
}

// Session is one Qibla-finding session: a device position captured once, the
// bearing computed from it, and the heading tracker driving the compass.
// Close must be called when the compass screen goes away.
type Session struct {
	ID         string
	UserID     string
	Device     GeoCoordinate
	Target     GeoCoordinate
	DistanceKM float64
	CreatedAt  time.Time

	bearing    float64
	tracker    *HeadingTracker
	reconciler *CompassReconciler
	sessions   store.SessionStore
	clock      clock.Clock
	logger     zerolog.Logger

	mu       sync.Mutex
	closed   bool
	onUpdate func(Update)
}

func newSession(
	id, userID string,
	device, target GeoCoordinate,
	bearing float64,
	sensor OrientationSensorProvider,
	sessions store.SessionStore,
	clk clock.Clock,
	logger zerolog.Logger,
) *Session {
	s := &Session{
		ID:         id,
		UserID:     userID,
		Device:     device,
		Target:     target,
		DistanceKM: DistanceKM(device, target),
		CreatedAt:  clk.Now().UTC(),
		bearing:    bearing,
		reconciler: NewCompassReconciler(bearing),
		sessions:   sessions,
		clock:      clk,
		logger:     logger,
	}
	s.tracker = NewHeadingTracker(sensor,
		WithTrackerLogger(logger),
		OnStateChange(s.handleState),
		OnHeading(s.handleHeading),
	)
	return s
}

// Bearing returns the bearing from the device to the target.
func (s *Session) Bearing() float64 {
	return s.bearing
}

// State returns the compass tracker state.
func (s *Session) State() TrackerState {
	return s.tracker.State()
}

// Err returns the reason the compass is in the error state, if it is.
func (s *Session) Err() error {
	return s.tracker.Err()
}

// Heading returns the latest device heading. ok is false until the compass is ready.
func (s *Session) Heading() (float64, bool) {
	return s.tracker.CurrentHeading()
}

// Rotation returns the arrow rotation. ok is false unless the compass is ready.
func (s *Session) Rotation() (float64, bool) {
	// A heading delivered while Stop runs can reach the reconciler after Clear.
	if s.tracker.State() != StateReady {
		return 0, false
	}
	return s.reconciler.Rotation()
}

// OnUpdate registers fn to receive every compass update. It replaces any
// previously registered function.
func (s *Session) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// StartCompass starts the heading tracker. See HeadingTracker.Start.
func (s *Session) StartCompass(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.tracker.Start(ctx)
}

// StopCompass detaches the sensor listener without ending the session.
func (s *Session) StopCompass() {
	s.tracker.Stop()
}

// Retry leaves the error state and starts the tracker again.
func (s *Session) Retry(ctx context.Context) error {
	s.tracker.Stop()
	return s.StartCompass(ctx)
}

// Close stops the compass and records the session outcome. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	outcome := s.tracker.State().String()
	s.tracker.Stop()

	endedAt := s.clock.Now().UTC()
	s.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Str("outcome", outcome).
		Dur("duration", endedAt.Sub(s.CreatedAt)).
		Msg("qibla session ended")

	if s.sessions == nil {
		return nil
	}
	return s.sessions.End(s.ID, outcome, endedAt)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) handleState(state TrackerState, err error) {
	if state != StateReady {
		s.reconciler.Clear()
	}
	// Ready is reported together with its first heading by handleHeading.
	if state == StateReady {
		return
	}
	s.emit(Update{State: state, Err: err})
}

func (s *Session) handleHeading(heading float64) {
	rotation, _ := s.reconciler.Update(heading)
	s.emit(Update{
		State:    StateReady,
		Heading:  &heading,
		Rotation: &rotation,
	})
}

func (s *Session) emit(u Update) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(u)
	}
}

// record converts the session to its stored form.
func (s *Session) record(device DeviceInfo) *store.Session {
	return &store.Session{
		SessionID:  s.ID,
		UserID:     s.UserID,
		DeviceLat:  s.Device.Latitude,
		DeviceLng:  s.Device.Longitude,
		TargetLat:  s.Target.Latitude,
		TargetLng:  s.Target.Longitude,
		Bearing:    s.bearing,
		DistanceKM: s.DistanceKM,
		DeviceType: device.DeviceType,
		OS:         device.OS,
		CreatedAt:  s.CreatedAt,
	}
}

// SessionRecord is a past or open session as kept in the history store.
type SessionRecord struct {
	SessionID  string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	Device     GeoCoordinate `json:"device"`
	Target     GeoCoordinate `json:"target"`
	Bearing    float64       `json:"bearing"`
	DistanceKM float64       `json:"distance_km"`
	DeviceType string        `json:"device_type,omitempty"`
	OS         string        `json:"os,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}

// storeToRecord converts a store.Session to a public SessionRecord.
func storeToRecord(s *store.Session) *SessionRecord {
	rec := &SessionRecord{
		SessionID:  s.SessionID,
		UserID:     s.UserID,
		Device:     GeoCoordinate{Latitude: s.DeviceLat, Longitude: s.DeviceLng},
		Target:     GeoCoordinate{Latitude: s.TargetLat, Longitude: s.TargetLng},
		Bearing:    s.Bearing,
		DistanceKM: s.DistanceKM,
		DeviceType: s.DeviceType,
		OS:         s.OS,
		Outcome:    s.Outcome,
		CreatedAt:  s.CreatedAt,
	}
	if !s.Open() {
		ended := s.EndedAt
		rec.EndedAt = &ended
	}
	return rec
}
