package qibla

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// TrackerState is the lifecycle state of a HeadingTracker.
type TrackerState int

const (
	// StateIdle means no listener is attached.
	StateIdle TrackerState = iota
	// StateRequestingPermission means the platform is prompting the user.
	StateRequestingPermission
	// StateCalibrating means a listener is attached but no valid heading arrived yet.
	StateCalibrating
	// StateReady means at least one valid heading has been received.
	StateReady
	// StateError means permission was denied or the sensor is unsupported.
	StateError
)

func (s TrackerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateCalibrating:
		return "calibrating"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("TrackerState(%d)", int(s))
	}
}

// MarshalText renders the state as its name.
func (s TrackerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HeadingTracker turns a device orientation event stream into a single
// current heading. At most one sensor listener is attached at a time.
type HeadingTracker struct {
	sensor OrientationSensorProvider
	logger zerolog.Logger

	mu          sync.Mutex
	state       TrackerState
	err         error
	heading     float64
	generation  uint64
	cancel      context.CancelFunc
	unsubscribe func()

	onState   func(TrackerState, error)
	onHeading func(float64)
}

// TrackerOption configures a HeadingTracker.
type TrackerOption func(*HeadingTracker)

// WithTrackerLogger sets the tracker's logger.
func WithTrackerLogger(logger zerolog.Logger) TrackerOption {
	return func(t *HeadingTracker) { t.logger = logger }
}

// OnStateChange registers fn to run after every state transition.
func OnStateChange(fn func(state TrackerState, err error)) TrackerOption {
	return func(t *HeadingTracker) { t.onState = fn }
}

// OnHeading registers fn to run after every valid heading, in arrival order.
func OnHeading(fn func(heading float64)) TrackerOption {
	return func(t *HeadingTracker) { t.onHeading = fn }
}

// NewHeadingTracker returns an idle tracker reading from sensor.
func NewHeadingTracker(sensor OrientationSensorProvider, opts ...TrackerOption) *HeadingTracker {
	if sensor == nil {
		sensor = UnsupportedSensor{}
	}
	t := &HeadingTracker{
		sensor: sensor,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start leaves idle: it requests permission when the platform needs it and
// attaches the sensor listener. It blocks until the permission request
// resolves. Start is a no-op while a request is pending or a listener is
// attached, and returns the recorded error while in the error state; call
// Stop first to retry.
//
// If Stop is called while the permission request is pending, Start returns
// ErrTrackerStopped and the late answer is ignored. If ctx ends first, Start
// returns ctx's error and the tracker goes back to idle.
func (t *HeadingTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case StateRequestingPermission, StateCalibrating, StateReady:
		t.mu.Unlock()
		return nil
	case StateError:
		err := t.err
		t.mu.Unlock()
		return err
	}

	if !t.sensor.Supported() {
		notify := t.failLocked(ErrSensorUnsupported)
		t.mu.Unlock()
		notify()
		return ErrSensorUnsupported
	}

	t.generation++
	gen := t.generation

	if !t.sensor.RequiresPermission() {
		notify, err := t.attachLocked(gen)
		t.mu.Unlock()
		notify()
		return err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	notify := t.setStateLocked(StateRequestingPermission, nil)
	t.mu.Unlock()
	notify()

	permErr := t.sensor.RequestPermission(reqCtx)

	t.mu.Lock()
	if t.generation != gen || t.state != StateRequestingPermission {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	t.cancel = nil
	cancel()

	if errors.Is(permErr, context.Canceled) || errors.Is(permErr, context.DeadlineExceeded) {
		// Abandoned by the caller, not a denial.
		notify := t.setStateLocked(StateIdle, nil)
		t.mu.Unlock()
		notify()
		return permErr
	}
	if permErr != nil {
		if !errors.Is(permErr, ErrSensorUnsupported) && !errors.Is(permErr, ErrSensorPermissionDenied) {
			permErr = fmt.Errorf("%w: %v", ErrSensorPermissionDenied, permErr)
		}
		notify := t.failLocked(permErr)
		t.mu.Unlock()
		notify()
		return permErr
	}

	notify, err := t.attachLocked(gen)
	t.mu.Unlock()
	notify()
	return err
}

// attachLocked subscribes to the sensor and moves to calibrating.
func (t *HeadingTracker) attachLocked(gen uint64) (func(), error) {
	unsubscribe, err := t.sensor.Subscribe(func(ev OrientationEvent) {
		t.handleEvent(gen, ev)
	})
	if err != nil {
		if !errors.Is(err, ErrSensorUnsupported) {
			err = fmt.Errorf("%w: %v", ErrSensorUnsupported, err)
		}
		return t.failLocked(err), err
	}
	t.unsubscribe = unsubscribe
	return t.setStateLocked(StateCalibrating, nil), nil
}

// Stop detaches the sensor listener, abandons any pending permission request
// and returns the tracker to idle. It is idempotent.
func (t *HeadingTracker) Stop() {
	t.mu.Lock()
	if t.state == StateIdle && t.unsubscribe == nil && t.cancel == nil {
		t.mu.Unlock()
		return
	}

	t.generation++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.heading = 0
	notify := t.setStateLocked(StateIdle, nil)
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	notify()
}

// CurrentHeading returns the last valid heading. ok is false until the
// tracker is ready.
func (t *HeadingTracker) CurrentHeading() (heading float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateReady {
		return 0, false
	}
	return t.heading, true
}

// State returns the current state.
func (t *HeadingTracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that moved the tracker into the error state, if any.
func (t *HeadingTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *HeadingTracker) handleEvent(gen uint64, ev OrientationEvent) {
	heading, ok := ev.Heading()
	if !ok {
		return
	}

	t.mu.Lock()
	if t.generation != gen || (t.state != StateCalibrating && t.state != StateReady) {
		t.mu.Unlock()
		return
	}
	t.heading = heading
	notify := func() {}
	if t.state == StateCalibrating {
		notify = t.setStateLocked(StateReady, nil)
	}
	onHeading := t.onHeading
	t.mu.Unlock()

	notify()
	if onHeading != nil {
		onHeading(heading)
	}
}

func (t *HeadingTracker) failLocked(err error) func() {
	return t.setStateLocked(StateError, err)
}

// setStateLocked records a transition and returns the callback invocation to
// run once the lock is released.
func (t *HeadingTracker) setStateLocked(state TrackerState, err error) func() {
	prev := t.state
	t.state = state
	t.err = err

	if err != nil {
		t.logger.Warn().Stringer("from", prev).Stringer("to", state).Err(err).Msg("heading tracker transition")
	} else {
		t.logger.Debug().Stringer("from", prev).Stringer("to", state).Msg("heading tracker transition")
	}

	onState := t.onState
	if onState == nil {
		return func() {}
	}
	return func() { onState(state, err) }
}
