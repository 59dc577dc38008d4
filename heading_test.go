package qibla

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stateRecorder collects tracker transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []TrackerState
}

func (r *stateRecorder) record(state TrackerState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) snapshot() []TrackerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TrackerState(nil), r.states...)
}

func floatPtr(v float64) *float64 { return &v }

func equalStates(a, b []TrackerState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// blockingPrompt answers permission requests from a channel and ignores
// cancellation, like a platform prompt that resolves late.
type blockingPrompt struct {
	requested chan struct{}
	answer    chan bool
}

func newBlockingPrompt() *blockingPrompt {
	return &blockingPrompt{
		requested: make(chan struct{}, 1),
		answer:    make(chan bool, 1),
	}
}

func (p *blockingPrompt) ask(ctx context.Context) (bool, error) {
	p.requested <- struct{}{}
	return <-p.answer, nil
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func TestHeadingTrackerOpenSensor(t *testing.T) {
	feed := NewEventFeed()
	rec := &stateRecorder{}
	tracker := NewHeadingTracker(NewOpenSensor(feed), OnStateChange(rec.record))

	if tracker.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", tracker.State())
	}

	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if tracker.State() != StateCalibrating {
		t.Fatalf("state after Start = %v, want calibrating", tracker.State())
	}
	if _, ok := tracker.CurrentHeading(); ok {
		t.Error("heading should be unknown while calibrating")
	}

	// An event with neither field is not a reading.
	feed.Publish(OrientationEvent{})
	if tracker.State() != StateCalibrating {
		t.Errorf("state after empty event = %v, want calibrating", tracker.State())
	}

	feed.Publish(OrientationEvent{CompassHeading: floatPtr(42)})
	heading, ok := tracker.CurrentHeading()
	if !ok || heading != 42 {
		t.Errorf("CurrentHeading() = %v, %v; want 42, true", heading, ok)
	}
	if tracker.State() != StateReady {
		t.Errorf("state = %v, want ready", tracker.State())
	}

	feed.Publish(OrientationEvent{CompassHeading: floatPtr(43)})
	if heading, _ := tracker.CurrentHeading(); heading != 43 {
		t.Errorf("CurrentHeading() = %v, want 43", heading)
	}

	want := []TrackerState{StateCalibrating, StateReady}
	if got := rec.snapshot(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	tracker.Stop()
	if feed.Listening() {
		t.Error("listener still attached after Stop")
	}
}

func TestHeadingTrackerPrefersCompassHeading(t *testing.T) {
	feed := NewEventFeed()
	tracker := NewHeadingTracker(NewOpenSensor(feed))
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer tracker.Stop()

	feed.Publish(OrientationEvent{CompassHeading: floatPtr(10), Alpha: floatPtr(90)})
	if heading, _ := tracker.CurrentHeading(); heading != 10 {
		t.Errorf("heading = %v, want compass heading 10", heading)
	}

	// Alpha alone counts counter-clockwise.
	feed.Publish(OrientationEvent{Alpha: floatPtr(90)})
	if heading, _ := tracker.CurrentHeading(); heading != 270 {
		t.Errorf("heading = %v, want 270 from alpha 90", heading)
	}
}

func TestHeadingTrackerGatedGranted(t *testing.T) {
	feed := NewEventFeed()
	rec := &stateRecorder{}
	prompt := func(ctx context.Context) (bool, error) { return true, nil }
	tracker := NewHeadingTracker(NewGatedSensor(feed, prompt), OnStateChange(rec.record))

	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer tracker.Stop()

	want := []TrackerState{StateRequestingPermission, StateCalibrating}
	if got := rec.snapshot(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	if !feed.Listening() {
		t.Error("listener should be attached after permission is granted")
	}
}

func TestHeadingTrackerPermissionDenied(t *testing.T) {
	feed := NewEventFeed()
	granted := false
	prompt := func(ctx context.Context) (bool, error) { return granted, nil }
	tracker := NewHeadingTracker(NewGatedSensor(feed, prompt))

	err := tracker.Start(context.Background())
	if !errors.Is(err, ErrSensorPermissionDenied) {
		t.Fatalf("Start() = %v, want ErrSensorPermissionDenied", err)
	}
	if errors.Is(err, ErrSensorUnsupported) {
		t.Error("denial must be distinguishable from unsupported")
	}
	if tracker.State() != StateError {
		t.Fatalf("state = %v, want error", tracker.State())
	}
	if feed.Listening() {
		t.Error("no listener may be attached after denial")
	}

	// The error state is terminal until an explicit retry from idle.
	granted = true
	if err := tracker.Start(context.Background()); !errors.Is(err, ErrSensorPermissionDenied) {
		t.Errorf("Start() in error state = %v, want the recorded denial", err)
	}
	if tracker.State() != StateError {
		t.Errorf("state = %v, want error", tracker.State())
	}

	tracker.Stop()
	if tracker.State() != StateIdle {
		t.Fatalf("state after Stop = %v, want idle", tracker.State())
	}
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("retry Start() = %v", err)
	}
	if tracker.State() != StateCalibrating {
		t.Errorf("state after retry = %v, want calibrating", tracker.State())
	}
	tracker.Stop()
}

func TestHeadingTrackerUnsupported(t *testing.T) {
	tests := []struct {
		name   string
		sensor OrientationSensorProvider
	}{
		{"unsupported platform", UnsupportedSensor{}},
		{"nil provider", nil},
		{"open sensor without feed", NewOpenSensor(nil)},
		{"gated sensor without feed", NewGatedSensor(nil, func(context.Context) (bool, error) { return true, nil })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewHeadingTracker(tt.sensor)
			err := tracker.Start(context.Background())
			if !errors.Is(err, ErrSensorUnsupported) {
				t.Fatalf("Start() = %v, want ErrSensorUnsupported", err)
			}
			if errors.Is(err, ErrSensorPermissionDenied) {
				t.Error("unsupported must be distinguishable from denial")
			}
			if tracker.State() != StateError {
				t.Errorf("state = %v, want error", tracker.State())
			}
			if !errors.Is(tracker.Err(), ErrSensorUnsupported) {
				t.Errorf("Err() = %v, want ErrSensorUnsupported", tracker.Err())
			}
		})
	}
}

func TestHeadingTrackerStopBeforePermissionResolves(t *testing.T) {
	feed := NewEventFeed()
	prompt := newBlockingPrompt()
	rec := &stateRecorder{}
	tracker := NewHeadingTracker(NewGatedSensor(feed, prompt.ask), OnStateChange(rec.record))

	done := make(chan error, 1)
	go func() { done <- tracker.Start(context.Background()) }()

	waitFor(t, prompt.requested)
	if tracker.State() != StateRequestingPermission {
		t.Fatalf("state = %v, want requesting-permission", tracker.State())
	}

	tracker.Stop()
	if tracker.State() != StateIdle {
		t.Fatalf("state after Stop = %v, want idle", tracker.State())
	}

	// The queued grant arrives after teardown.
	prompt.answer <- true

	select {
	case err := <-done:
		if !errors.Is(err, ErrTrackerStopped) {
			t.Errorf("Start() = %v, want ErrTrackerStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}

	if tracker.State() != StateIdle {
		t.Errorf("state after late grant = %v, want idle", tracker.State())
	}
	if feed.Listening() {
		t.Error("late grant attached a listener")
	}
	want := []TrackerState{StateRequestingPermission, StateIdle}
	if got := rec.snapshot(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestHeadingTrackerStopCancelsPermissionContext(t *testing.T) {
	feed := NewEventFeed()
	asked := make(chan struct{}, 1)
	prompt := func(ctx context.Context) (bool, error) {
		asked <- struct{}{}
		<-ctx.Done()
		return false, ctx.Err()
	}
	tracker := NewHeadingTracker(NewGatedSensor(feed, prompt))

	done := make(chan error, 1)
	go func() { done <- tracker.Start(context.Background()) }()

	waitFor(t, asked)
	tracker.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTrackerStopped) {
			t.Errorf("Start() = %v, want ErrTrackerStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if tracker.State() != StateIdle {
		t.Errorf("state = %v, want idle", tracker.State())
	}
}

func TestHeadingTrackerStartIsIdempotent(t *testing.T) {
	feed := NewEventFeed()
	rec := &stateRecorder{}
	tracker := NewHeadingTracker(NewOpenSensor(feed), OnStateChange(rec.record))

	for i := 0; i < 3; i++ {
		if err := tracker.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d = %v", i+1, err)
		}
	}
	feed.Publish(OrientationEvent{CompassHeading: floatPtr(1)})
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() while ready = %v", err)
	}

	want := []TrackerState{StateCalibrating, StateReady}
	if got := rec.snapshot(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	tracker.Stop()
	if feed.Listening() {
		t.Error("listener still attached after Stop")
	}
}

func TestHeadingTrackerStopIsIdempotent(t *testing.T) {
	feed := NewEventFeed()
	tracker := NewHeadingTracker(NewOpenSensor(feed))

	tracker.Stop()
	tracker.Stop()
	if tracker.State() != StateIdle {
		t.Fatalf("state = %v, want idle", tracker.State())
	}

	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	feed.Publish(OrientationEvent{CompassHeading: floatPtr(5)})

	tracker.Stop()
	if tracker.State() != StateIdle {
		t.Errorf("state after first Stop = %v, want idle", tracker.State())
	}
	tracker.Stop()
	if tracker.State() != StateIdle {
		t.Errorf("state after second Stop = %v, want idle", tracker.State())
	}
	if _, ok := tracker.CurrentHeading(); ok {
		t.Error("heading should be unknown after Stop")
	}

	// Events after teardown go nowhere.
	if feed.Publish(OrientationEvent{CompassHeading: floatPtr(6)}) {
		t.Error("event delivered after Stop")
	}
}

func TestHeadingTrackerOnHeadingOrder(t *testing.T) {
	feed := NewEventFeed()
	var got []float64
	tracker := NewHeadingTracker(NewOpenSensor(feed), OnHeading(func(h float64) {
		got = append(got, h)
	}))
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer tracker.Stop()

	for _, h := range []float64{350, 355, 360, 5, -10} {
		feed.Publish(OrientationEvent{CompassHeading: floatPtr(h)})
	}
	feed.Publish(OrientationEvent{})

	want := []float64{350, 355, 0, 5, 350}
	if len(got) != len(want) {
		t.Fatalf("headings = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("heading[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTrackerStateString(t *testing.T) {
	tests := map[TrackerState]string{
		StateIdle:                 "idle",
		StateRequestingPermission: "requesting-permission",
		StateCalibrating:          "calibrating",
		StateReady:                "ready",
		StateError:                "error",
		TrackerState(42):          "TrackerState(42)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestHeadingTrackerCallerContextEndsBeforePermission(t *testing.T) {
	prompt := func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr error
	}{
		{"cancelled", func() (context.Context, context.CancelFunc) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx, cancel
		}, context.Canceled},
		{"deadline", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 10*time.Millisecond)
		}, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := NewEventFeed()
			rec := &stateRecorder{}
			tracker := NewHeadingTracker(NewGatedSensor(feed, prompt), OnStateChange(rec.record))

			ctx, cancel := tt.ctx()
			defer cancel()

			err := tracker.Start(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() = %v, want %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrSensorPermissionDenied) {
				t.Error("an abandoned request must not read as a denial")
			}
			if tracker.State() != StateIdle {
				t.Errorf("state = %v, want idle", tracker.State())
			}
			if tracker.Err() != nil {
				t.Errorf("Err() = %v, want nil", tracker.Err())
			}
			if feed.Listening() {
				t.Error("no listener may be attached")
			}
			want := []TrackerState{StateRequestingPermission, StateIdle}
			if got := rec.snapshot(); !equalStates(got, want) {
				t.Errorf("transitions = %v, want %v", got, want)
			}
		})
	}
}
