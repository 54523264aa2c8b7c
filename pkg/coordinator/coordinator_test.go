package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wachiwi/pi-camcorder/pkg/recorder"
)

type fakeRecorder struct {
	active    atomic.Int32
	maxActive atomic.Int32
	sessions  atomic.Int32
	fps       atomic.Int32
	failWith  error
	finalize  time.Duration
}

func (f *fakeRecorder) Record(ctx context.Context, stop <-chan struct{}, fps int, onActive func()) (*recorder.Result, error) {
	f.sessions.Add(1)
	f.fps.Store(int32(fps))
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if f.failWith != nil {
		return nil, f.failWith
	}
	if onActive != nil {
		onActive()
	}
	select {
	case <-stop:
	case <-ctx.Done():
	}
	time.Sleep(f.finalize)
	return &recorder.Result{Path: "rec.h264", FPS: fps}, nil
}

type fakeIndicator struct {
	blinking atomic.Int32
	blinks   atomic.Int32
}

func (f *fakeIndicator) Blink(stop <-chan struct{}) {
	f.blinks.Add(1)
	f.blinking.Add(1)
	<-stop
	f.blinking.Add(-1)
}

type fixedFPS int

func (f fixedFPS) FPS() int { return int(f) }

type countingObserver struct {
	mu      sync.Mutex
	started int
	stopped []error
}

func (o *countingObserver) RecordingStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) RecordingStopped(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, err)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func closeCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestToggleAlternates(t *testing.T) {
	rec := &fakeRecorder{}
	ind := &fakeIndicator{}
	c := New(rec, ind, fixedFPS(24))
	defer closeCoordinator(t, c)

	for i := 0; i < 3; i++ {
		c.Toggle()
		if !c.IsRecording() {
			t.Fatalf("press %d should start a recording", 2*i+1)
		}
		eventually(t, "session start", func() bool { return rec.active.Load() == 1 })
		eventually(t, "indicator start", func() bool { return ind.blinking.Load() == 1 })

		c.Toggle()
		if c.IsRecording() {
			t.Fatalf("press %d should stop the recording", 2*i+2)
		}
		eventually(t, "session end", func() bool { return rec.active.Load() == 0 })
		eventually(t, "indicator off", func() bool { return ind.blinking.Load() == 0 })
	}

	if got := rec.sessions.Load(); got != 3 {
		t.Errorf("expected 3 sessions, got %d", got)
	}
	if got := rec.fps.Load(); got != 24 {
		t.Errorf("session should use the configured fps, got %d", got)
	}
}

func TestRapidTogglesNeverOverlap(t *testing.T) {
	rec := &fakeRecorder{finalize: 5 * time.Millisecond}
	ind := &fakeIndicator{}
	c := New(rec, ind, fixedFPS(18))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Toggle()
		}()
		time.Sleep(100 * time.Microsecond)
	}
	wg.Wait()
	closeCoordinator(t, c)

	if got := rec.maxActive.Load(); got > 1 {
		t.Errorf("sessions overlapped: %d active at once", got)
	}
	if got := ind.blinking.Load(); got != 0 {
		t.Errorf("indicator still running after Close: %d", got)
	}
	if c.IsRecording() {
		t.Error("flag should be cleared after Close")
	}
}

func TestPressWhileFinalizingIsIgnored(t *testing.T) {
	rec := &fakeRecorder{finalize: 50 * time.Millisecond}
	c := New(rec, &fakeIndicator{}, fixedFPS(18))
	defer closeCoordinator(t, c)

	c.Toggle()
	eventually(t, "session start", func() bool { return rec.active.Load() == 1 })
	c.Toggle()
	c.Toggle()

	if c.IsRecording() {
		t.Error("press during finalize should not start a new recording")
	}
	eventually(t, "finalize", func() bool { return rec.active.Load() == 0 })
	if got := rec.sessions.Load(); got != 1 {
		t.Errorf("expected a single session, got %d", got)
	}

	c.Toggle()
	if !c.IsRecording() {
		t.Error("press after finalize should start a recording")
	}
}

func TestFailedStartRollsBack(t *testing.T) {
	failure := errors.New("camera refused")
	rec := &fakeRecorder{failWith: failure}
	ind := &fakeIndicator{}
	obs := &countingObserver{}
	c := New(rec, ind, fixedFPS(18), obs)

	c.Toggle()
	eventually(t, "rollback", func() bool { return !c.IsRecording() })
	eventually(t, "indicator off", func() bool { return ind.blinking.Load() == 0 })

	var status Status
	eventually(t, "error recorded", func() bool {
		status = c.Status()
		return status.LastError != nil
	})
	if !errors.Is(status.LastError, failure) {
		t.Errorf("expected last error %v, got %v", failure, status.LastError)
	}

	// The next press starts a fresh attempt.
	c.Toggle()
	eventually(t, "second attempt", func() bool { return rec.sessions.Load() == 2 })
	closeCoordinator(t, c)

	// Neither cue plays for a session that never started.
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.started != 0 || len(obs.stopped) != 0 {
		t.Errorf("failed starts should not notify observers, got %d starts and %d stops", obs.started, len(obs.stopped))
	}
}

func TestObserversSeeActiveSessionsOnly(t *testing.T) {
	rec := &fakeRecorder{}
	obs := &countingObserver{}
	c := New(rec, &fakeIndicator{}, fixedFPS(18), obs)

	c.Toggle()
	eventually(t, "start notification", func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.started == 1
	})
	if rec.active.Load() != 1 {
		t.Error("start should be reported while the session runs")
	}
	c.Toggle()
	closeCoordinator(t, c)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.started != 1 || len(obs.stopped) != 1 {
		t.Fatalf("expected one start and one stop, got %d and %d", obs.started, len(obs.stopped))
	}
	if obs.stopped[0] != nil {
		t.Errorf("clean session should report no error, got %v", obs.stopped[0])
	}
}

func TestCloseFinalizesActiveRecording(t *testing.T) {
	rec := &fakeRecorder{}
	ind := &fakeIndicator{}
	c := New(rec, ind, fixedFPS(18))

	c.Toggle()
	eventually(t, "session start", func() bool { return rec.active.Load() == 1 })

	closeCoordinator(t, c)
	if rec.active.Load() != 0 || ind.blinking.Load() != 0 {
		t.Error("Close should wait for the session and indicator")
	}
	if got := c.Status().Last; got == nil || got.Path != "rec.h264" {
		t.Errorf("expected the finalized result, got %+v", got)
	}

	c.Toggle()
	if c.IsRecording() {
		t.Error("Toggle after Close should be ignored")
	}
}
