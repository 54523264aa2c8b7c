// Package coordinator decides, on every button press, whether to start or
// stop a recording, and makes sure at most one recording session exists.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wachiwi/pi-camcorder/pkg/recorder"
)

// Recorder runs one session until stop is closed, calling onActive once
// the session is actually recording.
type Recorder interface {
	Record(ctx context.Context, stop <-chan struct{}, fps int, onActive func()) (*recorder.Result, error)
}

// Indicator blinks until stop is closed.
type Indicator interface {
	Blink(stop <-chan struct{})
}

// FPSSource supplies the framerate for the next session.
type FPSSource interface {
	FPS() int
}

// Observer is told when a session becomes active and when that session
// finishes. Sessions that fail to start are not reported.
type Observer interface {
	RecordingStarted()
	RecordingStopped(err error)
}

// Status is a snapshot for the web surface.
type Status struct {
	Recording bool
	LastError error
	Last      *recorder.Result
	LastAt    time.Time
}

// run is one spawned session. stop is closed exactly once; done is closed
// when the session has finalized.
type run struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func newRun() *run {
	return &run{stop: make(chan struct{}), done: make(chan struct{})}
}

func (r *run) signal() {
	r.once.Do(func() { close(r.stop) })
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Coordinator owns the recording flag and starts and stops sessions on
// button presses.
type Coordinator struct {
	mu        sync.Mutex
	recording bool
	current   *run
	closed    bool
	status    Status

	rec       Recorder
	indicator Indicator
	fps       FPSSource
	observers []Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator with the recording flag cleared.
func New(rec Recorder, indicator Indicator, fps FPSSource, observers ...Observer) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		rec:       rec,
		indicator: indicator,
		fps:       fps,
		observers: observers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Toggle flips the recording flag. Starting spawns the session and the
// indicator; stopping only signals them. Camera work never happens under
// the lock, so Toggle returns immediately.
func (c *Coordinator) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if c.recording {
		c.recording = false
		c.current.signal()
		slog.Info("Stopping recording")
		return
	}

	if c.current != nil && !c.current.finished() {
		slog.Info("Previous recording still finalizing, ignoring press")
		return
	}

	r := newRun()
	c.current = r
	c.recording = true
	fps := c.fps.FPS()
	slog.Info("Starting recording", "fps", fps)

	c.wg.Add(2)
	go c.record(r, fps)
	go func() {
		defer c.wg.Done()
		c.indicator.Blink(r.stop)
	}()
}

func (c *Coordinator) record(r *run, fps int) {
	defer c.wg.Done()
	defer close(r.done)

	active := false
	res, err := c.rec.Record(c.ctx, r.stop, fps, func() {
		active = true
		for _, o := range c.observers {
			o.RecordingStarted()
		}
	})
	// Ends the indicator when the session failed on its own.
	r.signal()

	c.mu.Lock()
	if c.current == r {
		c.recording = false
	}
	c.status.LastError = err
	if res != nil {
		c.status.Last = res
	}
	c.status.LastAt = time.Now()
	c.mu.Unlock()

	if err != nil {
		slog.Error("Recording session failed", "error", err)
	}
	if !active {
		return
	}
	for _, o := range c.observers {
		o.RecordingStopped(err)
	}
}

// IsRecording reports the recording flag.
func (c *Coordinator) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Status returns the flag together with the outcome of the last session.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.Recording = c.recording
	return s
}

// Close stops an active recording and waits until it is finalized and the
// indicator is off, or until ctx ends. Later Toggle calls are ignored.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	if c.current != nil {
		c.recording = false
		c.current.signal()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		// Interrupts a session stuck before it reached its stop wait.
		c.cancel()
		return ctx.Err()
	}
}
