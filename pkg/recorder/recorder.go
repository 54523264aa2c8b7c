// Package recorder runs one recording session at a time: it switches the
// camera into recording configuration, writes a provisional file until told
// to stop, then restores the preview and renames the file to carry its
// duration and framerate.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateActive   = "active"
	StateStopping = "stopping"
)

var (
	// ErrConfigure wraps failures to put the camera into recording
	// configuration or to attach the encoder. No file is left behind.
	ErrConfigure = errors.New("recording setup failed")
	// ErrFinalize wraps failures to rename the provisional file. The
	// provisional file is kept.
	ErrFinalize = errors.New("recording finalize failed")
	// ErrSessionActive is returned when Record is called while a session runs.
	ErrSessionActive = errors.New("recording session already active")
)

var (
	tracer = otel.Tracer("github.com/wachiwi/pi-camcorder/pkg/recorder")

	startedCounter    metric.Int64Counter
	failedCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/pi-camcorder/pkg/recorder")

	startedCounter, err = meter.Int64Counter("camcorder.recordings.started",
		metric.WithDescription("Recording sessions that reached the active state"),
		metric.WithUnit("{sessions}"),
	)
	if err != nil {
		slog.Error("Failed to create recordings started counter", "error", err)
	}

	failedCounter, err = meter.Int64Counter("camcorder.recordings.failed",
		metric.WithDescription("Recording sessions that failed to start or finalize"),
		metric.WithUnit("{sessions}"),
	)
	if err != nil {
		slog.Error("Failed to create recordings failed counter", "error", err)
	}

	durationHistogram, err = meter.Float64Histogram("camcorder.recording.duration",
		metric.WithDescription("Length of finished recordings"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Error("Failed to create recording duration histogram", "error", err)
	}
}

// Camera is the part of camera.Manager a session drives.
type Camera interface {
	ConfigureRecording(fps int) error
	ConfigureStreaming() error
	StartEncoder(path string) error
	StopEncoder() error
}

// Result describes a finished session.
type Result struct {
	ID       string
	Path     string
	Started  time.Time
	Duration time.Duration
	FPS      int
}

// Recorder owns the session state machine.
type Recorder struct {
	cam   Camera
	dir   string
	ext   string
	state  *fsm.FSM
	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// New creates a Recorder writing files with extension ext into dir.
func New(cam Camera, dir, ext string) *Recorder {
	r := &Recorder{
		cam: cam,
		dir: dir,
		ext: ext,
		now:    time.Now,
		rename: os.Rename,
	}
	r.state = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: "start", Src: []string{StateIdle}, Dst: StateStarting},
			{Name: "begin", Src: []string{StateStarting}, Dst: StateActive},
			{Name: "abort", Src: []string{StateStarting}, Dst: StateIdle},
			{Name: "stop", Src: []string{StateActive}, Dst: StateStopping},
			{Name: "finish", Src: []string{StateStopping}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				slog.Debug("Recording state", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return r
}

// State returns the current session state.
func (r *Recorder) State() string {
	return r.state.Current()
}

// Record runs one session. It returns once stop is closed (or ctx ends) and
// the file has been finalized. The camera is back in streaming
// configuration on every return path. onActive, when set, is called once
// the encoder runs; it is never called for a session that failed to start.
//
// An existing file is never overwritten: if the provisional or final name
// is taken, a _1, _2, ... suffix is added before the extension.
func (r *Recorder) Record(ctx context.Context, stop <-chan struct{}, fps int, onActive func()) (*Result, error) {
	// Transitions must complete even after ctx is cancelled.
	fctx := context.WithoutCancel(ctx)
	if err := r.state.Event(fctx, "start"); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, r.state.Current())
	}

	ctx, span := tracer.Start(ctx, "recorder.Record")
	defer span.End()

	res := &Result{
		ID:      uuid.NewString(),
		Started: r.now(),
		FPS:     fps,
	}
	span.SetAttributes(
		attribute.String("session.id", res.ID),
		attribute.Int("recording.fps", fps),
	)
	log := slog.With("session", res.ID, "fps", fps)

	name := ProvisionalName(res.Started, r.ext)
	provisional, err := freePath(r.dir, name)
	if err == nil {
		err = r.setup(provisional, fps)
	} else {
		err = fmt.Errorf("%w: %w", ErrConfigure, err)
	}
	if err != nil {
		r.abort(fctx)
		r.fail(ctx, span, err)
		log.Error("Failed to start recording", "error", err)
		return nil, err
	}

	r.event(fctx, "begin")
	activeAt := r.now()
	if startedCounter != nil {
		startedCounter.Add(ctx, 1)
	}
	res.Path = provisional
	log.Info("Recording started", "path", provisional)
	if onActive != nil {
		onActive()
	}

	select {
	case <-stop:
	case <-ctx.Done():
		log.Info("Recording interrupted", "reason", ctx.Err())
	}

	r.event(fctx, "stop")
	seconds := int(r.now().Sub(activeAt) / time.Second)
	res.Duration = time.Duration(seconds) * time.Second

	var errs []error
	if err := r.cam.StopEncoder(); err != nil {
		errs = append(errs, err)
	}
	if err := r.cam.ConfigureStreaming(); err != nil {
		errs = append(errs, fmt.Errorf("restore streaming: %w", err))
	}

	if final, err := r.finalize(provisional, FinalName(name, seconds, fps)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrFinalize, err))
	} else {
		res.Path = final
	}

	r.event(fctx, "finish")
	if durationHistogram != nil {
		durationHistogram.Record(ctx, float64(seconds))
	}

	if err := errors.Join(errs...); err != nil {
		r.fail(ctx, span, err)
		log.Error("Recording finalized with errors", "path", res.Path, "error", err)
		return res, err
	}
	log.Info("Recording saved", "path", res.Path, "duration", res.Duration)
	return res, nil
}

// setup configures the camera and attaches the encoder. On failure the
// camera is returned to streaming and no file remains.
func (r *Recorder) setup(path string, fps int) error {
	if err := r.cam.ConfigureRecording(fps); err != nil {
		r.restore()
		return fmt.Errorf("%w: %w", ErrConfigure, err)
	}
	if err := r.cam.StartEncoder(path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to remove partial recording", "path", path, "error", rmErr)
		}
		r.restore()
		return fmt.Errorf("%w: %w", ErrConfigure, err)
	}
	return nil
}

// finalize renames provisional to the first free variant of name.
func (r *Recorder) finalize(provisional, name string) (string, error) {
	final, err := freePath(r.dir, name)
	if err != nil {
		return "", err
	}
	if err := r.rename(provisional, final); err != nil {
		return "", err
	}
	return final, nil
}

func (r *Recorder) restore() {
	if err := r.cam.ConfigureStreaming(); err != nil {
		slog.Error("Failed to restore streaming configuration", "error", err)
	}
}

func (r *Recorder) abort(ctx context.Context) {
	r.event(ctx, "abort")
}

func (r *Recorder) event(ctx context.Context, name string) {
	if err := r.state.Event(ctx, name); err != nil {
		slog.Error("Invalid recording state transition", "event", name, "state", r.state.Current(), "error", err)
	}
}

func (r *Recorder) fail(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if failedCounter != nil {
		failedCounter.Add(ctx, 1)
	}
}
