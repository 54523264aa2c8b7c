package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	encoderStartupGrace = 300 * time.Millisecond
	encoderStopTimeout  = 5 * time.Second
	streamRestartDelay  = time.Second
)

// process is a running rpicam-vid invocation. done is closed once the
// process has exited; err and stderr are final from then on.
type process struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	done   chan struct{}
	err    error
}

func startProcess(name string, args []string, configure func(*exec.Cmd) error) (*process, error) {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if configure != nil {
		if err := configure(cmd); err != nil {
			return nil, err
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w, stderr: %s", name, err, stderr.String())
	}

	p := &process{cmd: cmd, stderr: &stderr, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// stop asks the process to exit with sig and kills it after timeout.
func (p *process) stop(sig os.Signal, timeout time.Duration) error {
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
		return exitError(p.err)
	case <-time.After(timeout):
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("process did not exit within %s: %w", timeout, exitError(p.err))
	}
}

// exitError drops the error a signal-terminated process reports on Wait.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		return nil
	}
	return err
}

// RPiCam drives a Raspberry Pi camera module through rpicam-vid (or
// libcamera-vid on older images). Streaming runs a persistent MJPEG process
// whose output is split by a framePump; recording runs a second invocation
// that encodes H.264 straight to the output file.
//
// A preview process that exits on its own is forgotten, and the next
// Capture launches a new one, at most once per restartDelay.
type RPiCam struct {
	mu      sync.Mutex
	cmdName string
	mode    Mode
	cfg     Config
	stream  *process
	encoder *process
	pump    *framePump

	// streaming is set between Start and Stop in streaming mode.
	streaming    bool
	launched     time.Time
	restartDelay time.Duration
}

// NewRPiCam locates the camera command line tools.
func NewRPiCam() (*RPiCam, error) {
	// Determine command name (rpicam-vid for newer OS, libcamera-vid for older)
	cmdName := "rpicam-vid"
	if _, err := exec.LookPath(cmdName); err != nil {
		cmdName = "libcamera-vid"
		if _, err := exec.LookPath(cmdName); err != nil {
			return nil, fmt.Errorf("neither rpicam-vid nor libcamera-vid found")
		}
	}
	return &RPiCam{cmdName: cmdName, pump: newFramePump(), restartDelay: streamRestartDelay}, nil
}

func (r *RPiCam) Configure(mode Mode, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil || r.encoder != nil {
		return fmt.Errorf("camera still running")
	}
	r.mode, r.cfg = mode, cfg
	return nil
}

// Start launches the MJPEG preview process in streaming mode. In recording
// mode the sensor is claimed by StartEncoder instead.
func (r *RPiCam) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeStreaming || r.stream != nil {
		return nil
	}
	r.streaming = true
	return r.launchLocked()
}

// launchLocked starts the preview process. r.mu must be held.
func (r *RPiCam) launchLocked() error {
	args := append(r.baseArgs(),
		"--codec", "mjpeg",
		"--output", "-",
		// Module 3 specific optimizations
		"--awb", "auto",
		"--metering", "average",
	)

	pump := r.pump
	proc, err := startProcess(r.cmdName, args, func(cmd *exec.Cmd) error {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to get stdout pipe: %w", err)
		}
		go pump.run(stdout)
		return nil
	})
	r.launched = time.Now()
	if err != nil {
		return err
	}
	r.stream = proc
	go r.watch(proc)
	slog.Info("Started camera streaming process", "command", r.cmdName, "config", r.cfg.String())
	return nil
}

// watch clears the preview process once it exits unless Stop already
// replaced it.
func (r *RPiCam) watch(proc *process) {
	<-proc.done

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != proc {
		return
	}
	r.stream = nil
	r.pump.reset()
	slog.Warn("Camera streaming process exited", "error", proc.err, "stderr", proc.stderr.String())
}

// relaunch restarts a preview process that exited on its own.
func (r *RPiCam) relaunch() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.streaming || r.stream != nil || r.mode != ModeStreaming {
		return nil
	}
	if time.Since(r.launched) < r.restartDelay {
		return nil
	}
	slog.Info("Restarting camera streaming process")
	return r.launchLocked()
}

func (r *RPiCam) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.streaming = false
	if r.stream == nil {
		return nil
	}
	err := r.stream.stop(os.Kill, encoderStopTimeout)
	r.stream = nil
	r.pump.reset()
	if err != nil {
		slog.Warn("Camera streaming process exited", "error", err)
	}
	return nil
}

func (r *RPiCam) Capture() (image.Image, error) {
	data, err := r.pump.latest()
	if err != nil {
		if errors.Is(err, ErrNoFrame) {
			if rerr := r.relaunch(); rerr != nil {
				slog.Warn("Failed to restart camera streaming process", "error", rerr)
			}
		}
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// StartEncoder launches the H.264 encoder process writing to path and
// waits a short grace period to catch immediate failures (camera busy,
// unwritable path).
func (r *RPiCam) StartEncoder(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeRecording {
		return ErrWrongMode
	}
	if r.encoder != nil {
		return fmt.Errorf("encoder already running")
	}

	args := append(r.baseArgs(),
		"--codec", "h264",
		"--inline",
		"--output", path,
	)
	if r.cfg.Bitrate > 0 {
		args = append(args, "--bitrate", strconv.Itoa(r.cfg.Bitrate))
	}

	proc, err := startProcess(r.cmdName, args, nil)
	if err != nil {
		return err
	}

	select {
	case <-proc.done:
		return fmt.Errorf("encoder exited during startup: %v, stderr: %s", proc.err, proc.stderr.String())
	case <-time.After(encoderStartupGrace):
	}

	r.encoder = proc
	slog.Info("Started camera encoder process", "command", r.cmdName, "path", path, "config", r.cfg.String())
	return nil
}

// StopEncoder interrupts the encoder so it flushes and closes the file.
func (r *RPiCam) StopEncoder() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}
	proc := r.encoder
	r.encoder = nil
	if err := proc.stop(os.Interrupt, encoderStopTimeout); err != nil {
		return fmt.Errorf("encoder exit: %w, stderr: %s", err, proc.stderr.String())
	}
	return nil
}

func (r *RPiCam) Close() error {
	if err := r.StopEncoder(); err != nil {
		slog.Warn("Encoder did not stop cleanly", "error", err)
	}
	return r.Stop()
}

func (r *RPiCam) baseArgs() []string {
	args := []string{
		"--width", strconv.Itoa(r.cfg.Width),
		"--height", strconv.Itoa(r.cfg.Height),
		"--framerate", strconv.Itoa(r.cfg.FPS),
		"--timeout", "0", // Run indefinitely
		"--nopreview",
	}
	if r.cfg.HFlip {
		args = append(args, "--hflip")
	}
	if r.cfg.VFlip {
		args = append(args, "--vflip")
	}
	return args
}
