// Package camera owns the single physical camera of the appliance.
//
// The Manager arbitrates between two mutually exclusive configurations:
// streaming (continuous preview capture) and recording (an encoder writing
// to a file). Switching halts the device, applies the new configuration and
// restarts it; captures never interleave with a switch.
package camera

import (
	"errors"
	"fmt"
	"image"
)

// Mode is the configuration the camera is currently running in.
type Mode int

const (
	ModeOff Mode = iota
	ModeStreaming
	ModeRecording
)

func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModeRecording:
		return "recording"
	default:
		return "off"
	}
}

var (
	// ErrBusy is returned by CaptureFrame while a configuration switch is in
	// progress. It is transient; callers retry or skip the frame.
	ErrBusy = errors.New("camera busy")
	// ErrRecording is returned by CaptureFrame while the camera is in
	// recording configuration and preview frames are unavailable.
	ErrRecording = errors.New("camera is recording")
	// ErrWrongMode is returned for encoder calls outside recording configuration.
	ErrWrongMode = errors.New("camera not in recording configuration")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("camera closed")
	// ErrNoFrame means the device has not produced a frame yet.
	ErrNoFrame = errors.New("no frame available yet")
)

// Config is one named camera configuration.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int // bits per second, recording only
	HFlip   bool
	VFlip   bool
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d@%dfps", c.Width, c.Height, c.FPS)
}

// Driver is the hardware collaborator behind the Manager. Implementations
// need not be safe for concurrent reconfiguration; the Manager serializes
// Stop/Configure/Start and the encoder calls. Capture may be called from
// several goroutines at once while the device runs in streaming mode.
type Driver interface {
	// Configure applies cfg to a halted device.
	Configure(mode Mode, cfg Config) error
	// Start begins capturing in the configured mode.
	Start() error
	// Stop halts any in-flight capture.
	Stop() error
	// Capture returns the latest preview frame.
	Capture() (image.Image, error)
	// StartEncoder attaches an encoder writing to path.
	StartEncoder(path string) error
	// StopEncoder detaches and flushes the encoder.
	StopEncoder() error
	// Close releases the device.
	Close() error
}
