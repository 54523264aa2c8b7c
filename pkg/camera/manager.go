package camera

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// Manager owns the single camera handle. Configuration switches hold the
// write lock for halt, configure and restart; captures hold the read lock,
// so any number of viewers capture concurrently but never during a switch.
type Manager struct {
	mu        sync.RWMutex
	driver    Driver
	mode      Mode
	active    Config
	streaming Config
	recording Config
	encoding  bool
	closed    bool
}

// NewManager wraps driver. The camera stays off until Open is called.
func NewManager(driver Driver, streaming, recording Config) *Manager {
	return &Manager{
		driver:    driver,
		streaming: streaming,
		recording: recording,
	}
}

// Open puts the camera into streaming configuration for the first time.
func (m *Manager) Open() error {
	return m.ConfigureStreaming()
}

// ConfigureStreaming switches the camera into its preview configuration.
func (m *Manager) ConfigureStreaming() error {
	return m.switchTo(ModeStreaming, m.streaming)
}

// ConfigureRecording switches the camera into its recording configuration
// at the given framerate.
func (m *Manager) ConfigureRecording(fps int) error {
	cfg := m.recording
	if fps > 0 {
		cfg.FPS = fps
	}
	return m.switchTo(ModeRecording, cfg)
}

func (m *Manager) switchTo(mode Mode, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.encoding {
		return fmt.Errorf("switch to %s: encoder still attached", mode)
	}

	prevMode, prevCfg := m.mode, m.active

	if err := m.driver.Stop(); err != nil {
		return fmt.Errorf("halt camera: %w", err)
	}
	if err := m.driver.Configure(mode, cfg); err != nil {
		m.restoreLocked(prevMode, prevCfg)
		return fmt.Errorf("configure %s %s: %w", mode, cfg, err)
	}
	if err := m.driver.Start(); err != nil {
		m.restoreLocked(prevMode, prevCfg)
		return fmt.Errorf("start %s %s: %w", mode, cfg, err)
	}

	m.mode, m.active = mode, cfg
	slog.Info("Camera configured", "mode", mode, "config", cfg.String())
	return nil
}

// restoreLocked brings the device back to the configuration it ran before a
// failed switch. m.mu must be held.
func (m *Manager) restoreLocked(mode Mode, cfg Config) {
	m.mode, m.active = ModeOff, Config{}
	if mode == ModeOff {
		return
	}
	if err := m.driver.Configure(mode, cfg); err != nil {
		slog.Error("Failed to restore camera configuration", "mode", mode, "error", err)
		return
	}
	if err := m.driver.Start(); err != nil {
		slog.Error("Failed to restart camera", "mode", mode, "error", err)
		return
	}
	m.mode, m.active = mode, cfg
}

// CaptureFrame returns the next preview frame. It never waits for a
// configuration switch: while one is pending it returns ErrBusy.
func (m *Manager) CaptureFrame() (image.Image, error) {
	if !m.mu.TryRLock() {
		return nil, ErrBusy
	}
	defer m.mu.RUnlock()

	switch {
	case m.closed:
		return nil, ErrClosed
	case m.mode == ModeRecording:
		return nil, ErrRecording
	case m.mode != ModeStreaming:
		return nil, ErrBusy
	}
	return m.driver.Capture()
}

// StartEncoder attaches the encoder writing to path. The camera must be in
// recording configuration.
func (m *Manager) StartEncoder(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.mode != ModeRecording {
		return ErrWrongMode
	}
	if m.encoding {
		return fmt.Errorf("encoder already attached")
	}
	if err := m.driver.StartEncoder(path); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	m.encoding = true
	return nil
}

// StopEncoder detaches and flushes the encoder. It is a no-op when no
// encoder is attached.
func (m *Manager) StopEncoder() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.encoding {
		return nil
	}
	m.encoding = false
	if err := m.driver.StopEncoder(); err != nil {
		return fmt.Errorf("stop encoder: %w", err)
	}
	return nil
}

// Mode returns the active configuration.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Active returns the parameters of the active configuration.
func (m *Manager) Active() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// StreamingConfig returns the preview configuration.
func (m *Manager) StreamingConfig() Config {
	return m.streaming
}

// Close detaches any encoder, halts the device and releases it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if m.encoding {
		m.encoding = false
		if err := m.driver.StopEncoder(); err != nil {
			firstErr = fmt.Errorf("stop encoder: %w", err)
		}
	}
	if err := m.driver.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("halt camera: %w", err)
	}
	if err := m.driver.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close camera: %w", err)
	}
	m.mode, m.active = ModeOff, Config{}
	slog.Info("Camera closed")
	return firstErr
}
