// Package settings holds the runtime knobs shared between the web surface,
// the frame pipeline and the recorder: the recording framerate and the
// vintage flag. Changes are persisted to a small JSON state file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrUnsupportedFramerate is returned by SetFPS for values outside the
// allowed set. The stored framerate is left unchanged.
var ErrUnsupportedFramerate = errors.New("unsupported framerate")

// State is the persisted form of the settings.
type State struct {
	FPS     int  `json:"fps"`
	Vintage bool `json:"vintage"`
}

// Store guards State. The zero value is not usable; call Open.
type Store struct {
	mu      sync.Mutex
	path    string
	allowed []int
	state   State
}

// Open loads settings from path, falling back to defaultFPS with vintage
// off when the file is missing, corrupted or holds a framerate outside
// allowed. An empty path keeps the settings in memory only.
func Open(path string, defaultFPS int, allowed []int) (*Store, error) {
	if !slices.Contains(allowed, defaultFPS) {
		return nil, fmt.Errorf("%w: default %d not in %v", ErrUnsupportedFramerate, defaultFPS, allowed)
	}

	s := &Store{
		path:    path,
		allowed: slices.Clone(allowed),
		state:   State{FPS: defaultFPS},
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}

	var stored State
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupted file, the next change overwrites it.
		slog.Warn("Ignoring corrupted settings file", "path", path, "error", err)
		return s, nil
	}
	if slices.Contains(s.allowed, stored.FPS) {
		s.state.FPS = stored.FPS
	}
	s.state.Vintage = stored.Vintage
	return s, nil
}

// FPS returns the framerate the next recording uses.
func (s *Store) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FPS
}

// SetFPS changes the recording framerate. A recording already running keeps
// the framerate it started with.
func (s *Store) SetFPS(fps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.allowed, fps) {
		return fmt.Errorf("%w: %d", ErrUnsupportedFramerate, fps)
	}
	s.state.FPS = fps
	return s.saveLocked()
}

// Allowed returns the accepted framerates.
func (s *Store) Allowed() []int {
	return slices.Clone(s.allowed)
}

// Vintage reports whether preview frames get the vintage look.
func (s *Store) Vintage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Vintage
}

// ToggleVintage flips the vintage flag and returns the new value.
func (s *Store) ToggleVintage() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Vintage = !s.state.Vintage
	return s.state.Vintage, s.saveLocked()
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// saveLocked writes the state file. s.mu must be held. The in-memory value
// stays changed even if the write fails.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}
