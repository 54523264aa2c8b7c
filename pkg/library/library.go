// Package library lists, serves and prunes the finished recordings in the
// recordings directory.
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wachiwi/pi-camcorder/pkg/recorder"
)

var (
	ErrInvalidName = errors.New("invalid recording name")
	ErrNotFound    = errors.New("recording not found")
)

// namePattern matches provisional and final names. A trailing _n
// distinguishes sessions that started within the same second.
var namePattern = regexp.MustCompile(`^rec_(\d{8}_\d{6})(?:_(\d+)s_fps(\d+))?(?:_\d+)?\.([A-Za-z0-9]+)$`)

// Recording is one file in the recordings directory.
type Recording struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Started  time.Time `json:"started"`
	Seconds  int       `json:"duration_seconds"`
	FPS      int       `json:"fps"`
	// Finalized is false for a file still being written (or left behind by
	// a failed rename).
	Finalized bool `json:"finalized"`
}

// ParseName extracts the start time, duration and framerate from a
// recording file name. ok is false for names that are not recordings.
func ParseName(name string) (rec Recording, ok bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Recording{}, false
	}
	started, err := time.ParseInLocation(recorder.TimestampLayout, m[1], time.Local)
	if err != nil {
		return Recording{}, false
	}
	rec = Recording{Name: name, Started: started}
	if m[2] != "" {
		rec.Seconds, _ = strconv.Atoi(m[2])
		rec.FPS, _ = strconv.Atoi(m[3])
		rec.Finalized = true
	}
	return rec, true
}

// Library lists, serves and prunes the files in the recordings directory.
type Library struct {
	dir string
	now func() time.Time
}

func New(dir string) *Library {
	return &Library{dir: dir, now: time.Now}
}

// Dir returns the recordings directory.
func (l *Library) Dir() string {
	return l.dir
}

// EnsureDir creates the recordings directory.
func (l *Library) EnsureDir() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	return nil
}

// List returns all recordings, newest first. Files that do not follow the
// naming scheme are skipped.
func (l *Library) List() ([]Recording, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Recording{}, nil
		}
		return nil, err
	}

	recordings := []Recording{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rec, ok := ParseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		rec.Size = info.Size()
		rec.Modified = info.ModTime()
		recordings = append(recordings, rec)
	}

	sort.Slice(recordings, func(i, j int) bool {
		if !recordings[i].Started.Equal(recordings[j].Started) {
			return recordings[i].Started.After(recordings[j].Started)
		}
		return recordings[i].Name > recordings[j].Name
	})
	return recordings, nil
}

// Resolve maps a requested file name to a path inside the recordings
// directory. Anything that could escape the directory is rejected.
func (l *Library) Resolve(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Prune removes finalized recordings that started more than maxAge ago,
// always keeping the keepLatest newest ones. Unfinalized files are never
// touched. A zero maxAge disables pruning.
func (l *Library) Prune(maxAge time.Duration, keepLatest int) ([]string, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	recordings, err := l.List()
	if err != nil {
		return nil, err
	}

	cutoff := l.now().Add(-maxAge)
	var removed []string
	var errs []error
	kept := 0
	for _, rec := range recordings {
		if !rec.Finalized {
			continue
		}
		if kept < keepLatest || rec.Started.After(cutoff) {
			kept++
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, rec.Name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, rec.Name)
		slog.Info("Pruned recording", "name", rec.Name, "started", rec.Started)
	}
	return removed, errors.Join(errs...)
}
