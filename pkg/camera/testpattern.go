package camera

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"sync"
	"time"
)

// TestPattern is a synthetic driver for development machines without a
// camera module. Preview frames are a moving gradient; the encoder writes
// the same frames as a raw MJPEG stream at the configured framerate.
type TestPattern struct {
	mu      sync.Mutex
	mode    Mode
	cfg     Config
	running bool
	tick    uint64
	encoder *patternEncoder
}

type patternEncoder struct {
	stop chan struct{}
	done chan error
}

func NewTestPattern() *TestPattern {
	return &TestPattern{}
}

func (t *TestPattern) Configure(mode Mode, cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("camera still running")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return fmt.Errorf("invalid configuration %s", cfg)
	}
	t.mode, t.cfg = mode, cfg
	return nil
}

func (t *TestPattern) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	return nil
}

func (t *TestPattern) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	return nil
}

func (t *TestPattern) Capture() (image.Image, error) {
	t.mu.Lock()
	if !t.running || t.mode != ModeStreaming {
		t.mu.Unlock()
		return nil, ErrNoFrame
	}
	t.tick++
	tick, w, h := t.tick, t.cfg.Width, t.cfg.Height
	t.mu.Unlock()

	return patternFrame(w, h, tick), nil
}

func (t *TestPattern) StartEncoder(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != ModeRecording || !t.running {
		return ErrWrongMode
	}
	if t.encoder != nil {
		return fmt.Errorf("encoder already running")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	enc := &patternEncoder{stop: make(chan struct{}), done: make(chan error, 1)}
	go enc.run(f, t.cfg)
	t.encoder = enc
	return nil
}

func (t *TestPattern) StopEncoder() error {
	t.mu.Lock()
	enc := t.encoder
	t.encoder = nil
	t.mu.Unlock()

	if enc == nil {
		return nil
	}
	close(enc.stop)
	return <-enc.done
}

func (t *TestPattern) Close() error {
	if err := t.StopEncoder(); err != nil {
		slog.Warn("Test pattern encoder did not stop cleanly", "error", err)
	}
	return t.Stop()
}

func (e *patternEncoder) run(f *os.File, cfg Config) {
	w := bufio.NewWriter(f)
	ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
	defer ticker.Stop()

	var tick uint64
	var writeErr error
	for writeErr == nil {
		select {
		case <-e.stop:
			e.done <- errors.Join(w.Flush(), f.Close())
			return
		case <-ticker.C:
			tick++
			writeErr = jpeg.Encode(w, patternFrame(cfg.Width, cfg.Height, tick), &jpeg.Options{Quality: 60})
		}
	}
	<-e.stop
	e.done <- errors.Join(writeErr, f.Close())
}

// patternFrame creates a simple colored frame whose red channel cycles
// with tick.
func patternFrame(width, height int, tick uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	color := byte(tick % 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := y*img.Stride + x*4
			img.Pix[offset] = color
			img.Pix[offset+1] = byte((x * 255) / width)
			img.Pix[offset+2] = byte((y * 255) / height)
			img.Pix[offset+3] = 255
		}
	}
	return img
}
