package camera

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakeVid writes a shell script standing in for rpicam-vid. The first launch
// exits with status 1; later launches print one JPEG and keep running.
func fakeVid(t *testing.T) (cmd, launches string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()

	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "frame.jpg"), frame.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	launches = filepath.Join(dir, "launches")
	script := `#!/bin/sh
dir='` + dir + `'
echo launch >> "$dir/launches"
if [ ! -f "$dir/crashed" ]; then
	touch "$dir/crashed"
	echo "sensor timeout" >&2
	exit 1
fi
cat "$dir/frame.jpg"
exec sleep 30
`
	cmd = filepath.Join(dir, "rpicam-vid")
	if err := os.WriteFile(cmd, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return cmd, launches
}

func countLaunches(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "launch")
}

func TestRPiCamRestartsExitedPreview(t *testing.T) {
	cmd, launches := fakeVid(t)
	cam := &RPiCam{cmdName: cmd, pump: newFramePump(), restartDelay: 10 * time.Millisecond}
	cfg := Config{Width: 64, Height: 48, FPS: 10}
	m := NewManager(cam, cfg, cfg)
	t.Cleanup(func() { m.Close() })

	if err := m.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// The first process dies straight away and must be forgotten.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cam.mu.Lock()
		gone := cam.stream == nil
		cam.mu.Unlock()
		if gone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("exited preview process is still tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var img image.Image
	var err error
	deadline = time.Now().Add(3 * time.Second)
	for {
		img, err = m.CaptureFrame()
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNoFrame) {
			t.Fatalf("unexpected capture error: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("preview never recovered, last error: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if img.Bounds().Dx() != 8 {
		t.Errorf("expected the 8px test frame, got %v", img.Bounds())
	}
	if n := countLaunches(t, launches); n != 2 {
		t.Errorf("expected 2 launches, got %d", n)
	}
}

func TestRPiCamStopDoesNotRelaunch(t *testing.T) {
	cmd, launches := fakeVid(t)
	cam := &RPiCam{cmdName: cmd, pump: newFramePump()}
	cfg := Config{Width: 64, Height: 48, FPS: 10}

	if err := cam.Configure(ModeStreaming, cfg); err != nil {
		t.Fatal(err)
	}
	if err := cam.Start(); err != nil {
		t.Fatal(err)
	}
	if err := cam.Stop(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := cam.Capture(); !errors.Is(err, ErrNoFrame) {
			t.Fatalf("expected ErrNoFrame after Stop, got %v", err)
		}
	}
	if n := countLaunches(t, launches); n > 1 {
		t.Errorf("stopped camera was relaunched: %d launches", n)
	}
}
