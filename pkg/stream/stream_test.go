package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wachiwi/pi-camcorder/pkg/camera"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 32), B: 200, A: 255})
		}
	}
	return img
}

func zeroNoise() float64 { return 0 }

type staticSource struct {
	img  image.Image
	mu   sync.Mutex
	err  error
	hits atomic.Int32
}

func (s *staticSource) CaptureFrame() (image.Image, error) {
	s.hits.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.img, nil
}

func (s *staticSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type vintageFlag struct{ on atomic.Bool }

func (v *vintageFlag) Vintage() bool { return v.on.Load() }

func TestVintageSepiaValues(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 100, G: 50, B: 20, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	out := Vintage(img, zeroNoise)

	// 0.9 * (0.393*100 + 0.769*50 + 0.189*20) = 73.3
	// 0.9 * (0.349*100 + 0.686*50 + 0.168*20) = 65.3
	// 0.9 * (0.272*100 + 0.534*50 + 0.131*20) = 50.9
	got := out.RGBAAt(0, 0)
	if got.R != 73 || got.G != 65 || got.B != 50 {
		t.Errorf("unexpected sepia pixel %v", got)
	}

	// White saturates red and green before the blend; blue stays below 255.
	got = out.RGBAAt(1, 0)
	if got.R != 229 || got.G != 229 || got.B != 215 {
		t.Errorf("expected white to map to (229, 229, 215), got %v", got)
	}
}

func TestVintageDoesNotMutateInput(t *testing.T) {
	img := testImage()
	before := append([]byte(nil), img.Pix...)

	Vintage(img, func() float64 { return 3 })

	if !bytes.Equal(before, img.Pix) {
		t.Error("Vintage modified its input")
	}
}

func TestVintageClampsNoise(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{A: 255})

	out := Vintage(img, func() float64 { return -100 })
	if got := out.RGBAAt(0, 0); got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("negative grain should clamp to 0, got %v", got)
	}

	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	out = Vintage(img, func() float64 { return 100 })
	if got := out.RGBAAt(0, 0); got.R != 255 {
		t.Errorf("positive grain should clamp to 255, got %v", got)
	}
}

func TestFrameWithoutVintageIsUnmodified(t *testing.T) {
	img := testImage()
	p := New(&staticSource{img: img}, &vintageFlag{}, 10)

	frame, err := p.Frame(zeroNoise)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}

	var want bytes.Buffer
	if err := jpeg.Encode(&want, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame, want.Bytes()) {
		t.Error("frame should be the plain encoding of the capture")
	}
}

func TestFrameVintageChangesContent(t *testing.T) {
	flag := &vintageFlag{}
	p := New(&staticSource{img: testImage()}, flag, 10)

	plain, err := p.Frame(zeroNoise)
	if err != nil {
		t.Fatal(err)
	}
	flag.on.Store(true)
	vintage, err := p.Frame(zeroNoise)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(plain, vintage) {
		t.Error("vintage frame should differ from the plain frame")
	}
	if _, err := jpeg.Decode(bytes.NewReader(vintage)); err != nil {
		t.Errorf("vintage frame is not a valid JPEG: %v", err)
	}
}

func TestFramesSkipsBusyCycles(t *testing.T) {
	src := &staticSource{img: testImage()}
	src.fail(camera.ErrBusy)
	p := New(src, &vintageFlag{}, 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames := p.Frames(ctx)

	select {
	case <-frames:
		t.Fatal("no frame expected while the camera is busy")
	case <-time.After(50 * time.Millisecond):
	}
	if src.hits.Load() < 2 {
		t.Errorf("pipeline should keep polling, got %d captures", src.hits.Load())
	}

	src.fail(nil)
	select {
	case frame := <-frames:
		if len(frame) == 0 {
			t.Error("empty frame")
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not resume")
	}
}

func TestFramesEndsWithContextOrClose(t *testing.T) {
	src := &staticSource{img: testImage()}
	p := New(src, &vintageFlag{}, 200)

	ctx, cancel := context.WithCancel(context.Background())
	frames := p.Frames(ctx)
	<-frames
	cancel()
	if !drained(frames) {
		t.Error("channel should close after cancel")
	}

	src.fail(camera.ErrClosed)
	frames = p.Frames(context.Background())
	if !drained(frames) {
		t.Error("channel should close once the camera is closed")
	}
}

func drained(frames <-chan []byte) bool {
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

func TestFramesSkipsRecording(t *testing.T) {
	src := &staticSource{img: testImage()}
	src.fail(fmt.Errorf("capture: %w", camera.ErrRecording))
	p := New(src, &vintageFlag{}, 200)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	for range p.Frames(ctx) {
		t.Fatal("no frame expected while recording")
	}
}
