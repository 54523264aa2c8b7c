// Package stream turns preview captures into a paced sequence of JPEG
// frames, one sequence per connected viewer.
package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/wachiwi/pi-camcorder/pkg/camera"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var viewersGauge metric.Int64UpDownCounter

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/pi-camcorder/pkg/stream")
	viewersGauge, err = meter.Int64UpDownCounter("camcorder.stream.viewers",
		metric.WithDescription("Connected preview viewers"),
		metric.WithUnit("{viewers}"),
	)
	if err != nil {
		slog.Error("Failed to create stream metrics", "error", err)
	}
}

// Source is the preview capture side of camera.Manager.
type Source interface {
	CaptureFrame() (image.Image, error)
}

// Settings tells the pipeline whether to apply the vintage look.
type Settings interface {
	Vintage() bool
}

// JPEGQuality is used for every preview frame.
const JPEGQuality = 80

// Pipeline turns camera frames into JPEG preview frames at a fixed rate.
type Pipeline struct {
	src      Source
	settings Settings
	interval time.Duration
}

// New paces frames at fps.
func New(src Source, settings Settings, fps int) *Pipeline {
	if fps <= 0 {
		fps = 10
	}
	return &Pipeline{
		src:      src,
		settings: settings,
		interval: time.Second / time.Duration(fps),
	}
}

// Frames yields encoded frames until ctx ends or the camera is closed.
// Cycles where the camera is switching or recording are skipped, so
// viewers see a paused stream rather than an error.
func (p *Pipeline) Frames(ctx context.Context) <-chan []byte {
	out := make(chan []byte)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	go func() {
		defer close(out)
		if viewersGauge != nil {
			viewersGauge.Add(ctx, 1)
			defer viewersGauge.Add(context.WithoutCancel(ctx), -1)
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame, err := p.Frame(rng.NormFloat64)
			switch {
			case err == nil:
			case errors.Is(err, camera.ErrBusy), errors.Is(err, camera.ErrRecording), errors.Is(err, camera.ErrNoFrame):
				continue
			case errors.Is(err, camera.ErrClosed):
				return
			default:
				slog.Warn("Failed to produce preview frame", "error", err)
				continue
			}

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Frame captures and encodes a single frame. The vintage look is applied
// when enabled, drawing grain from noise.
func (p *Pipeline) Frame(noise Noise) ([]byte, error) {
	img, err := p.src.CaptureFrame()
	if err != nil {
		return nil, err
	}
	if p.settings.Vintage() {
		img = Vintage(img, noise)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
