package camera

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	readChunkSize  = 4096
	maxFrameBuffer = 10 * 1024 * 1024
	staleAfter     = 5 * time.Second
)

// JPEG markers
var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// framePump splits an MJPEG byte stream into JPEG frames and keeps the most
// recent one. It is safe for concurrent use.
type framePump struct {
	mu        sync.RWMutex
	frame     []byte
	frameTime time.Time
	now       func() time.Time
}

func newFramePump() *framePump {
	return &framePump{now: time.Now}
}

// latest returns a copy of the most recent complete frame.
func (p *framePump) latest() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.frame) == 0 {
		return nil, ErrNoFrame
	}
	// The process may have died without the pump noticing yet.
	if p.now().Sub(p.frameTime) > staleAfter {
		return nil, fmt.Errorf("%w: frame is stale (>%s old)", ErrNoFrame, staleAfter)
	}
	dst := make([]byte, len(p.frame))
	copy(dst, p.frame)
	return dst, nil
}

func (p *framePump) publish(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	p.mu.Lock()
	p.frame = cp
	p.frameTime = p.now()
	p.mu.Unlock()
}

// reset drops the stored frame so no stale image outlives its process.
func (p *framePump) reset() {
	p.mu.Lock()
	p.frame = nil
	p.mu.Unlock()
}

// run reads r until it fails, publishing every complete frame.
func (p *framePump) run(r io.Reader) {
	buf := make([]byte, readChunkSize)
	var pending []byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = p.extract(pending)
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				slog.Error("Stream read error", "error", err)
			}
			return
		}
		// Prevent the buffer from growing indefinitely if no EOI shows up.
		if len(pending) > maxFrameBuffer {
			pending = nil
			slog.Warn("Frame buffer overflow, resetting")
		}
	}
}

// extract publishes all complete frames in data and returns the unconsumed tail.
func (p *framePump) extract(data []byte) []byte {
	for {
		start := bytes.Index(data, soi)
		if start == -1 {
			// Keep a trailing 0xFF in case the marker is split across reads.
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return data[len(data)-1:]
			}
			return data[:0]
		}
		data = data[start:]

		end := bytes.Index(data[len(soi):], eoi)
		if end == -1 {
			return data
		}
		end += len(soi) + len(eoi)

		p.publish(data[:end])
		data = data[end:]
	}
}
