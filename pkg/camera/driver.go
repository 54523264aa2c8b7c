package camera

import (
	"fmt"
	"log/slog"
)

// NewDriver builds the driver called name. "auto" picks DefaultDriver and
// falls back to the test pattern when the camera tools are missing, so a
// development machine still serves a stream.
func NewDriver(name string) (Driver, error) {
	switch name {
	case "auto":
		if DefaultDriver == "rpicam" {
			d, err := NewRPiCam()
			if err == nil {
				return d, nil
			}
			slog.Warn("Camera tools not available, using test pattern", "error", err)
		}
		return NewTestPattern(), nil
	case "rpicam":
		return NewRPiCam()
	case "testpattern":
		return NewTestPattern(), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", name)
	}
}
