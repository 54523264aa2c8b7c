//go:build !linux

package board

import "log/slog"

// Open returns in-memory lines on platforms without a GPIO character
// device.
func Open(chipName, buttonPin, ledPin string) (*Board, error) {
	slog.Info("[MOCK] Initializing board without GPIO", "button", buttonPin, "led", ledPin)
	return Mock(), nil
}
