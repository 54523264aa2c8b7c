package board

import (
	"log/slog"
	"time"
)

// Indicator blinks the status LED while a recording runs.
type Indicator struct {
	pin    Output
	period time.Duration
}

// NewIndicator toggles pin every period (half the blink cycle).
func NewIndicator(pin Output, period time.Duration) *Indicator {
	return &Indicator{pin: pin, period: period}
}

// Blink toggles the LED until stop is closed, then forces it low.
func (i *Indicator) Blink(stop <-chan struct{}) {
	defer i.Off()

	ticker := time.NewTicker(i.period)
	defer ticker.Stop()

	level := High
	for {
		if err := i.pin.SetValue(level); err != nil {
			slog.Warn("Failed to drive LED", "error", err)
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
			level ^= 1
		}
	}
}

// Off forces the LED low.
func (i *Indicator) Off() {
	if err := i.pin.SetValue(Low); err != nil {
		slog.Warn("Failed to clear LED", "error", err)
	}
}
