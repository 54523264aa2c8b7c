package board

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var pressCounter metric.Int64Counter

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/pi-camcorder/pkg/board")
	pressCounter, err = meter.Int64Counter("camcorder.button.presses",
		metric.WithDescription("Debounced record button presses"),
		metric.WithUnit("{presses}"),
	)
	if err != nil {
		slog.Error("Failed to create button metrics", "error", err)
	}
}

// Monitor turns the raw button line into logical press events.
type Monitor struct {
	pin      Input
	poll     time.Duration
	debounce time.Duration
	active   int
}

// NewMonitor polls pin every poll interval. A press must still read active
// after debounce to count.
func NewMonitor(pin Input, poll, debounce time.Duration) *Monitor {
	return &Monitor{
		pin:      pin,
		poll:     poll,
		debounce: debounce,
		active:   Low,
	}
}

// Run calls onPress once per physical press until ctx is cancelled. After a
// press it waits for the button to be released before polling again, so
// holding the button never repeats.
func (m *Monitor) Run(ctx context.Context, onPress func()) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !m.pressed() {
			continue
		}
		if !sleep(ctx, m.debounce) {
			return
		}
		if !m.pressed() {
			slog.Debug("Ignoring button bounce")
			continue
		}

		if pressCounter != nil {
			pressCounter.Add(ctx, 1)
		}
		onPress()

		for m.pressed() {
			if !sleep(ctx, m.poll) {
				return
			}
		}
	}
}

func (m *Monitor) pressed() bool {
	v, err := m.pin.Value()
	if err != nil {
		slog.Warn("Failed to read button", "error", err)
		return false
	}
	return v == m.active
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
