//go:build linux

package board

import (
	"fmt"
	"log/slog"

	"github.com/warthog618/go-gpiocdev"
	"github.com/warthog618/go-gpiocdev/device/rpi"
)

const consumer = "camcorder"

// Open requests the button and LED lines on the named GPIO chip. Pins are
// given by name ("GPIO17", "J8p11" or a bare offset). The button is biased
// with a pull-up and the LED starts low.
func Open(chipName, buttonPin, ledPin string) (*Board, error) {
	buttonOffset, err := rpi.Pin(buttonPin)
	if err != nil {
		return nil, fmt.Errorf("invalid button pin %q: %w", buttonPin, err)
	}
	ledOffset, err := rpi.Pin(ledPin)
	if err != nil {
		return nil, fmt.Errorf("invalid led pin %q: %w", ledPin, err)
	}

	c, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to open chip: %w", err)
	}

	button, err := c.RequestLine(buttonOffset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to request button line: %w", err)
	}
	led, err := c.RequestLine(ledOffset, gpiocdev.AsOutput(Low))
	if err != nil {
		button.Close()
		c.Close()
		return nil, fmt.Errorf("failed to request led line: %w", err)
	}

	slog.Info("GPIO lines requested", "chip", chipName, "button", buttonPin, "led", ledPin)

	return &Board{
		Button: button,
		LED:    led,
		closer: func() error {
			// Leave the LED dark before handing the line back.
			if err := led.SetValue(Low); err != nil {
				slog.Warn("Failed to clear LED", "error", err)
			}
			led.Close()
			button.Close()
			return c.Close()
		},
	}, nil
}
