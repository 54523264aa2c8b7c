// Package board drives the appliance's two GPIO lines: the record button
// (pull-up, active-low) and the status LED (active-high).
package board

import (
	"sync"
)

const (
	Low  = 0
	High = 1
)

// Input is a digital input line. *gpiocdev.Line satisfies it.
type Input interface {
	Value() (int, error)
}

// Output is a digital output line. *gpiocdev.Line satisfies it.
type Output interface {
	SetValue(int) error
}

// Board holds the requested lines.
type Board struct {
	Button Input
	LED    Output
	closer func() error
}

// Close returns the LED to low and releases all lines.
func (b *Board) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return b.LED.SetValue(Low)
}

// Mock returns a board backed by in-memory lines. The button idles high,
// as it would with the pull-up.
func Mock() *Board {
	return &Board{
		Button: NewMemPin(High),
		LED:    NewMemPin(Low),
	}
}

// MemPin is an in-memory line used off the Pi and in tests. It records
// every value written to it.
type MemPin struct {
	mu      sync.Mutex
	value   int
	history []int
	err     error
}

func NewMemPin(initial int) *MemPin {
	return &MemPin{value: initial}
}

func (p *MemPin) Value() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.value, nil
}

func (p *MemPin) SetValue(v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.value = v
	p.history = append(p.history, v)
	return nil
}

// Set changes the level as seen by readers without recording history,
// simulating an external signal.
func (p *MemPin) Set(v int) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

// SetError makes subsequent reads and writes fail with err (nil clears it).
func (p *MemPin) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// History returns all values written with SetValue.
func (p *MemPin) History() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.history...)
}
