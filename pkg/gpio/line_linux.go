//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Line is a Pin backed by a GPIO character device line.
type Line struct {
	line *gpiocdev.Line
}

// Set implements Pin.
func (l *Line) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return l.line.SetValue(v)
}

// Get implements Pin.
func (l *Line) Get() (bool, error) {
	v, err := l.line.Value()
	return v != 0, err
}

// Chip hands out lines of a GPIO chip.
type Chip struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// OpenChip opens a GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %q: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Output requests a line as output, initially low.
func (c *Chip) Output(offset int) (*Line, error) {
	return c.request(offset, gpiocdev.AsOutput(0))
}

// Input requests a line as input with pull-up, so an open input
// reads as disconnected.
func (c *Chip) Input(offset int) (*Line, error) {
	return c.request(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
}

func (c *Chip) request(offset int, opts ...gpiocdev.LineReqOption) (*Line, error) {
	l, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	c.lines = append(c.lines, l)
	return &Line{line: l}, nil
}

// Close releases all requested lines and the chip.
func (c *Chip) Close() error {
	var firstErr error
	for _, l := range c.lines {
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.lines = nil
	if err := c.chip.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
