//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Line is not available on non-Linux platforms.
type Line struct{}

// Set implements Pin.
func (l *Line) Set(bool) error { return errUnsupported }

// Get implements Pin.
func (l *Line) Get() (bool, error) { return false, errUnsupported }

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(string) (*Chip, error) { return nil, errUnsupported }

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(int) (*Line, error) { return nil, errUnsupported }

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(int) (*Line, error) { return nil, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error { return nil }
