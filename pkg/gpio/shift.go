// Package gpio drives the board's shift registers: a parallel-in
// register scanning hardware presence and a serial-in register
// driving status LEDs.
package gpio

import (
	"fmt"
	"time"
)

// Pin is a single GPIO line.
type Pin interface {
	Set(high bool) error
	Get() (bool, error)
}

// ShiftRegister bit-bangs a 74HC165 (Read) or 74HC595 (Write)
// style register. Bits is at most 32.
type ShiftRegister struct {
	Latch Pin
	Clock Pin
	Data  Pin
	Bits  int
	// Delay is the settle time after each edge.
	Delay time.Duration
}

func (r *ShiftRegister) settle() {
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
}

func (r *ShiftRegister) put(p Pin, high bool) error {
	if err := p.Set(high); err != nil {
		return err
	}
	r.settle()
	return nil
}

// Read latches the parallel inputs and shifts them in, most
// significant bit first. The returned bits are raw line levels.
func (r *ShiftRegister) Read() (uint32, error) {
	if err := r.put(r.Latch, false); err != nil {
		return 0, fmt.Errorf("latch: %w", err)
	}
	if err := r.put(r.Latch, true); err != nil {
		return 0, fmt.Errorf("latch: %w", err)
	}
	var value uint32
	for bit := r.Bits - 1; bit >= 0; bit-- {
		high, err := r.Data.Get()
		if err != nil {
			return 0, fmt.Errorf("data: %w", err)
		}
		if high {
			value |= 1 << uint(bit)
		}
		if err := r.put(r.Clock, true); err != nil {
			return 0, fmt.Errorf("clock: %w", err)
		}
		if err := r.put(r.Clock, false); err != nil {
			return 0, fmt.Errorf("clock: %w", err)
		}
	}
	return value, nil
}

// Write shifts value out, most significant bit first, and latches it.
func (r *ShiftRegister) Write(value uint32) error {
	if err := r.put(r.Latch, false); err != nil {
		return fmt.Errorf("latch: %w", err)
	}
	for bit := r.Bits - 1; bit >= 0; bit-- {
		if err := r.put(r.Clock, false); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
		if err := r.put(r.Data, value&(1<<uint(bit)) != 0); err != nil {
			return fmt.Errorf("data: %w", err)
		}
		if err := r.put(r.Clock, true); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}
	return r.Latch.Set(true)
}

// Monitor scans presence through a parallel-in register. Inputs are
// active-low: a grounded input means the hardware is connected.
type Monitor struct {
	Register *ShiftRegister
}

// Scan implements presence.Scanner.
func (m *Monitor) Scan() (uint32, error) {
	raw, err := m.Register.Read()
	if err != nil {
		return 0, err
	}
	mask := uint32(1)<<uint(m.Register.Bits) - 1
	return ^raw & mask, nil
}

// Indicators drives status LEDs through a serial-in register.
type Indicators struct {
	Register *ShiftRegister

	state   uint32
	written uint32
	flushed bool
}

// Set turns an LED on or off. Positions out of range are ignored.
func (i *Indicators) Set(pos int, on bool) {
	if pos < 0 || pos >= i.Register.Bits {
		return
	}
	if on {
		i.state |= 1 << uint(pos)
	} else {
		i.state &^= 1 << uint(pos)
	}
}

// State returns the pending LED bits.
func (i *Indicators) State() uint32 {
	return i.state
}

// Flush writes pending changes to the register.
func (i *Indicators) Flush() error {
	if i.flushed && i.state == i.written {
		return nil
	}
	if err := i.Register.Write(i.state); err != nil {
		return err
	}
	i.written, i.flushed = i.state, true
	return nil
}

// RegisterPins are the line offsets of a shift register.
type RegisterPins struct {
	Latch int `yaml:"latch"`
	Clock int `yaml:"clock"`
	Data  int `yaml:"data"`
	Bits  int `yaml:"bits"`
}

// NewRegister requests the lines of a shift register from chip. The
// data line is an input for a parallel-in register.
func NewRegister(chip *Chip, pins RegisterPins, parallelIn bool) (*ShiftRegister, error) {
	latch, err := chip.Output(pins.Latch)
	if err != nil {
		return nil, err
	}
	clock, err := chip.Output(pins.Clock)
	if err != nil {
		return nil, err
	}
	var data *Line
	if parallelIn {
		data, err = chip.Input(pins.Data)
	} else {
		data, err = chip.Output(pins.Data)
	}
	if err != nil {
		return nil, err
	}
	return &ShiftRegister{
		Latch: latch,
		Clock: clock,
		Data:  data,
		Bits:  pins.Bits,
		Delay: time.Microsecond,
	}, nil
}
