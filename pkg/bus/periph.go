package bus

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphTransport drives a host I2C bus through periph.io.
type PeriphTransport struct {
	bus i2c.BusCloser
}

// OpenPeriph opens the named I2C bus ("" for the first one) at speed.
func OpenPeriph(name string, speed physic.Frequency) (*PeriphTransport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c %q: %w", name, err)
	}
	if speed > 0 {
		if err := b.SetSpeed(speed); err != nil {
			b.Close()
			return nil, fmt.Errorf("set i2c speed %s: %w", speed, err)
		}
	}
	return &PeriphTransport{bus: b}, nil
}

// PeriphOpener returns an Opener for OpenPeriph.
func PeriphOpener(name string, speed physic.Frequency) Opener {
	return func() (Transport, error) {
		return OpenPeriph(name, speed)
	}
}

// Write implements Transport.
func (t *PeriphTransport) Write(addr uint8, p []byte, timeout time.Duration) (int, error) {
	if err := t.tx(addr, append([]byte(nil), p...), nil, timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements Transport.
func (t *PeriphTransport) Read(addr uint8, p []byte, timeout time.Duration) (int, error) {
	buf := make([]byte, len(p))
	if err := t.tx(addr, nil, buf, timeout); err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

// Close implements Transport.
func (t *PeriphTransport) Close() error {
	return t.bus.Close()
}

// tx bounds a transaction by timeout. The kernel transfer can't be
// aborted, so a late transfer finishes in the background on private
// buffers.
func (t *PeriphTransport) tx(addr uint8, w, r []byte, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.bus.Tx(uint16(addr), w, r)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return ErrTimeout
	}
}
