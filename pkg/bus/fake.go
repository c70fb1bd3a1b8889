package bus

import (
	"sync"
	"time"
)

// FakeWrite records a write to a FakeTransport.
type FakeWrite struct {
	Addr uint8
	Data []byte
}

// FakeTransport is an in-memory Transport for tests and simulation.
type FakeTransport struct {
	// OnWrite overrides the default write behavior if set.
	OnWrite func(addr uint8, p []byte) (int, error)
	// OnRead overrides the default read behavior if set.
	OnRead func(addr uint8, p []byte) (int, error)
	// Registers holds the bytes returned by reads, per address.
	Registers map[uint8][]byte

	lock   sync.Mutex
	writes []FakeWrite
	closed bool
}

// Write implements Transport.
func (t *FakeTransport) Write(addr uint8, p []byte, timeout time.Duration) (int, error) {
	t.lock.Lock()
	t.writes = append(t.writes, FakeWrite{Addr: addr, Data: append([]byte(nil), p...)})
	fn := t.OnWrite
	t.lock.Unlock()
	if fn != nil {
		return fn(addr, p)
	}
	return len(p), nil
}

// Read implements Transport.
func (t *FakeTransport) Read(addr uint8, p []byte, timeout time.Duration) (int, error) {
	t.lock.Lock()
	fn, data := t.OnRead, t.Registers[addr]
	t.lock.Unlock()
	if fn != nil {
		return fn(addr, p)
	}
	return copy(p, data), nil
}

// Close implements Transport.
func (t *FakeTransport) Close() error {
	t.lock.Lock()
	t.closed = true
	t.lock.Unlock()
	return nil
}

// Writes returns recorded writes.
func (t *FakeTransport) Writes() []FakeWrite {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]FakeWrite(nil), t.writes...)
}

// Closed indicates Close was called.
func (t *FakeTransport) Closed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.closed
}
