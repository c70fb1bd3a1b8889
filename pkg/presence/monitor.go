// Package presence caches hardware presence bits from a periodic scan.
package presence

import "github.com/golang/glog"

// Scanner reads the presence bits of all detectors. A set bit means
// the hardware behind it is connected.
type Scanner interface {
	Scan() (uint32, error)
}

// ScanFunc is func type of Scanner.
type ScanFunc func() (uint32, error)

// Scan implements Scanner.
func (f ScanFunc) Scan() (uint32, error) {
	return f()
}

// MaxBits is the number of detectors a Monitor can track.
const MaxBits = 32

// Monitor keeps the result of the last scan so lookups never touch
// hardware. It's not safe for concurrent use.
type Monitor struct {
	Scanner Scanner

	bits    uint32
	scanned bool
}

// NewMonitor creates a Monitor.
func NewMonitor(scanner Scanner) *Monitor {
	return &Monitor{Scanner: scanner}
}

// Refresh rescans all detectors. On failure every detector reads as
// disconnected until the next successful scan.
func (m *Monitor) Refresh() error {
	if m.Scanner == nil {
		return nil
	}
	bits, err := m.Scanner.Scan()
	if err != nil {
		if m.bits != 0 {
			glog.Warningf("presence scan failed: %v", err)
		}
		m.bits = 0
		return err
	}
	if bits != m.bits || !m.scanned {
		glog.V(1).Infof("presence bits %016b", bits)
	}
	m.bits, m.scanned = bits, true
	return nil
}

// Bits returns the cached bitmap.
func (m *Monitor) Bits() uint32 {
	return m.bits
}

// IsSet checks a cached bit.
func (m *Monitor) IsSet(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m.bits&(1<<uint(bit)) != 0
}

// IsHardwareConnected implements sensor.Presence.
func (m *Monitor) IsHardwareConnected(detector int) bool {
	return m.IsSet(detector)
}
