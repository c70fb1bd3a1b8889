package bus

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/presence"
)

// Channel is a multiplexer channel.
type Channel int8

const (
	// NoChannel means no channel is selected or required.
	NoChannel Channel = -1
	// MaxChannel is the highest channel of the multiplexer.
	MaxChannel Channel = 7
)

// IsValid checks if the channel can be selected.
func (c Channel) IsValid() bool {
	return c >= 0 && c <= MaxChannel
}

// NoMultiplexer disables channel selection.
const NoMultiplexer = -1

// Defaults of a Session.
const (
	DefaultMultiplexerAddress = 0x70
	DefaultTimeout            = 100 * time.Millisecond
)

// Transport is the raw blocking bus peripheral.
type Transport interface {
	// Write writes p to the device at addr, returning the number
	// of bytes acknowledged.
	Write(addr uint8, p []byte, timeout time.Duration) (int, error)
	// Read reads len(p) bytes from the device at addr.
	Read(addr uint8, p []byte, timeout time.Duration) (int, error)
	// Close releases the peripheral.
	Close() error
}

// Device is the transaction API used by device drivers. Session
// implements it.
type Device interface {
	Write(addr uint8, data []byte, timeout time.Duration) error
	Read(addr uint8, buf []byte, timeout time.Duration) error
	ReadRegister(addr uint8, reg, buf []byte, delay, timeout time.Duration) error
}

// Opener opens the bus peripheral, used at start and on every reset.
type Opener func() (Transport, error)

// Config configures a Session.
type Config struct {
	Open Opener
	// Scanner reports channel presence, bit n for channel n.
	Scanner presence.Scanner
	// MultiplexerAddress is the multiplexer address or NoMultiplexer.
	MultiplexerAddress int
	// Timeout is used by transactions given a zero timeout.
	Timeout time.Duration
	// WatchdogWindow is the longest time without a successful
	// transaction before CheckWatchdog resets the bus. Zero disables.
	WatchdogWindow time.Duration
}

// Session owns the shared bus, the multiplexer and the channel
// presence monitor. It never retries; recovery is up to callers.
// A Session belongs to the acquisition context and isn't safe for
// concurrent use.
type Session struct {
	Config

	Now   func() time.Time
	Sleep func(time.Duration)

	transport Transport
	presence  presence.Monitor
	current   Channel
	lastOK    time.Time
	resets    int
}

// NewSession opens the transport and scans channel presence.
func NewSession(conf Config) (*Session, error) {
	if conf.Open == nil {
		return nil, fmt.Errorf("bus opener required")
	}
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultTimeout
	}
	s := &Session{
		Config:   conf,
		Now:      time.Now,
		Sleep:    time.Sleep,
		presence: presence.Monitor{Scanner: conf.Scanner},
		current:  NoChannel,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	tr, err := s.Open()
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	s.transport, s.current, s.lastOK = tr, NoChannel, s.Now()
	if err := s.presence.Refresh(); err != nil {
		glog.Warningf("bus presence scan: %v", err)
	}
	return nil
}

// CurrentChannel returns the selected channel.
func (s *Session) CurrentChannel() Channel {
	return s.current
}

// Resets returns how many times the bus has been reset.
func (s *Session) Resets() int {
	return s.resets
}

// SelectChannel routes the bus to a multiplexer channel.
func (s *Session) SelectChannel(ch Channel) error {
	if s.MultiplexerAddress == NoMultiplexer || !ch.IsValid() {
		return &Error{Op: "select", Addr: uint8(s.MultiplexerAddress), Kind: ErrCommandFailed,
			Err: fmt.Errorf("channel %d", ch)}
	}
	if err := s.Write(uint8(s.MultiplexerAddress), []byte{1 << uint(ch)}, 0); err != nil {
		s.current = NoChannel
		return err
	}
	s.current = ch
	return nil
}

// ResetMultiplexer deselects all channels.
func (s *Session) ResetMultiplexer() error {
	if s.MultiplexerAddress == NoMultiplexer {
		return &Error{Op: "mux-reset", Kind: ErrCommandFailed}
	}
	s.current = NoChannel
	return s.Write(uint8(s.MultiplexerAddress), []byte{0}, 0)
}

// IsChannelConnected consults the cached presence bitmap.
func (s *Session) IsChannelConnected(ch Channel) bool {
	return ch.IsValid() && s.presence.IsSet(int(ch))
}

// RefreshPresence rescans channel presence.
func (s *Session) RefreshPresence() error {
	return s.presence.Refresh()
}

// Reset tears down and re-opens the bus, then rescans presence.
func (s *Session) Reset() error {
	s.resets++
	glog.V(1).Infof("bus reset #%d", s.resets)
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			glog.Warningf("bus close: %v", err)
		}
		s.transport = nil
	}
	return s.open()
}

// CheckWatchdog resets the bus when a channel reports presence but
// nothing succeeded within WatchdogWindow. It reports whether a
// reset happened.
func (s *Session) CheckWatchdog(now time.Time) (bool, error) {
	if s.WatchdogWindow <= 0 {
		return false, nil
	}
	if s.presence.Bits()&0xff == 0 {
		s.lastOK = now
		return false, nil
	}
	if now.Sub(s.lastOK) <= s.WatchdogWindow {
		return false, nil
	}
	glog.Warningf("bus idle since %s, resetting", s.lastOK.Format(time.RFC3339))
	err := s.Reset()
	s.lastOK = now
	return true, err
}

// Write writes data to a device.
func (s *Session) Write(addr uint8, data []byte, timeout time.Duration) error {
	if s.transport == nil {
		return &Error{Op: "write", Addr: addr, Kind: ErrIO, Err: ErrClosed}
	}
	n, err := s.transport.Write(addr, data, s.timeout(timeout))
	return s.done(classify("write", addr, n, len(data), err))
}

// ReadRegister writes the register prefix, waits delay, then reads
// len(buf) bytes.
func (s *Session) ReadRegister(addr uint8, reg, buf []byte, delay, timeout time.Duration) error {
	if err := s.Write(addr, reg, timeout); err != nil {
		return err
	}
	if delay > 0 {
		s.Sleep(delay)
	}
	return s.Read(addr, buf, timeout)
}

// Read reads len(buf) bytes from a device.
func (s *Session) Read(addr uint8, buf []byte, timeout time.Duration) error {
	if s.transport == nil {
		return &Error{Op: "read", Addr: addr, Kind: ErrIO, Err: ErrClosed}
	}
	n, err := s.transport.Read(addr, buf, s.timeout(timeout))
	return s.done(classify("read", addr, n, len(buf), err))
}

// Close releases the transport.
func (s *Session) Close() error {
	if s.transport == nil {
		return nil
	}
	err := s.transport.Close()
	s.transport = nil
	return err
}

func (s *Session) timeout(t time.Duration) time.Duration {
	if t <= 0 {
		return s.Timeout
	}
	return t
}

func (s *Session) done(err error) error {
	if err == nil {
		s.lastOK = s.Now()
	} else if glog.V(5) {
		glog.Infof("%v", err)
	}
	return err
}
