// Package sonar drives UART ultrasonic distance sensors. The sensor
// streams 4-byte packets: 0xFF, distance high, distance low, checksum.
package sonar

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

const (
	startByte  = 0xFF
	packetSize = 4
)

// DefaultStaleAfter is how long a distance is reported after the
// last valid packet.
const DefaultStaleAfter = 2 * time.Second

var (
	// ErrChecksum indicates the last packet failed its checksum.
	ErrChecksum = errors.New("sonar: checksum mismatch")
	// ErrNoInput indicates the driver has no byte source.
	ErrNoInput = errors.New("sonar: no input")
)

// ByteSource provides received bytes without blocking.
type ByteSource interface {
	TryReadByte() (byte, bool)
}

// Sonar implements sensor.Driver for one sensor on its own UART.
type Sonar struct {
	Input      ByteSource
	StaleAfter time.Duration
	Now        func() time.Time

	buf      [packetSize]byte
	pos      int
	distance uint16
	validAt  time.Time
	badSum   bool
	offset   atomic.Uint32 // float32 bits, centimeters
}

// New creates a Sonar reading from in.
func New(in ByteSource) *Sonar {
	return &Sonar{Input: in, StaleAfter: DefaultStaleAfter, Now: time.Now}
}

// ApplyCalibration sets the mounting offset in centimeters, which is
// subtracted from measured distances.
func (s *Sonar) ApplyCalibration(v sensor.Value) {
	s.offset.Store(math.Float32bits(float32(v.Float64())))
}

// Offset returns the mounting offset in centimeters.
func (s *Sonar) Offset() float32 {
	return math.Float32frombits(s.offset.Load())
}

// Initialize implements sensor.Driver.
func (s *Sonar) Initialize() error {
	if s.Input == nil {
		return ErrNoInput
	}
	s.pos, s.badSum, s.validAt = 0, false, time.Time{}
	return nil
}

// Read implements sensor.Driver. It consumes all buffered bytes and
// reports the latest valid distance.
func (s *Sonar) Read() (sensor.Reading, error) {
	if s.Input == nil {
		return nil, ErrNoInput
	}
	now := s.Now()
	for {
		b, ok := s.Input.TryReadByte()
		if !ok {
			break
		}
		s.feed(b, now)
	}
	if s.validAt.IsZero() || now.Sub(s.validAt) > s.StaleAfter {
		if s.badSum {
			return nil, ErrChecksum
		}
		return nil, sensor.ErrNoData
	}
	return sensor.SonarReading{DistanceMM: s.adjusted()}, nil
}

func (s *Sonar) feed(b byte, now time.Time) {
	if b == startByte {
		s.pos = 0
	}
	s.buf[s.pos] = b
	s.pos++
	if s.pos < packetSize {
		return
	}
	s.pos = 0
	if s.buf[0] != startByte || s.buf[0]+s.buf[1]+s.buf[2] != s.buf[3] {
		glog.V(5).Infof("sonar: bad packet % x", s.buf)
		s.badSum = true
		return
	}
	s.distance = uint16(s.buf[1])<<8 | uint16(s.buf[2])
	s.validAt, s.badSum = now, false
}

func (s *Sonar) adjusted() uint16 {
	offset := float64(s.Offset()) * 10
	d := float64(s.distance) - offset
	if d < 0 {
		return 0
	}
	return uint16(math.Round(d))
}
