// Package seesaw drives the Adafruit STEMMA capacitive soil sensor,
// built on the seesaw I2C firmware.
package seesaw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/pod"
)

// Registers.
const (
	statusBase    = 0x00
	statusHWID    = 0x01
	statusVersion = 0x02
	statusReset   = 0x7F
	touchBase     = 0x0F
	touchChannel  = 0x10

	// HardwareID is the ID reported by seesaw devices.
	HardwareID = 0x55
	// InvalidReading is reported when the touch channel isn't ready.
	InvalidReading = 0xFFFF
)

// Delays between writing a register and reading it.
const (
	idDelay      = 2 * time.Millisecond
	versionDelay = 100 * time.Millisecond
	touchDelay   = 5 * time.Millisecond
)

var (
	// ErrWrongDevice indicates the device isn't a seesaw.
	ErrWrongDevice = errors.New("seesaw: unexpected hardware id")
	// ErrInvalidReading indicates the sensor returned InvalidReading.
	ErrInvalidReading = errors.New("seesaw: invalid reading")
)

// Soil is a soil sensor behind a bus.Device. It implements pod.SoilSensor.
type Soil struct {
	Device  bus.Device
	Address uint8
	Timeout time.Duration
}

var _ pod.SoilSensor = &Soil{}

// NewSoil creates a Soil.
func NewSoil(dev bus.Device, addr uint8) *Soil {
	return &Soil{Device: dev, Address: addr}
}

func (s *Soil) readRegister(base, reg byte, buf []byte, delay time.Duration) error {
	return s.Device.ReadRegister(s.Address, []byte{base, reg}, buf, delay, s.Timeout)
}

// Connect implements pod.SoilSensor. It checks the hardware ID.
func (s *Soil) Connect() error {
	var id [1]byte
	if err := s.readRegister(statusBase, statusHWID, id[:], idDelay); err != nil {
		return err
	}
	if id[0] != HardwareID {
		return fmt.Errorf("%w 0x%02x at 0x%02x", ErrWrongDevice, id[0], s.Address)
	}
	return nil
}

// Version reads the firmware version.
func (s *Soil) Version() (uint32, error) {
	var buf [4]byte
	if err := s.readRegister(statusBase, statusVersion, buf[:], versionDelay); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Reset implements pod.SoilSensor.
func (s *Soil) Reset() error {
	return s.Device.Write(s.Address, []byte{statusBase, statusReset, 0xFF}, s.Timeout)
}

// ReadCapacitance implements pod.SoilSensor.
func (s *Soil) ReadCapacitance() (uint16, error) {
	var buf [2]byte
	if err := s.readRegister(touchBase, touchChannel, buf[:], touchDelay); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(buf[:])
	if v == InvalidReading {
		return 0, ErrInvalidReading
	}
	return v, nil
}
