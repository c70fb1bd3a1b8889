// Package scd30 drives the Sensirion SCD30 CO2, temperature and
// humidity sensor over I2C.
package scd30

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/pod"
)

// DefaultAddress is the fixed I2C address of the SCD30.
const DefaultAddress = 0x61

// Commands.
const (
	cmdStartContinuous   uint16 = 0x0010
	cmdStopContinuous    uint16 = 0x0104
	cmdMeasureInterval   uint16 = 0x4600
	cmdDataReady         uint16 = 0x0202
	cmdReadMeasurement   uint16 = 0x0300
	cmdSelfCalibration   uint16 = 0x5306
	cmdFirmwareVersion   uint16 = 0xD100
	cmdSoftReset         uint16 = 0xD304
	readDelay                   = 3 * time.Millisecond
	measurementWords            = 6
	wordSize                    = 3 // big-endian word + CRC
	defaultMeasureSecond        = 2
)

// ErrCRC indicates a word failed its CRC check.
var ErrCRC = errors.New("scd30: crc mismatch")

// Sensor is an SCD30 behind a bus.Device. It implements pod.GasSensor.
type Sensor struct {
	Device  bus.Device
	Address uint8
	// Interval is the measurement interval in seconds (2-1800).
	Interval uint16
	// Pressure is the ambient pressure compensation in mbar, 0 to disable.
	Pressure uint16
	Timeout  time.Duration
}

// New creates a Sensor with default settings.
func New(dev bus.Device, addr uint8) *Sensor {
	return &Sensor{Device: dev, Address: addr, Interval: defaultMeasureSecond}
}

var _ pod.GasSensor = &Sensor{}

// CRC computes the Sensirion CRC-8 (polynomial 0x31, init 0xFF).
func CRC(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func (s *Sensor) command(cmd uint16, args ...uint16) error {
	buf := make([]byte, 2, 2+len(args)*wordSize)
	binary.BigEndian.PutUint16(buf, cmd)
	for _, arg := range args {
		var word [2]byte
		binary.BigEndian.PutUint16(word[:], arg)
		buf = append(buf, word[0], word[1], CRC(word[:]))
	}
	return s.Device.Write(s.Address, buf, s.Timeout)
}

func (s *Sensor) read(cmd uint16, words int) ([]uint16, error) {
	var reg [2]byte
	binary.BigEndian.PutUint16(reg[:], cmd)
	buf := make([]byte, words*wordSize)
	if err := s.Device.ReadRegister(s.Address, reg[:], buf, readDelay, s.Timeout); err != nil {
		return nil, err
	}
	return decodeWords(buf)
}

func decodeWords(buf []byte) ([]uint16, error) {
	words := make([]uint16, len(buf)/wordSize)
	for n := range words {
		w := buf[n*wordSize : (n+1)*wordSize]
		if CRC(w[:2]) != w[2] {
			return nil, fmt.Errorf("%w at word %d", ErrCRC, n)
		}
		words[n] = binary.BigEndian.Uint16(w)
	}
	return words, nil
}

// Connect implements pod.GasSensor. It probes the firmware version,
// then starts continuous measurement.
func (s *Sensor) Connect() error {
	version, err := s.read(cmdFirmwareVersion, 1)
	if err != nil {
		return err
	}
	glog.V(1).Infof("scd30 0x%02x: firmware %d.%d", s.Address, version[0]>>8, version[0]&0xff)
	if err = s.command(cmdMeasureInterval, s.Interval); err != nil {
		return err
	}
	return s.command(cmdStartContinuous, s.Pressure)
}

// Stop stops continuous measurement.
func (s *Sensor) Stop() error {
	return s.command(cmdStopContinuous)
}

// SetSelfCalibration turns automatic self calibration on or off.
func (s *Sensor) SetSelfCalibration(on bool) error {
	var arg uint16
	if on {
		arg = 1
	}
	return s.command(cmdSelfCalibration, arg)
}

// Reset implements pod.GasSensor.
func (s *Sensor) Reset() error {
	return s.command(cmdSoftReset)
}

// DataReady implements pod.GasSensor.
func (s *Sensor) DataReady() (bool, error) {
	words, err := s.read(cmdDataReady, 1)
	if err != nil {
		return false, err
	}
	return words[0] == 1, nil
}

// ReadGas implements pod.GasSensor.
func (s *Sensor) ReadGas() (pod.GasSample, error) {
	words, err := s.read(cmdReadMeasurement, measurementWords)
	if err != nil {
		return pod.GasSample{}, err
	}
	f := func(n int) float32 {
		return math.Float32frombits(uint32(words[n])<<16 | uint32(words[n+1]))
	}
	return pod.GasSample{CO2PPM: f(0), TemperatureC: f(2), HumidityPct: f(4)}, nil
}
