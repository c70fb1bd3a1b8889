// Package serial opens UART ports for the host link and the sonars.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
	"github.com/golang/glog"
)

// Defaults of Config.
const (
	DefaultBaudRate    = 57600
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config describes a port. Frames are always 8N1.
type Config struct {
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Normalize fills defaults.
func (c *Config) Normalize() {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// Port is an open UART. Read returns (0, nil) when nothing arrives
// within the read timeout, so readers can poll for cancellation.
type Port struct {
	Name string

	port io.ReadWriteCloser
}

// Open opens a port.
func Open(conf Config) (*Port, error) {
	conf.Normalize()
	p, err := serial.Open(&serial.Config{
		Address:  conf.Device,
		BaudRate: conf.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  conf.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Device, err)
	}
	glog.V(1).Infof("serial %s opened at %d baud", conf.Device, conf.BaudRate)
	return &Port{Name: conf.Device, port: p}, nil
}

// NewPort wraps an already open stream.
func NewPort(name string, rw io.ReadWriteCloser) *Port {
	return &Port{Name: name, port: rw}
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	glog.V(5).Infof("serial %s: write % x", p.Name, b)
	return p.port.Write(b)
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.port.Close()
}
