// Package pod drives sensor pods: a gas/humidity transducer and a
// capacitive soil transducer sharing one multiplexer channel, guarded
// by a watchdog that resets the pod when it stops producing data.
package pod

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// Defaults of a Pod.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultBootDelay = 50 * time.Millisecond
)

// ErrNoValidData indicates neither transducer has a valid sample.
var ErrNoValidData = errors.New("pod has no valid data")

// Bus is the part of bus.Session a pod uses.
type Bus interface {
	SelectChannel(bus.Channel) error
	ResetMultiplexer() error
}

// GasSample is one CO2/temperature/humidity measurement.
type GasSample struct {
	CO2PPM       float32
	TemperatureC float32
	HumidityPct  float32
}

// GasSensor is the CO2/temperature/humidity transducer.
type GasSensor interface {
	// Connect probes the device and starts continuous measurement.
	Connect() error
	// Reset soft-resets the device.
	Reset() error
	DataReady() (bool, error)
	ReadGas() (GasSample, error)
}

// SoilSensor is the capacitive soil moisture transducer.
type SoilSensor interface {
	Connect() error
	Reset() error
	ReadCapacitance() (uint16, error)
}

// Pod implements sensor.Driver for a sensor pod. It must be polled
// from the context owning the bus.
type Pod struct {
	Name    string
	Channel bus.Channel
	Bus     Bus
	Gas     GasSensor
	Soil    SoilSensor

	// Timeout is how long the pod may go without fresh data
	// before it's reset.
	Timeout   time.Duration
	BootDelay time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)

	gasActive  bool
	soilActive bool
	gasAt      time.Time
	reading    sensor.PodReading
	deadline   time.Time
	resets     int
}

// New creates a Pod with default timing.
func New(name string, ch bus.Channel, b Bus, gas GasSensor, soil SoilSensor) *Pod {
	return &Pod{
		Name:      name,
		Channel:   ch,
		Bus:       b,
		Gas:       gas,
		Soil:      soil,
		Timeout:   DefaultTimeout,
		BootDelay: DefaultBootDelay,
		Now:       time.Now,
		Sleep:     time.Sleep,
	}
}

// Initialize implements sensor.Driver. Only a failure to reach the
// pod's channel is an error; transducers that fail to connect are
// retried by Read.
func (p *Pod) Initialize() error {
	if err := p.Bus.SelectChannel(p.Channel); err != nil {
		return err
	}
	p.connectSoil()
	p.connectGas()
	p.reading = sensor.PodReading{}
	p.deadline = p.Now().Add(p.Timeout)
	return nil
}

// Read implements sensor.Driver. It runs one watchdog cycle. When the
// cycle fails the last reading is reported until the watchdog
// deadline, then the failure is.
func (p *Pod) Read() (sensor.Reading, error) {
	if err := p.Update(); err != nil {
		if p.hasData() && p.Now().Before(p.deadline) {
			return p.reading, nil
		}
		return nil, err
	}
	if !p.hasData() {
		return nil, ErrNoValidData
	}
	return p.reading, nil
}

// Update polls both transducers and resets the pod if the
// deadline has passed. A channel selection failure aborts the
// cycle without touching readings or the deadline.
func (p *Pod) Update() error {
	now := p.Now()
	if p.deadline.IsZero() {
		p.deadline = now.Add(p.Timeout)
	}
	if err := p.Bus.SelectChannel(p.Channel); err != nil {
		glog.V(2).Infof("pod %s: select channel %d: %v", p.Name, p.Channel, err)
		return err
	}
	fresh := p.updateSoil()
	if p.updateGas(now) {
		fresh = true
	}
	if fresh {
		p.deadline = now.Add(p.Timeout)
	} else if !now.Before(p.deadline) {
		p.reset()
	}
	return nil
}

// Reading returns the current combined reading.
func (p *Pod) Reading() sensor.PodReading {
	return p.reading
}

// Deadline returns when the watchdog fires next.
func (p *Pod) Deadline() time.Time {
	return p.deadline
}

// Resets returns how many times the watchdog reset the pod.
func (p *Pod) Resets() int {
	return p.resets
}

func (p *Pod) hasData() bool {
	return p.reading.GasValid || p.reading.SoilValid
}

func (p *Pod) connectSoil() {
	err := p.Soil.Connect()
	if p.soilActive = err == nil; !p.soilActive {
		glog.V(2).Infof("pod %s: soil sensor connect: %v", p.Name, err)
	}
}

func (p *Pod) connectGas() {
	err := p.Gas.Connect()
	if p.gasActive = err == nil; !p.gasActive {
		glog.V(2).Infof("pod %s: gas sensor connect: %v", p.Name, err)
	}
}

func (p *Pod) updateSoil() bool {
	p.reading.SoilValid, p.reading.SoilCapacitance = false, 0
	if !p.soilActive {
		p.connectSoil()
		return false
	}
	v, err := p.Soil.ReadCapacitance()
	if err != nil {
		glog.V(2).Infof("pod %s: soil read: %v", p.Name, err)
		p.soilActive = false
		return false
	}
	p.reading.SoilCapacitance, p.reading.SoilValid = v, true
	return true
}

func (p *Pod) clearGas() {
	p.reading.GasValid = false
	p.reading.CO2PPM, p.reading.TemperatureC, p.reading.HumidityPct = 0, 0, 0
}

// updateGas keeps the last sample while the sensor has nothing new,
// until it's older than Timeout.
func (p *Pod) updateGas(now time.Time) bool {
	if !p.gasActive {
		p.clearGas()
		p.connectGas()
		return false
	}
	ready, err := p.Gas.DataReady()
	if err == nil && !ready {
		if p.reading.GasValid && now.Sub(p.gasAt) > p.Timeout {
			p.clearGas()
		}
		return false
	}
	var sample GasSample
	if err == nil {
		sample, err = p.Gas.ReadGas()
	}
	if err != nil {
		glog.V(2).Infof("pod %s: gas read: %v", p.Name, err)
		p.gasActive = false
		p.clearGas()
		return false
	}
	p.reading.CO2PPM = sample.CO2PPM
	p.reading.TemperatureC = sample.TemperatureC
	p.reading.HumidityPct = sample.HumidityPct
	p.reading.GasValid, p.gasAt = true, now
	return true
}

func (p *Pod) reset() {
	p.resets++
	glog.Warningf("pod %s: no data since %s, reset #%d", p.Name,
		p.deadline.Add(-p.Timeout).Format(time.RFC3339), p.resets)
	if err := p.Soil.Reset(); err != nil {
		glog.V(1).Infof("pod %s: soil reset: %v", p.Name, err)
	}
	if err := p.Gas.Reset(); err != nil {
		glog.V(1).Infof("pod %s: gas reset: %v", p.Name, err)
	}
	if err := p.Bus.ResetMultiplexer(); err != nil {
		glog.V(1).Infof("pod %s: multiplexer reset: %v", p.Name, err)
	}
	p.Sleep(p.BootDelay)
	if err := p.Initialize(); err != nil {
		glog.V(1).Infof("pod %s: re-init: %v", p.Name, err)
	}
	p.deadline = p.Now().Add(p.Timeout)
}
