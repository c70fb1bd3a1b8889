// Package sim provides deterministic simulated drivers, used when no
// sensor hardware is fitted.
package sim

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/pod"
	"github.com/autobloomer/sensorcore/pkg/presence"
	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// clock is the time base of simulated values.
type clock struct {
	Start time.Time
	Now   func() time.Time
}

func newClock() clock {
	now := time.Now
	return clock{Start: now(), Now: now}
}

// phase returns the position in [0, 1) within period.
func (c *clock) phase(period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	elapsed := c.Now().Sub(c.Start) % period
	return float64(elapsed) / float64(period)
}

// wave oscillates around base by amplitude.
func (c *clock) wave(base, amplitude float64, period time.Duration) float64 {
	return base + amplitude*math.Sin(2*math.Pi*c.phase(period))
}

// Sonar simulates a feed hopper draining and being refilled: the
// distance to the feed grows from Full to Empty every Period.
type Sonar struct {
	clock
	Full   uint16
	Empty  uint16
	Period time.Duration

	offset atomic.Uint32
}

// NewSonar creates a Sonar.
func NewSonar() *Sonar {
	return &Sonar{clock: newClock(), Full: 200, Empty: 1800, Period: 10 * time.Minute}
}

// ApplyCalibration sets the mounting offset in centimeters.
func (s *Sonar) ApplyCalibration(v sensor.Value) {
	s.offset.Store(math.Float32bits(float32(v.Float64())))
}

// Initialize implements sensor.Driver.
func (s *Sonar) Initialize() error { return nil }

// Read implements sensor.Driver.
func (s *Sonar) Read() (sensor.Reading, error) {
	d := float64(s.Full) + float64(s.Empty-s.Full)*s.phase(s.Period)
	d -= float64(math.Float32frombits(s.offset.Load())) * 10
	if d < 0 {
		d = 0
	}
	return sensor.SonarReading{DistanceMM: uint16(d)}, nil
}

// Battery simulates a coin cell.
type Battery struct {
	Volts float32
}

// Initialize implements sensor.Driver.
func (b *Battery) Initialize() error { return nil }

// Read implements sensor.Driver.
func (b *Battery) Read() (sensor.Reading, error) {
	return sensor.BatteryReading{Volts: b.Volts}, nil
}

// Gas simulates a CO2/temperature/humidity transducer producing a
// sample every Interval. Set Connected to false to unplug it.
type Gas struct {
	clock
	Base     pod.GasSample
	Interval time.Duration

	lock      sync.Mutex
	connected bool
	active    bool
	readAt    time.Time
}

// NewGas creates a connected Gas.
func NewGas(base pod.GasSample) *Gas {
	return &Gas{clock: newClock(), Base: base, Interval: 2 * time.Second, connected: true}
}

// SetConnected plugs or unplugs the transducer.
func (g *Gas) SetConnected(connected bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.connected = connected
	if !connected {
		g.active = false
	}
}

// Connect implements pod.GasSensor.
func (g *Gas) Connect() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.connected {
		return bus.ErrIO
	}
	g.active = true
	return nil
}

// Reset implements pod.GasSensor.
func (g *Gas) Reset() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.active = false
	return nil
}

// DataReady implements pod.GasSensor.
func (g *Gas) DataReady() (bool, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.active {
		return false, bus.ErrIO
	}
	return g.readAt.IsZero() || g.Now().Sub(g.readAt) >= g.Interval, nil
}

// ReadGas implements pod.GasSensor.
func (g *Gas) ReadGas() (pod.GasSample, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.active {
		return pod.GasSample{}, bus.ErrIO
	}
	g.readAt = g.Now()
	return pod.GasSample{
		CO2PPM:       float32(g.wave(float64(g.Base.CO2PPM), 150, time.Hour)),
		TemperatureC: float32(g.wave(float64(g.Base.TemperatureC), 3, 24*time.Hour)),
		HumidityPct:  float32(g.wave(float64(g.Base.HumidityPct), 10, 6*time.Hour)),
	}, nil
}

// Soil simulates a capacitive soil transducer drying out between
// waterings every Period.
type Soil struct {
	clock
	Wet    uint16
	Dry    uint16
	Period time.Duration
}

// NewSoil creates a Soil.
func NewSoil() *Soil {
	return &Soil{clock: newClock(), Wet: 1200, Dry: 400, Period: 3 * time.Hour}
}

// Connect implements pod.SoilSensor.
func (s *Soil) Connect() error { return nil }

// Reset implements pod.SoilSensor.
func (s *Soil) Reset() error { return nil }

// ReadCapacitance implements pod.SoilSensor.
func (s *Soil) ReadCapacitance() (uint16, error) {
	span := float64(s.Wet) - float64(s.Dry)
	return uint16(float64(s.Wet) - span*s.phase(s.Period)), nil
}

// Scanner reports every detector used by defs as connected.
func Scanner(defs []sensor.Definition) presence.Scanner {
	var bits uint32
	for _, def := range defs {
		if def.Detector >= 0 && int(def.Detector) < presence.MaxBits {
			bits |= 1 << uint(def.Detector)
		}
	}
	return presence.ScanFunc(func() (uint32, error) { return bits, nil })
}

// ChannelScanner reports the bus channels used by defs as connected.
func ChannelScanner(defs []sensor.Definition) presence.Scanner {
	var bits uint32
	for _, def := range defs {
		if def.Channel.IsValid() {
			bits |= 1 << uint(def.Channel)
		}
	}
	return presence.ScanFunc(func() (uint32, error) { return bits, nil })
}

// Transport is a bus transport acknowledging every transaction.
func Transport() bus.Opener {
	return func() (bus.Transport, error) { return &bus.FakeTransport{}, nil }
}
