package main

import (
	"fmt"
	"io"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/autobloomer/sensorcore/pkg/acquisition"
	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/calibration"
	"github.com/autobloomer/sensorcore/pkg/comm"
	"github.com/autobloomer/sensorcore/pkg/config"
	"github.com/autobloomer/sensorcore/pkg/drivers/battery"
	"github.com/autobloomer/sensorcore/pkg/drivers/scd30"
	"github.com/autobloomer/sensorcore/pkg/drivers/seesaw"
	"github.com/autobloomer/sensorcore/pkg/drivers/sim"
	"github.com/autobloomer/sensorcore/pkg/drivers/sonar"
	"github.com/autobloomer/sensorcore/pkg/framework"
	"github.com/autobloomer/sensorcore/pkg/gpio"
	"github.com/autobloomer/sensorcore/pkg/pod"
	"github.com/autobloomer/sensorcore/pkg/presence"
	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/serial"
)

// sonarReadChunk is the pump read size of a sonar UART: one packet
// every 100ms at 9600 baud.
const sonarReadChunk = 16

// board is the hardware, or its simulation, behind the sensor table.
type board struct {
	defs       []sensor.Definition
	drivers    []sensor.Driver
	monitor    *presence.Monitor
	session    *bus.Session
	indicators acquisition.Indicators
	// calibratables are the drivers taking calibration values.
	calibratables map[sensor.ID]calibration.Calibratable
	// runnables feed the drivers, e.g. sonar UART pumps.
	runnables []framework.Runnable
	closers   []io.Closer
}

func newBoard(conf *config.Config, defs []sensor.Definition) (*board, error) {
	b := &board{
		defs:          defs,
		drivers:       make([]sensor.Driver, len(defs)),
		calibratables: make(map[sensor.ID]calibration.Calibratable),
	}
	var err error
	if conf.Simulate {
		err = b.simulate(conf)
	} else {
		err = b.hardware(conf)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *board) simulate(conf *config.Config) error {
	glog.Info("using simulated sensors")
	b.monitor = presence.NewMonitor(sim.Scanner(b.defs))
	session, err := bus.NewSession(bus.Config{
		Open:               sim.Transport(),
		Scanner:            sim.ChannelScanner(b.defs),
		MultiplexerAddress: conf.Bus.MultiplexerAddress,
		Timeout:            conf.Bus.Timeout,
	})
	if err != nil {
		return err
	}
	b.session = session
	b.closers = append(b.closers, session)
	for n := range b.defs {
		def := &b.defs[n]
		switch def.Kind {
		case sensor.KindSonar:
			s := sim.NewSonar()
			b.drivers[n], b.calibratables[def.ID] = s, s
		case sensor.KindPod:
			gas := sim.NewGas(pod.GasSample{CO2PPM: 600 + 100*float32(n), TemperatureC: 22, HumidityPct: 45})
			b.drivers[n] = b.newPod(conf, def, gas, sim.NewSoil())
		case sensor.KindBattery:
			b.drivers[n] = &sim.Battery{Volts: 3.02}
		default:
			return fmt.Errorf("sensor %d: no simulation for %v", def.ID, def.Kind)
		}
	}
	return nil
}

func (b *board) hardware(conf *config.Config) error {
	if err := b.setupGPIO(conf.GPIO); err != nil {
		return err
	}
	channels := presence.ScanFunc(func() (uint32, error) {
		return b.monitor.Bits() >> uint(sensor.MonitorChannelBase) & 0xff, nil
	})
	session, err := bus.NewSession(bus.Config{
		Open:               bus.PeriphOpener(conf.Bus.Device, physic.Frequency(conf.Bus.SpeedHz)*physic.Hertz),
		Scanner:            channels,
		MultiplexerAddress: conf.Bus.MultiplexerAddress,
		Timeout:            conf.Bus.Timeout,
		WatchdogWindow:     conf.Bus.WatchdogWindow,
	})
	if err != nil {
		return err
	}
	b.session = session
	b.closers = append(b.closers, session)

	var sonars int
	for n := range b.defs {
		def := &b.defs[n]
		switch def.Kind {
		case sensor.KindSonar:
			s, err := b.newSonar(conf.Sonar, sonars)
			if err != nil {
				return fmt.Errorf("%s: %w", def.Name, err)
			}
			sonars++
			b.drivers[n], b.calibratables[def.ID] = s, s
		case sensor.KindPod:
			if len(def.Addresses) < 2 {
				return fmt.Errorf("%s: gas and soil addresses required", def.Name)
			}
			gas := scd30.New(session, def.Addresses[0])
			soil := seesaw.NewSoil(session, def.Addresses[1])
			b.drivers[n] = b.newPod(conf, def, gas, soil)
		case sensor.KindBattery:
			adc := battery.NewADC(conf.Battery.Dir, conf.Battery.Channel)
			adc.Divider = conf.Battery.Divider
			adc.SamplePeriod = conf.Battery.SamplePeriod
			b.drivers[n] = adc
		default:
			return fmt.Errorf("sensor %d: no driver for %v", def.ID, def.Kind)
		}
	}
	return nil
}

func (b *board) setupGPIO(conf config.GPIOConfig) error {
	if conf.Chip == "" {
		glog.Warning("no gpio chip, assuming all sensors connected")
		b.monitor = presence.NewMonitor(sim.Scanner(b.defs))
		return nil
	}
	chip, err := gpio.OpenChip(conf.Chip)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, chip)
	monitor, err := gpio.NewRegister(chip, conf.Monitor, true)
	if err != nil {
		return fmt.Errorf("hardware monitor: %w", err)
	}
	indicators, err := gpio.NewRegister(chip, conf.Indicators, false)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	b.monitor = presence.NewMonitor(&gpio.Monitor{Register: monitor})
	b.indicators = &gpio.Indicators{Register: indicators}
	return nil
}

// newSonar opens the n-th sonar port. A sonar without a port stays
// malfunctioning while connected.
func (b *board) newSonar(conf config.SonarConfig, n int) (*sonar.Sonar, error) {
	if n >= len(conf.Ports) {
		glog.Warningf("no port for sonar %d", n)
		return sonar.New(nil), nil
	}
	port, err := serial.Open(conf.Ports[n])
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, port)
	pump := comm.NewPump(port, sonarReadChunk)
	b.runnables = append(b.runnables, framework.NamedRun("sonar "+port.Name, pump))
	s := sonar.New(pump)
	s.StaleAfter = conf.StaleAfter
	return s, nil
}

func (b *board) newPod(conf *config.Config, def *sensor.Definition, gas pod.GasSensor, soil pod.SoilSensor) *pod.Pod {
	p := pod.New(def.Name, def.Channel, b.session, gas, soil)
	p.Timeout = conf.Acquisition.PodTimeout
	p.BootDelay = conf.Acquisition.BootDelay
	return p
}

// Close releases ports, lines and the bus in reverse order of opening.
func (b *board) Close() error {
	var errs framework.AggregatedError
	for n := len(b.closers) - 1; n >= 0; n-- {
		errs.Add(b.closers[n].Close())
	}
	b.closers = nil
	return errs.Aggregate()
}
