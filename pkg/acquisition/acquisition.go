// Package acquisition is the periodic sensing context of the daemon.
//
// Each Loop iteration refreshes hardware presence, checks the bus
// watchdog, polls every sensor once, publishes the snapshot and
// finally updates the status indicators.
package acquisition

import (
	"time"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/framework"
	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

// Refresher rescans presence bits.
type Refresher interface {
	Refresh() error
}

// Bus is the part of bus.Session used between polls.
type Bus interface {
	RefreshPresence() error
	CheckWatchdog(now time.Time) (bool, error)
}

// Poller advances all sensors once.
type Poller interface {
	Poll() sensor.Snapshot
	Definitions() []sensor.Definition
}

// Indicators are status LEDs written once per pass.
type Indicators interface {
	Set(pos int, on bool)
	Flush() error
}

// Acquisition wires the sensing pass into a framework.Loop.
// Monitor, Bus and Indicators are optional.
type Acquisition struct {
	Monitor    Refresher
	Bus        Bus
	Registry   Poller
	Indicators Indicators
	Sink       telemetry.Sink

	last sensor.Snapshot
}

// AddToLoop implements framework.LoopAdder.
func (a *Acquisition) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvTop, framework.ControlFunc(a.refresh))
	l.AddController(framework.PrLvSense, framework.ControlFunc(a.sense))
	l.AddController(framework.PrLvActuate, framework.ControlFunc(a.indicate))
}

// Last returns the snapshot of the latest pass.
func (a *Acquisition) Last() sensor.Snapshot {
	return a.last
}

// refresh never fails the pass: a failed scan leaves everything
// reading as disconnected.
func (a *Acquisition) refresh(ctx framework.ControlContext) error {
	if a.Monitor != nil {
		if err := a.Monitor.Refresh(); err != nil {
			glog.V(2).Infof("hardware monitor: %v", err)
		}
	}
	if a.Bus == nil {
		return nil
	}
	if err := a.Bus.RefreshPresence(); err != nil {
		glog.V(2).Infof("channel presence: %v", err)
	}
	if _, err := a.Bus.CheckWatchdog(ctx.Time()); err != nil {
		glog.Warningf("bus reset: %v", err)
	}
	return nil
}

func (a *Acquisition) sense(framework.ControlContext) error {
	a.last = a.Registry.Poll()
	if a.Sink != nil {
		a.Sink.Push(a.last)
	}
	return nil
}

func (a *Acquisition) indicate(framework.ControlContext) error {
	if a.Indicators == nil {
		return nil
	}
	defs := a.Registry.Definitions()
	for _, entry := range a.last.Entries {
		if int(entry.ID) >= len(defs) {
			continue
		}
		if def := &defs[entry.ID]; def.HasIndicator() {
			a.Indicators.Set(def.Indicator, entry.Status == sensor.StatusValidData)
		}
	}
	return a.Indicators.Flush()
}
