package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Driver talks to the hardware of one sensor.
type Driver interface {
	// Initialize brings up the hardware after it's connected.
	Initialize() error
	// Read samples the sensor. ErrNoData reports a healthy sensor
	// without a fresh sample.
	Read() (Reading, error)
}

// Presence reports the hardware monitor state of a detector.
type Presence interface {
	IsHardwareConnected(detector int) bool
}

// PresenceFunc is func type of Presence.
type PresenceFunc func(detector int) bool

// IsHardwareConnected implements Presence.
func (f PresenceFunc) IsHardwareConnected(detector int) bool {
	return f(detector)
}

// Sensor is the runtime state of a sensor. It's owned by the
// acquisition context.
type Sensor struct {
	Definition
	HardwareInitialized bool
	Status              Status
	Reading             Reading

	driver Driver
}

// Registry holds all sensors and advances their states.
type Registry struct {
	// Now provides the time stamp of snapshots.
	Now func() time.Time

	sensors  []Sensor
	presence Presence
	seq      uint64
}

// NewRegistry creates a Registry from definitions. drivers is
// indexed by sensor ID. presence may be nil if all sensors use
// constant detectors.
func NewRegistry(defs []Definition, drivers []Driver, presence Presence) (*Registry, error) {
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	if len(drivers) != len(defs) {
		return nil, fmt.Errorf("expect %d drivers, got %d", len(defs), len(drivers))
	}
	r := &Registry{
		Now:      time.Now,
		sensors:  make([]Sensor, len(defs)),
		presence: presence,
	}
	for n, def := range defs {
		if drivers[n] == nil {
			return nil, &DefinitionError{Index: n, Reason: "no driver"}
		}
		if def.Detector >= 0 && presence == nil {
			return nil, &DefinitionError{Index: n, Reason: "detector requires presence monitor"}
		}
		r.sensors[n] = Sensor{Definition: def, Status: StatusDisconnected, driver: drivers[n]}
	}
	return r, nil
}

// Len returns the number of sensors.
func (r *Registry) Len() int {
	return len(r.sensors)
}

// Definitions returns the definitions of all sensors.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.sensors))
	for n := range r.sensors {
		defs[n] = r.sensors[n].Definition
	}
	return defs
}

// Sensor returns a copy of the runtime state of a sensor.
func (r *Registry) Sensor(id ID) (Sensor, error) {
	if int(id) >= len(r.sensors) {
		return Sensor{}, ErrNotFound
	}
	return r.sensors[id], nil
}

// Driver returns the driver bound to a sensor.
func (r *Registry) Driver(id ID) Driver {
	if int(id) >= len(r.sensors) {
		return nil
	}
	return r.sensors[id].driver
}

// Poll advances every sensor once in ID order and returns a
// snapshot of this pass.
func (r *Registry) Poll() Snapshot {
	for n := range r.sensors {
		r.poll(&r.sensors[n])
	}
	return r.Snapshot()
}

// Snapshot copies the current state of all sensors.
func (r *Registry) Snapshot() Snapshot {
	r.seq++
	s := Snapshot{
		Seq:     r.seq,
		Taken:   r.Now(),
		Entries: make([]Entry, len(r.sensors)),
	}
	for n := range r.sensors {
		sensor := &r.sensors[n]
		s.Entries[n] = entryOf(&sensor.Definition, sensor.Status, sensor.Reading)
	}
	return s
}

func (r *Registry) isConnected(detector DetectorID) bool {
	switch detector {
	case AlwaysConnected:
		return true
	case NeverConnected:
		return false
	}
	return r.presence.IsHardwareConnected(int(detector))
}

func (r *Registry) poll(s *Sensor) {
	if !r.isConnected(s.Detector) {
		s.HardwareInitialized = false
		s.update(StatusDisconnected, nil)
		return
	}
	if !s.HardwareInitialized {
		if err := s.driver.Initialize(); err != nil {
			glog.V(1).Infof("sensor %d (%s) init failed: %v", s.ID, s.Name, err)
			s.update(StatusMalfunctioning, nil)
			return
		}
		s.HardwareInitialized = true
		glog.V(1).Infof("sensor %d (%s) initialized", s.ID, s.Name)
	}
	reading, err := s.driver.Read()
	switch {
	case err == nil && reading != nil && reading.Kind() == s.Kind:
		s.update(StatusValidData, reading)
	case errors.Is(err, ErrNoData):
		s.update(StatusNoData, nil)
	default:
		if err != nil {
			glog.V(2).Infof("sensor %d (%s) read failed: %v", s.ID, s.Name, err)
		}
		s.update(StatusMalfunctioning, nil)
	}
}

func (s *Sensor) update(status Status, reading Reading) {
	if status != s.Status {
		glog.V(1).Infof("sensor %d (%s): %s -> %s", s.ID, s.Name, s.Status, status)
	}
	s.Status, s.Reading = status, reading
}
