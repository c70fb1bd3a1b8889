package calibration

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// ErrRejected indicates the sensor can't take the value.
var ErrRejected = errors.New("calibration rejected")

// Calibratable is implemented by drivers applying calibration values.
type Calibratable interface {
	ApplyCalibration(sensor.Value)
}

// Manager validates, persists and distributes calibration values.
// It's safe for concurrent use: the link context calibrates while
// the acquisition context reads values.
type Manager struct {
	defs  []sensor.Definition
	store Store

	lock    sync.Mutex
	record  Record
	targets map[sensor.ID]Calibratable
}

// NewManager loads the stored Record. Stored values no longer
// accepted by a definition are dropped.
func NewManager(defs []sensor.Definition, store Store) (*Manager, error) {
	record, err := store.Load()
	if err != nil {
		return nil, err
	}
	m := &Manager{defs: defs, store: store, targets: make(map[sensor.ID]Calibratable)}
	for _, e := range record.Entries {
		v := e.SensorValue()
		if err := m.check(e.Sensor, v); err != nil {
			glog.Warningf("calibration: dropping stored value of sensor %d: %v", e.Sensor, err)
			continue
		}
		m.record.Set(e.Sensor, v)
	}
	return m, nil
}

// Attach registers the driver of a sensor and applies the stored value.
func (m *Manager) Attach(id sensor.ID, target Calibratable) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.targets[id] = target
	if v, ok := m.record.Get(id); ok {
		target.ApplyCalibration(v)
	}
}

// Value returns the current value of a sensor.
func (m *Manager) Value(id sensor.ID) (sensor.Value, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.record.Get(id)
}

// Calibrate validates and persists v for the sensor, then applies it
// to the attached driver. The value isn't applied if saving fails.
func (m *Manager) Calibrate(id sensor.ID, v sensor.Value) error {
	if err := m.check(id, v); err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	record := Record{Entries: append([]Entry(nil), m.record.Entries...)}
	record.Set(id, v)
	if err := m.store.Save(record); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	m.record = record
	if target := m.targets[id]; target != nil {
		target.ApplyCalibration(v)
	}
	glog.Infof("calibration: sensor %d set to %v", id, v)
	return nil
}

func (m *Manager) check(id sensor.ID, v sensor.Value) error {
	if int(id) >= len(m.defs) {
		return fmt.Errorf("%w: %d", sensor.ErrNotFound, id)
	}
	params := m.defs[id].Calibration
	if !params.Calibratable {
		return fmt.Errorf("%w: %s is not calibratable", ErrRejected, m.defs[id].Name)
	}
	if !params.Accepts(v) {
		return fmt.Errorf("%w: %s takes %v in [%v, %v], got %v %v",
			ErrRejected, m.defs[id].Name, params.Type, params.Min, params.Max, v.Type, v)
	}
	return nil
}
