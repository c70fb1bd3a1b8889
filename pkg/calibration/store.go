// Package calibration keeps the calibration values sent by the host
// and persists them across restarts.
package calibration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// Entry is the calibration value of one sensor.
type Entry struct {
	Sensor sensor.ID        `yaml:"sensor"`
	Type   sensor.ValueType `yaml:"type"`
	Value  float64          `yaml:"value"`
}

// EntryOf converts a calibration value.
func EntryOf(id sensor.ID, v sensor.Value) Entry {
	return Entry{Sensor: id, Type: v.Type, Value: v.Float64()}
}

// SensorValue converts the entry back to a typed value.
func (e Entry) SensorValue() sensor.Value {
	switch e.Type {
	case sensor.TypeInt:
		return sensor.IntValue(uint16(e.Value))
	case sensor.TypeFloat:
		return sensor.FloatValue(float32(e.Value))
	case sensor.TypeBool:
		return sensor.BoolValue(e.Value != 0)
	}
	return sensor.Value{Type: e.Type}
}

// Record is the persisted calibration state.
type Record struct {
	Entries []Entry `yaml:"calibration"`
}

// Get finds the value of a sensor.
func (r *Record) Get(id sensor.ID) (sensor.Value, bool) {
	for _, e := range r.Entries {
		if e.Sensor == id {
			return e.SensorValue(), true
		}
	}
	return sensor.Value{}, false
}

// Set adds or replaces the value of a sensor.
func (r *Record) Set(id sensor.ID, v sensor.Value) {
	entry := EntryOf(id, v)
	for n := range r.Entries {
		if r.Entries[n].Sensor == id {
			r.Entries[n] = entry
			return
		}
	}
	r.Entries = append(r.Entries, entry)
}

// Store loads and saves a Record.
type Store interface {
	Load() (Record, error)
	Save(Record) error
}

// FileStore keeps the Record in a YAML file.
type FileStore struct {
	Path string
}

// Load implements Store. A missing file is an empty Record.
func (s *FileStore) Load() (r Record, err error) {
	content, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	if err = yaml.Unmarshal(content, &r); err != nil {
		return r, fmt.Errorf("calibration file %s: %w", s.Path, err)
	}
	return r, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(r Record) error {
	content, err := yaml.Marshal(&r)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// MemStore keeps the Record in memory.
type MemStore struct {
	lock   sync.Mutex
	record Record
	saves  int
}

// Load implements Store.
func (s *MemStore) Load() (Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Record{Entries: append([]Entry(nil), s.record.Entries...)}, nil
}

// Save implements Store.
func (s *MemStore) Save(r Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record = Record{Entries: append([]Entry(nil), r.Entries...)}
	s.saves++
	return nil
}

// Saves returns the number of Save calls.
func (s *MemStore) Saves() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.saves
}
