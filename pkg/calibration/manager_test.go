package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

type testTarget struct {
	applied []sensor.Value
}

func (t *testTarget) ApplyCalibration(v sensor.Value) {
	t.applied = append(t.applied, v)
}

type failingStore struct {
	MemStore
}

func (s *failingStore) Save(Record) error {
	return errors.New("disk full")
}

func TestManagerCalibrate(t *testing.T) {
	store := &MemStore{}
	m, err := NewManager(sensor.DefaultInventory(), store)
	require.NoError(t, err)
	target := &testTarget{}
	m.Attach(sensor.SonarL1, target)
	require.Empty(t, target.applied)

	testCases := []struct {
		name string
		id   sensor.ID
		v    sensor.Value
		err  error
	}{
		{"in range", sensor.SonarL1, sensor.FloatValue(12.5), nil},
		{"upper bound", sensor.SonarL1, sensor.FloatValue(50), nil},
		{"above range", sensor.SonarL1, sensor.FloatValue(50.5), ErrRejected},
		{"wrong type", sensor.SonarL1, sensor.IntValue(10), ErrRejected},
		{"not calibratable", sensor.PodL, sensor.FloatValue(1), ErrRejected},
		{"unknown sensor", 5, sensor.FloatValue(1), sensor.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Calibrate(tc.id, tc.v)
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}

	require.Equal(t, []sensor.Value{sensor.FloatValue(12.5), sensor.FloatValue(50)}, target.applied)
	require.Equal(t, 2, store.Saves())
	v, ok := m.Value(sensor.SonarL1)
	require.True(t, ok)
	require.Equal(t, sensor.FloatValue(50), v)
	_, ok = m.Value(sensor.SonarR1)
	require.False(t, ok)
}

func TestManagerAppliesStoredValues(t *testing.T) {
	store := &MemStore{}
	store.Save(Record{Entries: []Entry{
		{Sensor: sensor.SonarR1, Type: sensor.TypeFloat, Value: 7.5},
		{Sensor: sensor.PodR, Type: sensor.TypeFloat, Value: 1},
		{Sensor: 9, Type: sensor.TypeFloat, Value: 1},
	}})
	m, err := NewManager(sensor.DefaultInventory(), store)
	require.NoError(t, err)

	target := &testTarget{}
	m.Attach(sensor.SonarR1, target)
	require.Equal(t, []sensor.Value{sensor.FloatValue(7.5)}, target.applied)
	_, ok := m.Value(sensor.PodR)
	require.False(t, ok, "values of non-calibratable sensors are dropped")
}

func TestManagerSaveFailure(t *testing.T) {
	m, err := NewManager(sensor.DefaultInventory(), &failingStore{})
	require.NoError(t, err)
	target := &testTarget{}
	m.Attach(sensor.SonarL1, target)
	require.Error(t, m.Calibrate(sensor.SonarL1, sensor.FloatValue(3)))
	require.Empty(t, target.applied)
	_, ok := m.Value(sensor.SonarL1)
	require.False(t, ok)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := &FileStore{Path: filepath.Join(dir, "calibration.yaml")}

	r, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, r.Entries)

	r.Set(sensor.SonarL1, sensor.FloatValue(12.5))
	r.Set(sensor.SonarR1, sensor.FloatValue(3))
	r.Set(sensor.SonarL1, sensor.FloatValue(20))
	require.NoError(t, store.Save(r))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, r, loaded)
	v, ok := loaded.Get(sensor.SonarL1)
	require.True(t, ok)
	require.Equal(t, sensor.FloatValue(20), v)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files remain")

	require.NoError(t, os.WriteFile(store.Path, []byte("calibration: [1, 2"), 0644))
	_, err = store.Load()
	require.Error(t, err)
}
