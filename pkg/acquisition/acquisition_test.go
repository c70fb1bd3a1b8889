package acquisition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/framework"
	"github.com/autobloomer/sensorcore/pkg/presence"
	"github.com/autobloomer/sensorcore/pkg/sensor"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

type testDriver struct {
	reading sensor.Reading
	err     error
}

func (d *testDriver) Initialize() error { return nil }

func (d *testDriver) Read() (sensor.Reading, error) {
	return d.reading, d.err
}

type testBus struct {
	refreshes int
	checks    []time.Time
	resetErr  error
}

func (b *testBus) RefreshPresence() error {
	b.refreshes++
	return nil
}

func (b *testBus) CheckWatchdog(now time.Time) (bool, error) {
	b.checks = append(b.checks, now)
	return b.resetErr != nil, b.resetErr
}

type testIndicators struct {
	on      map[int]bool
	flushes int
}

func (i *testIndicators) Set(pos int, on bool) {
	i.on[pos] = on
}

func (i *testIndicators) Flush() error {
	i.flushes++
	return nil
}

type acquisitionTestEnv struct {
	*Acquisition
	loop       *framework.Loop
	bits       uint32
	scanErr    error
	drivers    []*testDriver
	bus        *testBus
	indicators *testIndicators
	queue      *telemetry.Queue
	now        time.Time
}

func newAcquisitionTestEnv(t *testing.T) *acquisitionTestEnv {
	defs := sensor.DefaultInventory()
	env := &acquisitionTestEnv{
		bus:        &testBus{},
		indicators: &testIndicators{on: make(map[int]bool)},
		queue:      telemetry.NewQueue(4),
		now:        time.Unix(1000, 0),
	}
	drivers := make([]sensor.Driver, len(defs))
	for n := range defs {
		d := &testDriver{err: sensor.ErrNoData}
		env.drivers = append(env.drivers, d)
		drivers[n] = d
	}
	monitor := presence.NewMonitor(presence.ScanFunc(func() (uint32, error) {
		return env.bits, env.scanErr
	}))
	registry, err := sensor.NewRegistry(defs, drivers, monitor)
	require.NoError(t, err)
	env.Acquisition = &Acquisition{
		Monitor:    monitor,
		Bus:        env.bus,
		Registry:   registry,
		Indicators: env.indicators,
		Sink:       env.queue,
	}
	env.loop = framework.NewLoop(time.Second).Add(env.Acquisition)
	env.loop.Now = func() time.Time { return env.now }
	return env
}

func (e *acquisitionTestEnv) run() sensor.Snapshot {
	e.loop.RunIteration(context.Background())
	return e.Last()
}

func TestAcquisitionPass(t *testing.T) {
	env := newAcquisitionTestEnv(t)
	env.bits = 1<<0 | 1<<8
	env.drivers[sensor.SonarL1].reading, env.drivers[sensor.SonarL1].err = sensor.SonarReading{DistanceMM: 500}, nil
	env.drivers[sensor.RTCBattery].reading, env.drivers[sensor.RTCBattery].err = sensor.BatteryReading{Volts: 3}, nil

	s := env.run()
	require.Equal(t, sensor.StatusValidData, s.Entries[sensor.SonarL1].Status)
	require.Equal(t, sensor.StatusDisconnected, s.Entries[sensor.SonarR1].Status)
	require.Equal(t, sensor.StatusNoData, s.Entries[sensor.PodL].Status)
	require.Equal(t, sensor.StatusDisconnected, s.Entries[sensor.PodR].Status)
	require.Equal(t, sensor.StatusValidData, s.Entries[sensor.RTCBattery].Status)

	require.Equal(t, 1, env.bus.refreshes)
	require.Equal(t, []time.Time{env.now}, env.bus.checks)

	pushed, ok := env.queue.DrainToLatest()
	require.True(t, ok)
	require.Equal(t, s.Seq, pushed.Seq)

	require.Equal(t, map[int]bool{0: true, 4: false, 1: false, 5: false}, env.indicators.on)
	require.Equal(t, 1, env.indicators.flushes)
}

func TestAcquisitionIndicatorsFollowStatus(t *testing.T) {
	env := newAcquisitionTestEnv(t)
	env.bits = 1 << 3
	env.drivers[sensor.SonarR1].reading, env.drivers[sensor.SonarR1].err = sensor.SonarReading{DistanceMM: 500}, nil
	env.run()
	require.True(t, env.indicators.on[4])

	env.drivers[sensor.SonarR1].err = errors.New("checksum")
	env.run()
	require.False(t, env.indicators.on[4])
	require.Equal(t, 2, env.indicators.flushes)
}

func TestAcquisitionScanFailure(t *testing.T) {
	env := newAcquisitionTestEnv(t)
	env.bits = 1 << 0
	env.drivers[sensor.SonarL1].reading, env.drivers[sensor.SonarL1].err = sensor.SonarReading{DistanceMM: 500}, nil
	require.Equal(t, sensor.StatusValidData, env.run().Entries[sensor.SonarL1].Status)

	env.scanErr = errors.New("gpio")
	s := env.run()
	require.Equal(t, sensor.StatusDisconnected, s.Entries[sensor.SonarL1].Status)
	require.Equal(t, uint64(2), env.loop.Iterations())
}

func TestAcquisitionWatchdogErrorKeepsPolling(t *testing.T) {
	env := newAcquisitionTestEnv(t)
	env.bus.resetErr = errors.New("reopen failed")
	s := env.run()
	require.Len(t, s.Entries, 5)
	require.Equal(t, 1, env.queue.Len())
}

func TestAcquisitionOptionalParts(t *testing.T) {
	defs := sensor.DefaultInventory()[4:]
	defs[0].ID = 0
	registry, err := sensor.NewRegistry(defs, []sensor.Driver{&testDriver{reading: sensor.BatteryReading{Volts: 3}}}, nil)
	require.NoError(t, err)
	a := &Acquisition{Registry: registry}
	loop := framework.NewLoop(time.Second).Add(a)
	loop.RunIteration(context.Background())
	require.Equal(t, sensor.StatusValidData, a.Last().Entries[0].Status)
}
