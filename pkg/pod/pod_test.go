package pod

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/sensor"
)

var errTest = errors.New("test failure")

type testLog struct {
	calls []string
}

func (l *testLog) add(call string) {
	l.calls = append(l.calls, call)
}

func (l *testLog) count(call string) int {
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

type testBus struct {
	log       *testLog
	selectErr error
}

func (b *testBus) SelectChannel(ch bus.Channel) error {
	b.log.add("select")
	return b.selectErr
}

func (b *testBus) ResetMultiplexer() error {
	b.log.add("mux.reset")
	return nil
}

type testGas struct {
	log        *testLog
	connectErr error
	ready      bool
	readErr    error
	sample     GasSample
}

func (g *testGas) Connect() error {
	g.log.add("gas.connect")
	return g.connectErr
}

func (g *testGas) Reset() error {
	g.log.add("gas.reset")
	return errTest
}

func (g *testGas) DataReady() (bool, error) {
	return g.ready, nil
}

func (g *testGas) ReadGas() (GasSample, error) {
	g.log.add("gas.read")
	return g.sample, g.readErr
}

type testSoil struct {
	log        *testLog
	connectErr error
	readErr    error
	value      uint16
}

func (s *testSoil) Connect() error {
	s.log.add("soil.connect")
	return s.connectErr
}

func (s *testSoil) Reset() error {
	s.log.add("soil.reset")
	return nil
}

func (s *testSoil) ReadCapacitance() (uint16, error) {
	s.log.add("soil.read")
	return s.value, s.readErr
}

type testPod struct {
	*Pod
	log  *testLog
	bus  *testBus
	gas  *testGas
	soil *testSoil
	now  time.Time
}

func newTestPod() *testPod {
	log := &testLog{}
	tp := &testPod{
		log:  log,
		bus:  &testBus{log: log},
		gas:  &testGas{log: log},
		soil: &testSoil{log: log},
		now:  time.Unix(10000, 0),
	}
	tp.Pod = New("test", 3, tp.bus, tp.gas, tp.soil)
	tp.Now = func() time.Time { return tp.now }
	tp.Sleep = func(d time.Duration) { log.add("sleep " + d.String()) }
	return tp
}

func (tp *testPod) advance(d time.Duration) {
	tp.now = tp.now.Add(d)
}

func TestWatchdogResetsOnce(t *testing.T) {
	tp := newTestPod()
	tp.gas.connectErr, tp.soil.connectErr = errTest, errTest
	require.NoError(t, tp.Initialize())
	require.Equal(t, tp.now.Add(DefaultTimeout), tp.Deadline())

	for i := 0; i < 29; i++ {
		tp.advance(time.Second)
		_, err := tp.Read()
		require.ErrorIs(t, err, ErrNoValidData)
	}
	require.Zero(t, tp.Resets())

	tp.log.calls = nil
	tp.advance(time.Second)
	_, err := tp.Read()
	require.ErrorIs(t, err, ErrNoValidData)
	require.Equal(t, 1, tp.Resets())
	require.Equal(t, []string{
		"select", "soil.connect", "gas.connect",
		"soil.reset", "gas.reset", "mux.reset", "sleep 50ms",
		"select", "soil.connect", "gas.connect",
	}, tp.log.calls)
	require.Equal(t, tp.now.Add(DefaultTimeout), tp.Deadline())

	for i := 0; i < 29; i++ {
		tp.advance(time.Second)
		tp.Read()
	}
	require.Equal(t, 1, tp.Resets())
	tp.advance(time.Second)
	tp.Read()
	require.Equal(t, 2, tp.Resets())
}

func TestValidDataPushesDeadline(t *testing.T) {
	tp := newTestPod()
	tp.gas.connectErr = errTest
	tp.soil.value = 640
	require.NoError(t, tp.Initialize())

	for i := 0; i < 5; i++ {
		tp.advance(20 * time.Second)
		reading, err := tp.Read()
		require.NoError(t, err)
		require.Equal(t, sensor.PodReading{SoilCapacitance: 640, SoilValid: true}, reading)
		require.Equal(t, tp.now.Add(DefaultTimeout), tp.Deadline())
	}
	require.Zero(t, tp.Resets())
	require.Equal(t, 6, tp.log.count("gas.connect"), "only the inactive transducer reconnects")
	require.Equal(t, 1, tp.log.count("soil.connect"))
}

func TestTransientFailureReconnectsOneTransducer(t *testing.T) {
	tp := newTestPod()
	tp.soil.value = 500
	tp.gas.ready = true
	tp.gas.sample = GasSample{CO2PPM: 900, TemperatureC: 22, HumidityPct: 55}
	require.NoError(t, tp.Initialize())

	reading, err := tp.Read()
	require.NoError(t, err)
	require.Equal(t, sensor.PodReading{
		CO2PPM: 900, TemperatureC: 22, HumidityPct: 55, SoilCapacitance: 500,
		GasValid: true, SoilValid: true,
	}, reading)

	tp.soil.readErr = errTest
	reading, err = tp.Read()
	require.NoError(t, err)
	require.False(t, reading.(sensor.PodReading).SoilValid)
	require.True(t, reading.(sensor.PodReading).GasValid)

	tp.soil.readErr = nil
	tp.Read()
	require.Equal(t, 2, tp.log.count("soil.connect"))
	require.Equal(t, 1, tp.log.count("gas.connect"))
	reading, err = tp.Read()
	require.NoError(t, err)
	require.True(t, reading.(sensor.PodReading).SoilValid)
}

func TestGasSampleHeldUntilStale(t *testing.T) {
	tp := newTestPod()
	tp.soil.connectErr = errTest
	tp.gas.ready = true
	tp.gas.sample = GasSample{CO2PPM: 1000}
	require.NoError(t, tp.Initialize())
	_, err := tp.Read()
	require.NoError(t, err)

	tp.gas.ready = false
	tp.advance(10 * time.Second)
	reading, err := tp.Read()
	require.NoError(t, err)
	require.Equal(t, float32(1000), reading.(sensor.PodReading).CO2PPM)

	tp.advance(25 * time.Second)
	_, err = tp.Read()
	require.ErrorIs(t, err, ErrNoValidData)
}

func TestSelectFailureAbortsCycle(t *testing.T) {
	tp := newTestPod()
	tp.soil.value = 100
	require.NoError(t, tp.Initialize())
	_, err := tp.Read()
	require.NoError(t, err)
	deadline := tp.Deadline()

	tp.bus.selectErr = errTest
	tp.log.calls = nil
	tp.advance(10 * time.Second)
	reading, err := tp.Read()
	require.NoError(t, err, "prior readings are kept")
	require.Equal(t, uint16(100), reading.(sensor.PodReading).SoilCapacitance)
	require.Equal(t, []string{"select"}, tp.log.calls)
	require.Equal(t, deadline, tp.Deadline())
	require.Zero(t, tp.Resets())
}

func TestSelectFailureHoldsReadingUntilDeadline(t *testing.T) {
	tp := newTestPod()
	tp.soil.value = 100
	require.NoError(t, tp.Initialize())
	_, err := tp.Read()
	require.NoError(t, err)
	deadline := tp.Deadline()

	tp.bus.selectErr = errTest
	tp.advance(DefaultTimeout - time.Second)
	_, err = tp.Read()
	require.NoError(t, err)

	tp.advance(time.Second)
	_, err = tp.Read()
	require.ErrorIs(t, err, errTest)
	tp.advance(time.Hour)
	_, err = tp.Read()
	require.ErrorIs(t, err, errTest)
	require.Equal(t, deadline, tp.Deadline())
	require.Zero(t, tp.Resets())
	require.True(t, tp.Reading().SoilValid)

	tp.bus.selectErr = nil
	reading, err := tp.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(100), reading.(sensor.PodReading).SoilCapacitance)
}

func TestInitializeSelectFailure(t *testing.T) {
	tp := newTestPod()
	tp.bus.selectErr = errTest
	require.ErrorIs(t, tp.Initialize(), errTest)
	require.Zero(t, tp.log.count("soil.connect"))

	_, err := tp.Read()
	require.ErrorIs(t, err, errTest)
}
