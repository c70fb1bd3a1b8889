package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobloomer/sensorcore/pkg/gpio"
	"github.com/autobloomer/sensorcore/pkg/serial"
)

const testYAML = `
device_id: barn-1
link:
  device: /dev/ttyUSB0
  heartbeat_interval: 2s
bus:
  device: "1"
  multiplexer_address: 0x71
sonar:
  ports:
    - device: /dev/ttyS1
    - device: /dev/ttyS2
      baud: 19200
acquisition:
  interval: 500ms
  queue_capacity: 8
mqtt:
  url: mqtt://broker:1883/farm/
`

func TestParse(t *testing.T) {
	t.Setenv(MQTTURLEnv, "")
	c := Default()
	require.NoError(t, Parse([]byte(testYAML), &c))
	require.NoError(t, c.Validate())

	require.Equal(t, "barn-1", c.DeviceID)
	require.Equal(t, "/dev/ttyUSB0", c.Link.Device)
	require.Equal(t, serial.DefaultBaudRate, c.Link.BaudRate)
	require.Equal(t, 2*time.Second, c.Link.HeartbeatInterval)
	require.Equal(t, "1", c.Bus.Device)
	require.Equal(t, 0x71, c.Bus.MultiplexerAddress)
	require.Equal(t, int64(DefaultSpeedHz), c.Bus.SpeedHz)
	require.Equal(t, []serial.Config{
		{Device: "/dev/ttyS1", BaudRate: DefaultSonarBaud, ReadTimeout: serial.DefaultReadTimeout},
		{Device: "/dev/ttyS2", BaudRate: 19200, ReadTimeout: serial.DefaultReadTimeout},
	}, c.Sonar.Ports)
	require.Equal(t, 500*time.Millisecond, c.Acquisition.Interval)
	require.Equal(t, 8, c.QueueCapacity(5))
	require.Equal(t, "mqtt://broker:1883/farm/", c.MQTT.URL)
	require.Equal(t, "AutoBloomer", c.MQTT.TopicRoot)
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.NotEmpty(t, c.DeviceID)
	require.Equal(t, 57600, c.Link.BaudRate)
	require.Equal(t, 0x70, c.Bus.MultiplexerAddress)
	require.Equal(t, 100*time.Millisecond, c.Bus.Timeout)
	require.Equal(t, DefaultInterval, c.Acquisition.Interval)
	require.Equal(t, 30*time.Second, c.Acquisition.PodTimeout)
	require.Equal(t, 50*time.Millisecond, c.Acquisition.BootDelay)
	require.Equal(t, 5*time.Second, c.Link.HeartbeatInterval)
	require.Equal(t, 20, c.QueueCapacity(5))
	require.Len(t, c.Sonar.Ports, 2)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv(MQTTURLEnv, "mqtt://env:1883/")
	c := Default()
	require.NoError(t, Parse([]byte(testYAML), &c))
	require.Equal(t, "mqtt://env:1883/", c.MQTT.URL)
}

func TestFlagsOverrideFile(t *testing.T) {
	t.Setenv(MQTTURLEnv, "")
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	fs := flag.NewFlagSet("sensord", flag.ContinueOnError)
	flags := SetupFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-simulate", "-mqtt", "mqtt://flag:1883/"}))
	c, err := flags.Load()
	require.NoError(t, err)
	require.True(t, c.Simulate)
	require.Equal(t, "mqtt://flag:1883/", c.MQTT.URL)
	require.Equal(t, "/dev/ttyUSB0", c.Link.Device, "unset flags keep file values")
	require.Equal(t, "barn-1", c.DeviceID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("link: [1, 2"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"nothing to serve", func(c *Config) { c.Link.Device, c.MQTT.URL = "", "" }},
		{"multiplexer address", func(c *Config) { c.Bus.MultiplexerAddress = 0x80 }},
		{"watchdog window", func(c *Config) { c.Bus.WatchdogWindow = -time.Second }},
		{"monitor bits", func(c *Config) { c.GPIO.Monitor.Bits = 33 }},
		{"indicator lines", func(c *Config) { c.GPIO.Indicators = gpio.RegisterPins{Latch: 1, Clock: 1, Data: 2, Bits: 8} }},
		{"sonar device", func(c *Config) { c.Sonar.Ports[1].Device = "" }},
		{"battery channel", func(c *Config) { c.Battery.Channel = -1 }},
		{"queue capacity", func(c *Config) { c.Acquisition.QueueCapacity = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			c.Normalize()
			tc.modify(&c)
			require.Error(t, c.Validate())
		})
	}

	c := Default()
	c.Simulate = true
	c.Sonar.Ports[0].Device = ""
	c.GPIO.Monitor.Bits = 0
	require.NoError(t, c.Validate(), "hardware settings are ignored when simulating")

	c = Default()
	c.Bus.MultiplexerAddress = -1
	require.NoError(t, c.Validate())
}
