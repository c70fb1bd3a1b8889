// Package config loads the daemon configuration from a YAML file,
// the environment and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"

	"github.com/autobloomer/sensorcore/pkg/bus"
	"github.com/autobloomer/sensorcore/pkg/comm"
	"github.com/autobloomer/sensorcore/pkg/drivers/battery"
	"github.com/autobloomer/sensorcore/pkg/drivers/sonar"
	"github.com/autobloomer/sensorcore/pkg/gpio"
	"github.com/autobloomer/sensorcore/pkg/pod"
	"github.com/autobloomer/sensorcore/pkg/publish/mqtt"
	"github.com/autobloomer/sensorcore/pkg/serial"
	"github.com/autobloomer/sensorcore/pkg/telemetry"
)

// MQTTURLEnv overrides the broker URL from the file.
const MQTTURLEnv = "SENSORCORE_MQTT_URL"

// Config is the complete daemon configuration.
type Config struct {
	// DeviceID identifies this controller, e.g. as MQTT client id.
	DeviceID string `yaml:"device_id"`
	// Simulate replaces all hardware with simulated sensors.
	Simulate bool `yaml:"simulate"`

	Link        LinkConfig        `yaml:"link"`
	Bus         BusConfig         `yaml:"bus"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Sonar       SonarConfig       `yaml:"sonar"`
	Battery     BatteryConfig     `yaml:"battery"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	MQTT        MQTTConfig        `yaml:"mqtt"`

	CalibrationFile string `yaml:"calibration_file"`
}

// LinkConfig is the host UART. An empty device disables the link.
type LinkConfig struct {
	serial.Config     `yaml:",inline"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// BusConfig is the I2C bus shared by the pods.
type BusConfig struct {
	Device             string        `yaml:"device"`
	SpeedHz            int64         `yaml:"speed_hz"`
	MultiplexerAddress int           `yaml:"multiplexer_address"`
	Timeout            time.Duration `yaml:"timeout"`
	WatchdogWindow     time.Duration `yaml:"watchdog_window"`
}

// GPIOConfig wires the hardware monitor and status indicators. An
// empty chip means every detector reads as connected and there are
// no indicators.
type GPIOConfig struct {
	Chip       string            `yaml:"chip"`
	Monitor    gpio.RegisterPins `yaml:"monitor"`
	Indicators gpio.RegisterPins `yaml:"indicators"`
}

// SonarConfig lists the sonar UARTs in sensor order.
type SonarConfig struct {
	Ports      []serial.Config `yaml:"ports"`
	StaleAfter time.Duration   `yaml:"stale_after"`
}

// BatteryConfig is the ADC channel measuring the RTC battery.
type BatteryConfig struct {
	Dir          string        `yaml:"dir"`
	Channel      int           `yaml:"channel"`
	Divider      float64       `yaml:"divider"`
	SamplePeriod time.Duration `yaml:"sample_period"`
}

// AcquisitionConfig controls the sensing loop.
type AcquisitionConfig struct {
	Interval      time.Duration `yaml:"interval"`
	PodTimeout    time.Duration `yaml:"pod_timeout"`
	BootDelay     time.Duration `yaml:"boot_delay"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

// MQTTConfig is the downstream publisher. An empty URL disables it.
type MQTTConfig struct {
	URL       string        `yaml:"url"`
	TopicRoot string        `yaml:"topic_root"`
	Interval  time.Duration `yaml:"interval"`
}

// Defaults.
const (
	DefaultSpeedHz         = 100000
	DefaultSonarBaud       = 9600
	DefaultInterval        = 200 * time.Millisecond
	DefaultWatchdogWindow  = time.Minute
	DefaultCalibrationFile = "/var/lib/sensorcore/calibration.yaml"
	DefaultIIODir          = "/sys/bus/iio/devices/iio:device0"
)

// Default returns the configuration used when nothing is specified.
func Default() Config {
	c := Config{
		DeviceID: MachineID(),
		Link: LinkConfig{
			Config:            serial.Config{Device: "/dev/ttyAMA0"},
			HeartbeatInterval: comm.DefaultHeartbeatInterval,
		},
		Bus: BusConfig{
			SpeedHz:            DefaultSpeedHz,
			MultiplexerAddress: bus.DefaultMultiplexerAddress,
			Timeout:            bus.DefaultTimeout,
			WatchdogWindow:     DefaultWatchdogWindow,
		},
		GPIO: GPIOConfig{
			Chip:       "gpiochip0",
			Monitor:    gpio.RegisterPins{Latch: 5, Clock: 6, Data: 13, Bits: 16},
			Indicators: gpio.RegisterPins{Latch: 19, Clock: 26, Data: 21, Bits: 8},
		},
		Sonar: SonarConfig{
			Ports: []serial.Config{
				{Device: "/dev/ttyAMA1", BaudRate: DefaultSonarBaud},
				{Device: "/dev/ttyAMA2", BaudRate: DefaultSonarBaud},
			},
			StaleAfter: sonar.DefaultStaleAfter,
		},
		Battery: BatteryConfig{
			Dir:          DefaultIIODir,
			Divider:      2,
			SamplePeriod: battery.DefaultSamplePeriod,
		},
		Acquisition: AcquisitionConfig{
			Interval:   DefaultInterval,
			PodTimeout: pod.DefaultTimeout,
			BootDelay:  pod.DefaultBootDelay,
		},
		MQTT: MQTTConfig{
			TopicRoot: mqtt.DefaultTopicRoot,
			Interval:  mqtt.DefaultInterval,
		},
		CalibrationFile: DefaultCalibrationFile,
	}
	if val := os.Getenv(MQTTURLEnv); val != "" {
		c.MQTT.URL = val
	}
	return c
}

// MachineID retrieves an ID of this machine scoped to the application.
func MachineID() string {
	id, err := machineid.ProtectedID("sensorcore")
	if err != nil {
		return "sensorcore"
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return id
}

// Load reads a YAML file over Default. A missing file is not an error
// when path is empty.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		c.Normalize()
		return &c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err = Parse(data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// Parse decodes YAML over the values in c, applies the environment
// overrides and fills defaults.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	if val := os.Getenv(MQTTURLEnv); val != "" {
		c.MQTT.URL = val
	}
	c.Normalize()
	return nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.DeviceID == "" {
		c.DeviceID = MachineID()
	}
	c.Link.Normalize()
	if c.Link.HeartbeatInterval <= 0 {
		c.Link.HeartbeatInterval = comm.DefaultHeartbeatInterval
	}
	if c.Bus.SpeedHz <= 0 {
		c.Bus.SpeedHz = DefaultSpeedHz
	}
	if c.Bus.Timeout <= 0 {
		c.Bus.Timeout = bus.DefaultTimeout
	}
	for n := range c.Sonar.Ports {
		if c.Sonar.Ports[n].BaudRate <= 0 {
			c.Sonar.Ports[n].BaudRate = DefaultSonarBaud
		}
		c.Sonar.Ports[n].Normalize()
	}
	if c.Sonar.StaleAfter <= 0 {
		c.Sonar.StaleAfter = sonar.DefaultStaleAfter
	}
	if c.Battery.Divider <= 0 {
		c.Battery.Divider = 1
	}
	if c.Battery.SamplePeriod <= 0 {
		c.Battery.SamplePeriod = battery.DefaultSamplePeriod
	}
	if c.Acquisition.Interval <= 0 {
		c.Acquisition.Interval = DefaultInterval
	}
	if c.Acquisition.PodTimeout <= 0 {
		c.Acquisition.PodTimeout = pod.DefaultTimeout
	}
	if c.Acquisition.BootDelay < 0 {
		c.Acquisition.BootDelay = 0
	}
	if c.MQTT.TopicRoot == "" {
		c.MQTT.TopicRoot = mqtt.DefaultTopicRoot
	}
	if c.MQTT.Interval <= 0 {
		c.MQTT.Interval = mqtt.DefaultInterval
	}
}

// QueueCapacity returns the snapshot queue depth for n sensors.
func (c *Config) QueueCapacity(n int) int {
	if c.Acquisition.QueueCapacity > 0 {
		return c.Acquisition.QueueCapacity
	}
	return n * telemetry.CapacityPerSensor
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Link.Device == "" && c.MQTT.URL == "" {
		errs = append(errs, errors.New("neither link device nor mqtt url is set"))
	}
	if a := c.Bus.MultiplexerAddress; a != bus.NoMultiplexer && (a < 0 || a > 0x7f) {
		errs = append(errs, fmt.Errorf("bus: invalid multiplexer address 0x%x", a))
	}
	if c.Bus.WatchdogWindow < 0 {
		errs = append(errs, errors.New("bus: negative watchdog window"))
	}
	if !c.Simulate {
		if c.GPIO.Chip != "" {
			errs = append(errs, validatePins("gpio.monitor", c.GPIO.Monitor)...)
			errs = append(errs, validatePins("gpio.indicators", c.GPIO.Indicators)...)
		}
		for n, port := range c.Sonar.Ports {
			if port.Device == "" {
				errs = append(errs, fmt.Errorf("sonar.ports[%d]: device required", n))
			}
		}
	}
	if c.Battery.Channel < 0 {
		errs = append(errs, fmt.Errorf("battery: invalid channel %d", c.Battery.Channel))
	}
	if c.Acquisition.QueueCapacity < 0 {
		errs = append(errs, errors.New("acquisition: negative queue capacity"))
	}
	return errors.Join(errs...)
}

func validatePins(name string, pins gpio.RegisterPins) []error {
	var errs []error
	if pins.Bits < 1 || pins.Bits > 32 {
		errs = append(errs, fmt.Errorf("%s: bits must be 1..32, got %d", name, pins.Bits))
	}
	if pins.Latch == pins.Clock || pins.Latch == pins.Data || pins.Clock == pins.Data {
		errs = append(errs, fmt.Errorf("%s: register lines must be distinct", name))
	}
	return errs
}
