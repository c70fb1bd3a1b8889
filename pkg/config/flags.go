package config

import "flag"

// Flags are command line overrides. Only flags set explicitly
// replace values from the file.
type Flags struct {
	// File is the YAML config path.
	File string

	fs     *flag.FlagSet
	values Config
}

// SetupFlags registers flags on fs, flag.CommandLine when nil.
func SetupFlags(fs *flag.FlagSet) *Flags {
	if fs == nil {
		fs = flag.CommandLine
	}
	f := &Flags{fs: fs, values: Default()}
	v := &f.values
	fs.StringVar(&f.File, "config", "", "YAML config file")
	fs.StringVar(&v.DeviceID, "id", v.DeviceID, "Device ID")
	fs.BoolVar(&v.Simulate, "simulate", v.Simulate, "Use simulated sensors")
	fs.StringVar(&v.Link.Device, "link", v.Link.Device, "Host link serial device, empty to disable")
	fs.IntVar(&v.Link.BaudRate, "baud", v.Link.BaudRate, "Host link baud rate")
	fs.StringVar(&v.Bus.Device, "i2c", v.Bus.Device, "I2C bus name")
	fs.DurationVar(&v.Acquisition.Interval, "interval", v.Acquisition.Interval, "Acquisition interval")
	fs.StringVar(&v.MQTT.URL, "mqtt", v.MQTT.URL, "MQTT broker URL, e.g. mqtt://host:1883/prefix/")
	fs.StringVar(&v.CalibrationFile, "calibration", v.CalibrationFile, "Calibration file")
	return f
}

// Load loads File and applies the flags set on the command line.
func (f *Flags) Load() (*Config, error) {
	c, err := Load(f.File)
	if err != nil {
		return nil, err
	}
	f.Apply(c)
	c.Normalize()
	return c, c.Validate()
}

// Apply copies explicitly set flags into c.
func (f *Flags) Apply(c *Config) {
	v := &f.values
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "id":
			c.DeviceID = v.DeviceID
		case "simulate":
			c.Simulate = v.Simulate
		case "link":
			c.Link.Device = v.Link.Device
		case "baud":
			c.Link.BaudRate = v.Link.BaudRate
		case "i2c":
			c.Bus.Device = v.Bus.Device
		case "interval":
			c.Acquisition.Interval = v.Acquisition.Interval
		case "mqtt":
			c.MQTT.URL = v.MQTT.URL
		case "calibration":
			c.CalibrationFile = v.CalibrationFile
		}
	})
}
