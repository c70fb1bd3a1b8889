// Package battery reads a battery voltage from a Linux IIO ADC channel.
package battery

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// DefaultSamplePeriod is the interval between ADC reads.
const DefaultSamplePeriod = 2 * time.Second

// ADC reads a Linux IIO voltage channel, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type ADC struct {
	// Dir is the IIO device directory.
	Dir string
	// Channel is the voltage channel number.
	Channel int
	// Divider is the ratio of the voltage divider in front of the ADC.
	Divider float64
	// Samples averaged per reading.
	Samples int
	// SamplePeriod is the minimum time between reads.
	SamplePeriod time.Duration

	Now func() time.Time

	scale  float64
	volts  float32
	readAt time.Time
}

// NewADC creates an ADC on a device directory.
func NewADC(dir string, channel int) *ADC {
	return &ADC{
		Dir:          dir,
		Channel:      channel,
		Divider:      2,
		Samples:      8,
		SamplePeriod: DefaultSamplePeriod,
		Now:          time.Now,
	}
}

func (a *ADC) readNumber(name string) (float64, error) {
	content, err := os.ReadFile(filepath.Join(a.Dir, name))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(content)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Initialize implements sensor.Driver. It reads the channel scale.
func (a *ADC) Initialize() error {
	scale, err := a.readNumber(fmt.Sprintf("in_voltage%d_scale", a.Channel))
	if err != nil {
		if scale, err = a.readNumber("in_voltage_scale"); err != nil {
			return err
		}
	}
	a.scale, a.readAt = scale, time.Time{}
	return nil
}

// Read implements sensor.Driver. Between sample periods the last
// voltage is reported.
func (a *ADC) Read() (sensor.Reading, error) {
	now := a.Now()
	if !a.readAt.IsZero() && now.Sub(a.readAt) < a.SamplePeriod {
		return sensor.BatteryReading{Volts: a.volts}, nil
	}
	samples := a.Samples
	if samples < 1 {
		samples = 1
	}
	var sum float64
	for i := 0; i < samples; i++ {
		raw, err := a.readNumber(fmt.Sprintf("in_voltage%d_raw", a.Channel))
		if err != nil {
			return nil, err
		}
		sum += raw
	}
	// scale is in millivolts per LSB
	volts := sum / float64(samples) * a.scale / 1000 * a.Divider
	a.volts = float32(math.Round(volts*100) / 100)
	a.readAt = now
	return sensor.BatteryReading{Volts: a.volts}, nil
}
