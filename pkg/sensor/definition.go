package sensor

import (
	"github.com/autobloomer/sensorcore/pkg/bus"
)

// ID is the sensor ID, also the index in the sensor table.
type ID uint8

// DetectorID identifies the presence detector of a sensor. Non-negative
// values index bits of the hardware monitor.
type DetectorID int

const (
	// AlwaysConnected is for sensors without detection hardware that
	// are always fitted.
	AlwaysConnected DetectorID = -1
	// NeverConnected is for sensors not fitted in this build.
	NeverConnected DetectorID = -2
)

// NoIndicator means the sensor has no status LED.
const NoIndicator = -1

// CalibrationParams describes whether and how a sensor is calibrated.
type CalibrationParams struct {
	Calibratable bool
	Type         ValueType
	Min          Value
	Max          Value
}

// Accepts checks v can be used to calibrate.
func (p CalibrationParams) Accepts(v Value) bool {
	return p.Calibratable && v.Type == p.Type && v.Within(p.Min, p.Max)
}

// Definition is the immutable, build-time description of a sensor.
type Definition struct {
	ID       ID
	Name     string
	Location string
	Kind     Kind

	// Channel is the multiplexer channel, bus.NoChannel for
	// sensors not on the shared bus.
	Channel bus.Channel
	// Addresses are device addresses behind Channel in the order
	// expected by the driver.
	Addresses []uint8

	Detector    DetectorID
	Indicator   int
	Calibration CalibrationParams
}

// HasIndicator indicates the sensor drives a status LED.
func (d *Definition) HasIndicator() bool {
	return d.Indicator >= 0
}

// Inventory positions of the default board.
const (
	SonarL1 ID = iota
	SonarR1
	PodL
	PodR
	RTCBattery
)

// Hardware monitor bits of the default board. Bus channel n is
// reported at bit MonitorChannelBase+n.
const (
	MonitorSonarL1     DetectorID = 0
	MonitorSonarR1     DetectorID = 3
	MonitorChannelBase DetectorID = 8
)

var sonarCalibration = CalibrationParams{
	Calibratable: true,
	Type:         TypeFloat,
	Min:          FloatValue(0),
	Max:          FloatValue(50),
}

var fixedCalibration = CalibrationParams{
	Type: TypeFloat,
	Min:  FloatValue(0),
	Max:  FloatValue(50),
}

// DefaultInventory returns the sensor table of the standard board.
func DefaultInventory() []Definition {
	return []Definition{
		{
			ID:          SonarL1,
			Name:        "Feed Level Sensor L1",
			Location:    "Left",
			Kind:        KindSonar,
			Channel:     bus.NoChannel,
			Detector:    MonitorSonarL1,
			Indicator:   0,
			Calibration: sonarCalibration,
		},
		{
			ID:          SonarR1,
			Name:        "Feed Level Sensor R1",
			Location:    "Right",
			Kind:        KindSonar,
			Channel:     bus.NoChannel,
			Detector:    MonitorSonarR1,
			Indicator:   4,
			Calibration: sonarCalibration,
		},
		{
			ID:          PodL,
			Name:        "Sensor Pod L",
			Location:    "Left",
			Kind:        KindPod,
			Channel:     0,
			Addresses:   []uint8{0x61, 0x38},
			Detector:    MonitorChannelBase + 0,
			Indicator:   1,
			Calibration: fixedCalibration,
		},
		{
			ID:          PodR,
			Name:        "Sensor Pod R",
			Location:    "Right",
			Kind:        KindPod,
			Channel:     7,
			Addresses:   []uint8{0x61, 0x36},
			Detector:    MonitorChannelBase + 7,
			Indicator:   5,
			Calibration: fixedCalibration,
		},
		{
			ID:          RTCBattery,
			Name:        "RTC Battery",
			Location:    "Board",
			Kind:        KindBattery,
			Channel:     bus.NoChannel,
			Detector:    AlwaysConnected,
			Indicator:   NoIndicator,
			Calibration: fixedCalibration,
		},
	}
}

// ValidateDefinitions checks IDs are dense and kinds are known.
func ValidateDefinitions(defs []Definition) error {
	for n := range defs {
		def := &defs[n]
		if int(def.ID) != n {
			return &DefinitionError{Index: n, Reason: "ID must equal table index"}
		}
		if Descriptions(def.Kind) == nil {
			return &DefinitionError{Index: n, Reason: "unknown kind " + def.Kind.String()}
		}
		if def.Name == "" {
			return &DefinitionError{Index: n, Reason: "name required"}
		}
		if def.Detector < NeverConnected {
			return &DefinitionError{Index: n, Reason: "invalid detector"}
		}
	}
	return nil
}
