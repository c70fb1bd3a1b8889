package sensor

import (
	"fmt"
	"strconv"
)

// Kind identifies the family of a sensor and the shape of its Reading.
type Kind uint8

const (
	// KindSonar is an ultrasonic distance sensor (feed level).
	KindSonar Kind = iota + 1
	// KindPod is a gas/humidity transducer paired with a soil sensor
	// behind one multiplexer channel.
	KindPod
	// KindBattery is the on-board RTC battery monitor.
	KindBattery
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSonar:
		return "sonar"
	case KindPod:
		return "pod"
	case KindBattery:
		return "battery"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ValueType is the wire type of a reading or calibration value.
type ValueType uint8

// Value types, numbered as on the wire.
const (
	TypeInt   ValueType = 0x01 // 16-bit unsigned
	TypeFloat ValueType = 0x02 // IEEE 754 single
	TypeBool  ValueType = 0x03 // encoded as a byte
)

// IsValid checks if the type is known.
func (t ValueType) IsValid() bool {
	return t >= TypeInt && t <= TypeBool
}

// String implements fmt.Stringer.
func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseValueType parses a type name ("int", "float", "bool") or its
// wire number.
func ParseValueType(s string) (ValueType, error) {
	for t := TypeInt; t <= TypeBool; t++ {
		if s == t.String() {
			return t, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || !ValueType(n).IsValid() {
		return 0, fmt.Errorf("invalid value type %q", s)
	}
	return ValueType(n), nil
}

// Value is a tagged scalar. Only the field matching Type is meaningful.
type Value struct {
	Type  ValueType
	Int   uint16
	Float float32
	Bool  bool
}

// IntValue creates an int Value.
func IntValue(v uint16) Value { return Value{Type: TypeInt, Int: v} }

// FloatValue creates a float Value.
func FloatValue(v float32) Value { return Value{Type: TypeFloat, Float: v} }

// BoolValue creates a bool Value.
func BoolValue(v bool) Value { return Value{Type: TypeBool, Bool: v} }

// Float64 converts the value for range comparisons.
func (v Value) Float64() float64 {
	switch v.Type {
	case TypeInt:
		return float64(v.Int)
	case TypeFloat:
		return float64(v.Float)
	case TypeBool:
		if v.Bool {
			return 1
		}
	}
	return 0
}

// Within checks min <= v <= max. Types must match.
func (v Value) Within(min, max Value) bool {
	if v.Type != min.Type || v.Type != max.Type {
		return false
	}
	f := v.Float64()
	return f >= min.Float64() && f <= max.Float64()
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return strconv.Itoa(int(v.Int))
	case TypeFloat:
		return strconv.FormatFloat(float64(v.Float), 'f', -1, 32)
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	}
	return fmt.Sprintf("<%v>", v.Type)
}

// ParseValue parses s as a Value of type t.
func ParseValue(t ValueType, s string) (Value, error) {
	switch t {
	case TypeInt:
		n, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return Value{}, err
		}
		return IntValue(uint16(n)), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(float32(f)), nil
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	}
	return Value{}, fmt.Errorf("invalid value type %v", t)
}

// ReadingDescription describes one value a sensor kind reports.
type ReadingDescription struct {
	ID   uint8
	Name string
	Type ValueType
	Min  Value
	Max  Value
}

// Reading is the last sample of a sensor. It's a closed set of
// value types, one per Kind.
type Reading interface {
	// Kind is the sensor kind the reading belongs to.
	Kind() Kind
	// Values lists values in the order of Descriptions(Kind()).
	Values() []Value
}

// SonarReading is a distance measurement.
type SonarReading struct {
	DistanceMM uint16
}

// Kind implements Reading.
func (SonarReading) Kind() Kind { return KindSonar }

// Values implements Reading.
func (r SonarReading) Values() []Value {
	return []Value{IntValue(r.DistanceMM)}
}

// PodReading combines the gas and soil transducers of a pod.
// Fields of a transducer without a valid sample are zero.
type PodReading struct {
	CO2PPM          float32
	TemperatureC    float32
	HumidityPct     float32
	SoilCapacitance uint16

	GasValid  bool
	SoilValid bool
}

// Kind implements Reading.
func (PodReading) Kind() Kind { return KindPod }

// Values implements Reading.
func (r PodReading) Values() []Value {
	return []Value{
		FloatValue(r.CO2PPM),
		FloatValue(r.TemperatureC),
		FloatValue(r.HumidityPct),
		IntValue(r.SoilCapacitance),
	}
}

// BatteryReading is the battery voltage.
type BatteryReading struct {
	Volts float32
}

// Kind implements Reading.
func (BatteryReading) Kind() Kind { return KindBattery }

// Values implements Reading.
func (r BatteryReading) Values() []Value {
	return []Value{FloatValue(r.Volts)}
}

var (
	sonarDescriptions = []ReadingDescription{
		{ID: 0, Name: "Distance (mm)", Type: TypeInt, Min: IntValue(30), Max: IntValue(4500)},
	}
	podDescriptions = []ReadingDescription{
		{ID: 0, Name: "Carbon Dioxide (PPM)", Type: TypeFloat, Min: FloatValue(400), Max: FloatValue(4000)},
		{ID: 1, Name: "Temperature (°C)", Type: TypeFloat, Min: FloatValue(10), Max: FloatValue(65)},
		{ID: 2, Name: "RH (%)", Type: TypeFloat, Min: FloatValue(0), Max: FloatValue(100)},
		{ID: 3, Name: "Soil Moisture", Type: TypeInt, Min: IntValue(0), Max: IntValue(2000)},
	}
	batteryDescriptions = []ReadingDescription{
		{ID: 0, Name: "Voltage", Type: TypeFloat, Min: FloatValue(0), Max: FloatValue(3.3)},
	}
)

// Descriptions returns the reading descriptions of a kind.
// The returned slice is shared and must not be modified.
func Descriptions(kind Kind) []ReadingDescription {
	switch kind {
	case KindSonar:
		return sonarDescriptions
	case KindPod:
		return podDescriptions
	case KindBattery:
		return batteryDescriptions
	}
	return nil
}

// ZeroValues returns the placeholder values reported for a kind
// when no reading is available.
func ZeroValues(kind Kind) []Value {
	descs := Descriptions(kind)
	values := make([]Value, len(descs))
	for n, desc := range descs {
		values[n] = Value{Type: desc.Type}
	}
	return values
}
