package comm

import (
	"math"

	"github.com/tinylib/msgp/msgp"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// encoder appends MessagePack items to b. A fixed encoder never grows
// b: an item not fitting in cap(b) sets ErrBufferTooSmall. Items after
// the first error are ignored.
type encoder struct {
	b     []byte
	fixed bool
	err   error
}

func headerSize(n uint32) int {
	switch {
	case n <= 15:
		return 1
	case n <= math.MaxUint16:
		return 3
	}
	return 5
}

func strSize(n int) int {
	switch {
	case n <= 31:
		return 1 + n
	case n <= math.MaxUint8:
		return 2 + n
	case n <= math.MaxUint16:
		return 3 + n
	}
	return 5 + n
}

func uintSize(u uint64) int {
	switch {
	case u <= 0x7f:
		return 1
	case u <= math.MaxUint8:
		return 2
	case u <= math.MaxUint16:
		return 3
	case u <= math.MaxUint32:
		return 5
	}
	return 9
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) room(n int) bool {
	if e.err != nil {
		return false
	}
	if e.fixed && cap(e.b)-len(e.b) < n {
		e.err = ErrBufferTooSmall
		return false
	}
	return true
}

func (e *encoder) mapHeader(n uint32) {
	if e.room(headerSize(n)) {
		e.b = msgp.AppendMapHeader(e.b, n)
	}
}

func (e *encoder) arrayHeader(n uint32) {
	if e.room(headerSize(n)) {
		e.b = msgp.AppendArrayHeader(e.b, n)
	}
}

func (e *encoder) str(s string) {
	if e.room(strSize(len(s))) {
		e.b = msgp.AppendString(e.b, s)
	}
}

func (e *encoder) uint(u uint64) {
	if e.room(uintSize(u)) {
		e.b = msgp.AppendUint64(e.b, u)
	}
}

func (e *encoder) float(f float32) {
	if e.room(msgp.Float32Size) {
		e.b = msgp.AppendFloat32(e.b, f)
	}
}

func (e *encoder) boolean(v bool) {
	if e.room(msgp.BoolSize) {
		e.b = msgp.AppendBool(e.b, v)
	}
}

func (e *encoder) null() {
	if e.room(msgp.NilSize) {
		e.b = msgp.AppendNil(e.b)
	}
}

func (e *encoder) packetID(id PacketID) {
	e.str(keyPacketID)
	e.uint(uint64(id))
}

func (e *encoder) headerFields(id PacketID, cmd CommandID, code ResponseCode) {
	e.mapHeader(3)
	e.packetID(id)
	e.str(keyCommandID)
	e.uint(uint64(cmd))
	e.str(keyResponseCode)
	e.uint(uint64(code))
}

// value encodes by type: uint16, float32, or bool as a byte.
func (e *encoder) value(v sensor.Value) {
	switch v.Type {
	case sensor.TypeInt:
		e.uint(uint64(v.Int))
	case sensor.TypeFloat:
		e.float(v.Float)
	case sensor.TypeBool:
		var u uint64
		if v.Bool {
			u = 1
		}
		e.uint(u)
	default:
		e.fail(ErrUnsupported)
	}
}

func (e *encoder) typedValue(t sensor.ValueType, v sensor.Value) {
	if v.Type != t {
		e.fail(ErrUnsupported)
		return
	}
	e.value(v)
}

func (e *encoder) calibration(c *sensor.CalibrationParams) {
	if c == nil {
		e.null()
		return
	}
	e.mapHeader(4)
	e.str(keyIsCalibratable)
	e.boolean(c.Calibratable)
	e.str(keyCalibrationType)
	e.uint(uint64(c.Type))
	e.str(keyCalibrationMin)
	e.typedValue(c.Type, c.Min)
	e.str(keyCalibrationMax)
	e.typedValue(c.Type, c.Max)
}

func (e *encoder) readingDescription(d *sensor.ReadingDescription) {
	e.mapHeader(5)
	e.str(keyReadingID)
	e.uint(uint64(d.ID))
	e.str(keyName)
	e.str(d.Name)
	e.str(keyType)
	e.uint(uint64(d.Type))
	e.str(keyMinValue)
	e.typedValue(d.Type, d.Min)
	e.str(keyMaxValue)
	e.typedValue(d.Type, d.Max)
}
