package comm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/autobloomer/sensorcore/pkg/sensor"
)

// IsShort indicates b holds an incomplete packet and more bytes
// are needed.
func IsShort(err error) bool {
	return errors.Is(err, msgp.ErrShortBytes)
}

func malformed(what string, err error) error {
	if IsShort(err) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPacket, what, err)
	}
	return fmt.Errorf("%w: %s", ErrMalformedPacket, what)
}

// oversized reports that b starts with a string, binary, map or array
// header declaring more bytes than a packet can hold. Such a header is
// noise, not the start of an incomplete packet.
func oversized(b []byte) bool {
	var n uint32
	var err error
	scale := uint64(1)
	switch msgp.NextType(b) {
	case msgp.StrType:
		n, err = strHeader(b)
	case msgp.BinType:
		n, _, err = msgp.ReadBytesHeader(b)
	case msgp.MapType:
		n, _, err = msgp.ReadMapHeaderBytes(b)
		scale = 2
	case msgp.ArrayType:
		n, _, err = msgp.ReadArrayHeaderBytes(b)
	default:
		return false
	}
	return err == nil && uint64(n)*scale > OutputBufferSize
}

// strHeader reads the length of a MessagePack string, which msgp
// only exposes together with the body.
func strHeader(b []byte) (uint32, error) {
	switch b[0] {
	case 0xd9:
		if len(b) < 2 {
			return 0, msgp.ErrShortBytes
		}
		return uint32(b[1]), nil
	case 0xda:
		if len(b) < 3 {
			return 0, msgp.ErrShortBytes
		}
		return uint32(binary.BigEndian.Uint16(b[1:])), nil
	case 0xdb:
		if len(b) < 5 {
			return 0, msgp.ErrShortBytes
		}
		return binary.BigEndian.Uint32(b[1:]), nil
	}
	return uint32(b[0] & 0x1f), nil
}

func checkSize(what string, b []byte) error {
	if oversized(b) {
		return malformed(what+" exceeds packet size", nil)
	}
	return nil
}

// fieldFunc decodes the value of key from b and returns the rest.
type fieldFunc func(key string, b []byte) ([]byte, error)

func readFields(b []byte, count uint32, fn fieldFunc) ([]byte, error) {
	for i := uint32(0); i < count; i++ {
		if err := checkSize("key", b); err != nil {
			return b, err
		}
		key, rest, err := msgp.ReadStringBytes(b)
		if err != nil {
			return b, malformed("key", err)
		}
		if b, err = fn(key, rest); err != nil {
			return b, err
		}
	}
	return b, nil
}

func readMap(b []byte, fn fieldFunc) ([]byte, error) {
	if err := checkSize("map", b); err != nil {
		return b, err
	}
	count, rest, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, malformed("map", err)
	}
	return readFields(rest, count, fn)
}

func skip(key string, b []byte) ([]byte, error) {
	if err := checkSize(key, b); err != nil {
		return b, err
	}
	rest, err := msgp.Skip(b)
	if err != nil {
		return b, malformed(key, err)
	}
	return rest, nil
}

func readU8(key string, b []byte, v *uint8) ([]byte, error) {
	u, rest, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return b, malformed(key, err)
	}
	*v = u
	return rest, nil
}

func readString(key string, b []byte, v *string) ([]byte, error) {
	if err := checkSize(key, b); err != nil {
		return b, err
	}
	s, rest, err := msgp.ReadStringBytes(b)
	if err != nil {
		return b, malformed(key, err)
	}
	*v = s
	return rest, nil
}

// DecodeValue decodes a value of type t.
func DecodeValue(b []byte, t sensor.ValueType) (v sensor.Value, rest []byte, err error) {
	v.Type = t
	switch t {
	case sensor.TypeInt:
		v.Int, rest, err = msgp.ReadUint16Bytes(b)
	case sensor.TypeFloat:
		v.Float, rest, err = msgp.ReadFloat32Bytes(b)
	case sensor.TypeBool:
		var u uint8
		u, rest, err = msgp.ReadUint8Bytes(b)
		v.Bool = u != 0
	default:
		return v, b, ErrUnsupported
	}
	if err != nil {
		return v, b, malformed("value", err)
	}
	return v, rest, nil
}

// DecodePacket decodes the first packet in b and returns the rest.
// IsShort(err) reports that b ends in the middle of a packet. A
// packet never exceeds OutputBufferSize, so headers declaring more,
// or b holding that much without a complete packet, are malformed.
func DecodePacket(b []byte) (Packet, []byte, error) {
	p, rest, err := decodePacket(b)
	if IsShort(err) && len(b) >= OutputBufferSize {
		return nil, b, malformed("packet exceeds buffer size", nil)
	}
	return p, rest, err
}

func decodePacket(b []byte) (Packet, []byte, error) {
	if err := checkSize("packet", b); err != nil {
		return nil, b, err
	}
	count, rest, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, malformed("packet", err)
	}
	if count == 0 {
		return nil, b, malformed("empty packet", nil)
	}
	var key string
	if rest, err = readString("key", rest, &key); err != nil {
		return nil, b, err
	}
	if key != keyPacketID {
		return nil, b, malformed("expect "+keyPacketID+" first", nil)
	}
	var id uint8
	if rest, err = readU8(keyPacketID, rest, &id); err != nil {
		return nil, b, err
	}
	count--

	var p Packet
	switch PacketID(id) {
	case HeaderPacket, HeartbeatPacket, ControllerReadyPacket:
		p, rest, err = decodeHeader(PacketID(id), rest, count)
	case TerminatorPacket:
		var t Terminator
		rest, err = readFields(rest, count, func(key string, b []byte) ([]byte, error) {
			if key == keyTerminatorCode {
				return readU8(key, b, &t.Code)
			}
			return skip(key, b)
		})
		p = t
	case SensorDataPacket:
		p, rest, err = decodeSensorData(rest, count)
	case SensorDescriptionPacket:
		p, rest, err = decodeSensorDescription(rest, count)
	default:
		err = malformed(fmt.Sprintf("unknown packet id 0x%02x", id), nil)
	}
	if err != nil {
		return nil, b, err
	}
	return p, rest, nil
}

func decodeHeader(id PacketID, b []byte, count uint32) (Packet, []byte, error) {
	var cmd, code uint8
	rest, err := readFields(b, count, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keyCommandID:
			return readU8(key, b, &cmd)
		case keyResponseCode:
			return readU8(key, b, &code)
		}
		return skip(key, b)
	})
	if err != nil {
		return nil, b, err
	}
	switch id {
	case HeartbeatPacket:
		return Heartbeat{}, rest, nil
	case ControllerReadyPacket:
		return ControllerReady{}, rest, nil
	}
	return Header{Command: CommandID(cmd), Response: ResponseCode(code)}, rest, nil
}

func decodeCalibration(b []byte) (*sensor.CalibrationParams, []byte, error) {
	if msgp.IsNil(b) {
		rest, err := msgp.ReadNilBytes(b)
		return nil, rest, err
	}
	var c sensor.CalibrationParams
	var rawMin, rawMax []byte
	rest, err := readMap(b, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keyIsCalibratable:
			v, rest, err := msgp.ReadBoolBytes(b)
			if err != nil {
				return b, malformed(key, err)
			}
			c.Calibratable = v
			return rest, nil
		case keyCalibrationType:
			return readU8(key, b, (*uint8)(&c.Type))
		case keyCalibrationMin:
			rest, err := skip(key, b)
			rawMin = b[:len(b)-len(rest)]
			return rest, err
		case keyCalibrationMax:
			rest, err := skip(key, b)
			rawMax = b[:len(b)-len(rest)]
			return rest, err
		}
		return skip(key, b)
	})
	if err != nil {
		return nil, b, err
	}
	if c.Min, err = decodeRawValue(rawMin, c.Type); err != nil {
		return nil, b, err
	}
	if c.Max, err = decodeRawValue(rawMax, c.Type); err != nil {
		return nil, b, err
	}
	return &c, rest, nil
}

func decodeRawValue(raw []byte, t sensor.ValueType) (sensor.Value, error) {
	if raw == nil {
		return sensor.Value{Type: t}, nil
	}
	v, _, err := DecodeValue(raw, t)
	return v, err
}

func decodeReadingDescription(b []byte) (d sensor.ReadingDescription, rest []byte, err error) {
	var rawMin, rawMax []byte
	rest, err = readMap(b, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keyReadingID:
			return readU8(key, b, &d.ID)
		case keyName:
			return readString(key, b, &d.Name)
		case keyType:
			return readU8(key, b, (*uint8)(&d.Type))
		case keyMinValue:
			rest, err := skip(key, b)
			rawMin = b[:len(b)-len(rest)]
			return rest, err
		case keyMaxValue:
			rest, err := skip(key, b)
			rawMax = b[:len(b)-len(rest)]
			return rest, err
		}
		return skip(key, b)
	})
	if err != nil {
		return d, b, err
	}
	if d.Min, err = decodeRawValue(rawMin, d.Type); err != nil {
		return d, b, err
	}
	if d.Max, err = decodeRawValue(rawMax, d.Type); err != nil {
		return d, b, err
	}
	return d, rest, nil
}

func decodeReading(b []byte) (r Reading, rest []byte, err error) {
	var rawValue []byte
	rest, err = readMap(b, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keyReadingDescription:
			var rest []byte
			var err error
			r.Description, rest, err = decodeReadingDescription(b)
			return rest, err
		case keyValue:
			rest, err := skip(key, b)
			rawValue = b[:len(b)-len(rest)]
			return rest, err
		}
		return skip(key, b)
	})
	if err != nil {
		return r, b, err
	}
	r.Value, err = decodeRawValue(rawValue, r.Description.Type)
	return r, rest, err
}

func decodeSensorData(b []byte, count uint32) (Packet, []byte, error) {
	var p SensorData
	rest, err := readFields(b, count, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keySensorID:
			return readU8(key, b, (*uint8)(&p.SensorID))
		case keyName:
			return readString(key, b, &p.Name)
		case keyCalibration:
			var rest []byte
			var err error
			p.Calibration, rest, err = decodeCalibration(b)
			return rest, err
		case keyCurrentSensorData:
			return readMap(b, func(key string, b []byte) ([]byte, error) {
				switch key {
				case keySensorStatus:
					return readU8(key, b, (*uint8)(&p.Status))
				case keySensorReadings:
					if err := checkSize(key, b); err != nil {
						return b, err
					}
					n, rest, err := msgp.ReadArrayHeaderBytes(b)
					if err != nil {
						return b, malformed(key, err)
					}
					p.Readings = make([]Reading, n)
					for i := range p.Readings {
						if p.Readings[i], rest, err = decodeReading(rest); err != nil {
							return b, err
						}
					}
					return rest, nil
				}
				return skip(key, b)
			})
		}
		return skip(key, b)
	})
	if err != nil {
		return nil, b, err
	}
	return p, rest, nil
}

func decodeSensorDescription(b []byte, count uint32) (Packet, []byte, error) {
	var p SensorDescription
	rest, err := readFields(b, count, func(key string, b []byte) ([]byte, error) {
		switch key {
		case keySensorID:
			return readU8(key, b, (*uint8)(&p.SensorID))
		case keyName:
			return readString(key, b, &p.Name)
		case keyLocation:
			return readString(key, b, &p.Location)
		case keyKind:
			return readU8(key, b, (*uint8)(&p.Kind))
		case keyCalibration:
			var rest []byte
			var err error
			p.Calibration, rest, err = decodeCalibration(b)
			return rest, err
		case keyReadings:
			if err := checkSize(key, b); err != nil {
				return b, err
			}
			n, rest, err := msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return b, malformed(key, err)
			}
			p.Readings = make([]sensor.ReadingDescription, n)
			for i := range p.Readings {
				if p.Readings[i], rest, err = decodeReadingDescription(rest); err != nil {
					return b, err
				}
			}
			return rest, nil
		}
		return skip(key, b)
	})
	if err != nil {
		return nil, b, err
	}
	return p, rest, nil
}
