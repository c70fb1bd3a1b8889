package comm

import "github.com/autobloomer/sensorcore/pkg/sensor"

// Packet is a message sent from the controller to the host.
type Packet interface {
	PacketID() PacketID
	// AppendMsg appends the MessagePack encoding to b.
	AppendMsg(b []byte) ([]byte, error)

	encode(e encoder) encoder
}

// Header starts the response to a command.
type Header struct {
	Command  CommandID
	Response ResponseCode
}

// PacketID implements Packet.
func (Header) PacketID() PacketID { return HeaderPacket }

// AppendMsg implements Packet.
func (p Header) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (p Header) encode(e encoder) encoder {
	e.headerFields(HeaderPacket, p.Command, p.Response)
	return e
}

// Heartbeat is sent periodically while the host is idle.
type Heartbeat struct{}

// PacketID implements Packet.
func (Heartbeat) PacketID() PacketID { return HeartbeatPacket }

// AppendMsg implements Packet.
func (p Heartbeat) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (Heartbeat) encode(e encoder) encoder {
	e.headerFields(HeartbeatPacket, NoCommand, ResponseHeartbeat)
	return e
}

// ControllerReady announces the controller is serving commands.
type ControllerReady struct{}

// PacketID implements Packet.
func (ControllerReady) PacketID() PacketID { return ControllerReadyPacket }

// AppendMsg implements Packet.
func (p ControllerReady) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (ControllerReady) encode(e encoder) encoder {
	e.headerFields(ControllerReadyPacket, NoCommand, ResponseControllerReady)
	return e
}

// Terminator ends a multi-packet response. Code is the command ID
// served, or the packet ID of an unsolicited packet.
type Terminator struct {
	Code byte
}

// TerminatorFor creates the Terminator of a command response.
func TerminatorFor(cmd CommandID) Terminator {
	return Terminator{Code: byte(cmd)}
}

// PacketID implements Packet.
func (Terminator) PacketID() PacketID { return TerminatorPacket }

// AppendMsg implements Packet.
func (p Terminator) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (p Terminator) encode(e encoder) encoder {
	e.mapHeader(2)
	e.packetID(TerminatorPacket)
	e.str(keyTerminatorCode)
	e.uint(uint64(p.Code))
	return e
}

// Reading is one reported value with its description.
type Reading struct {
	Description sensor.ReadingDescription
	Value       sensor.Value
}

// SensorData reports the current state of a sensor.
type SensorData struct {
	SensorID    sensor.ID
	Name        string
	Status      sensor.Status
	Calibration *sensor.CalibrationParams
	Readings    []Reading
}

// NewSensorData builds SensorData from a snapshot entry.
func NewSensorData(entry *sensor.Entry, calibration *sensor.CalibrationParams) SensorData {
	descs, values := sensor.Descriptions(entry.Kind), entry.Values()
	p := SensorData{
		SensorID:    entry.ID,
		Name:        entry.Name,
		Status:      entry.Status,
		Calibration: calibration,
		Readings:    make([]Reading, len(descs)),
	}
	for n, desc := range descs {
		p.Readings[n].Description = desc
		if n < len(values) {
			p.Readings[n].Value = values[n]
		} else {
			p.Readings[n].Value = sensor.Value{Type: desc.Type}
		}
	}
	return p
}

// PacketID implements Packet.
func (SensorData) PacketID() PacketID { return SensorDataPacket }

// AppendMsg implements Packet.
func (p SensorData) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (p SensorData) encode(e encoder) encoder {
	e.mapHeader(5)
	e.packetID(SensorDataPacket)
	e.str(keySensorID)
	e.uint(uint64(p.SensorID))
	e.str(keyName)
	e.str(p.Name)
	e.str(keyCalibration)
	e.calibration(p.Calibration)
	e.str(keyCurrentSensorData)
	e.mapHeader(2)
	e.str(keySensorStatus)
	e.uint(uint64(p.Status))
	e.str(keySensorReadings)
	e.arrayHeader(uint32(len(p.Readings)))
	for n := range p.Readings {
		r := &p.Readings[n]
		if r.Value.Type != r.Description.Type {
			e.fail(ErrUnsupported)
			return e
		}
		e.mapHeader(2)
		e.str(keyReadingDescription)
		e.readingDescription(&r.Description)
		e.str(keyValue)
		e.value(r.Value)
	}
	return e
}

// SensorDescription describes a sensor and its readings without values.
type SensorDescription struct {
	SensorID    sensor.ID
	Name        string
	Location    string
	Kind        sensor.Kind
	Calibration *sensor.CalibrationParams
	Readings    []sensor.ReadingDescription
}

// NewSensorDescription builds a SensorDescription from a definition.
func NewSensorDescription(def *sensor.Definition) SensorDescription {
	calibration := def.Calibration
	return SensorDescription{
		SensorID:    def.ID,
		Name:        def.Name,
		Location:    def.Location,
		Kind:        def.Kind,
		Calibration: &calibration,
		Readings:    sensor.Descriptions(def.Kind),
	}
}

// PacketID implements Packet.
func (SensorDescription) PacketID() PacketID { return SensorDescriptionPacket }

// AppendMsg implements Packet.
func (p SensorDescription) AppendMsg(b []byte) ([]byte, error) { return appendMsg(b, p) }

func (p SensorDescription) encode(e encoder) encoder {
	e.mapHeader(7)
	e.packetID(SensorDescriptionPacket)
	e.str(keySensorID)
	e.uint(uint64(p.SensorID))
	e.str(keyName)
	e.str(p.Name)
	e.str(keyLocation)
	e.str(p.Location)
	e.str(keyKind)
	e.uint(uint64(p.Kind))
	e.str(keyCalibration)
	e.calibration(p.Calibration)
	e.str(keyReadings)
	e.arrayHeader(uint32(len(p.Readings)))
	for n := range p.Readings {
		e.readingDescription(&p.Readings[n])
	}
	return e
}

// AppendValue encodes a bare value, as used in calibration arguments.
func AppendValue(b []byte, v sensor.Value) ([]byte, error) {
	e := encoder{b: b}
	e.value(v)
	return e.b, e.err
}

func appendMsg(b []byte, p Packet) ([]byte, error) {
	e := p.encode(encoder{b: b})
	return e.b, e.err
}

// Encode writes one packet into buf and returns the bytes used. It
// never grows buf: encoding stops at the first item that doesn't fit.
// On error the contents of buf must not be sent.
func Encode(buf []byte, p Packet) (int, error) {
	e := p.encode(encoder{b: buf[:0:len(buf)], fixed: true})
	if e.err != nil {
		return 0, e.err
	}
	return len(e.b), nil
}
