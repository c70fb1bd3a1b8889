package comm

import "strconv"

// Framing constants.
const (
	// SyncByte starts a frame and discards any partial frame.
	SyncByte byte = 0xFF
	// ArgumentLength is the number of argument bytes in a frame.
	ArgumentLength = 8
	// FrameLength is cmd + args + checksum.
	FrameLength = ArgumentLength + 2
	// OutputBufferSize is the default size of the packet buffer.
	OutputBufferSize = 1024
)

// CommandID identifies a host command.
type CommandID byte

// Host commands.
const (
	NoCommand             CommandID = 0x00
	GetAllSensorValues    CommandID = 0x01
	GetSensorValue        CommandID = 0x02
	GetSensorsReady       CommandID = 0x03
	CalibrateSensor       CommandID = 0x04
	GetSensorDescriptions CommandID = 0x05
)

var commandNames = map[CommandID]string{
	NoCommand:             "none",
	GetAllSensorValues:    "get-all-sensor-values",
	GetSensorValue:        "get-sensor-value",
	GetSensorsReady:       "get-sensors-ready",
	CalibrateSensor:       "calibrate-sensor",
	GetSensorDescriptions: "get-sensor-descriptions",
}

// String implements fmt.Stringer.
func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "command(0x" + strconv.FormatUint(uint64(c), 16) + ")"
}

// ResponseCode is the status of a served command.
type ResponseCode byte

// Response codes.
const (
	ResponseOK                  ResponseCode = 0x00
	ResponseSensorNotFound      ResponseCode = 0x01
	ResponseCalibrationRejected ResponseCode = 0x02
	ResponseUnknownCommand      ResponseCode = 0x03
	ResponseHeartbeat           ResponseCode = 0xFE
	ResponseControllerReady     ResponseCode = 0xFF
)

var responseNames = map[ResponseCode]string{
	ResponseOK:                  "ok",
	ResponseSensorNotFound:      "sensor-not-found",
	ResponseCalibrationRejected: "calibration-rejected",
	ResponseUnknownCommand:      "unknown-command",
	ResponseHeartbeat:           "heartbeat",
	ResponseControllerReady:     "controller-ready",
}

// String implements fmt.Stringer.
func (r ResponseCode) String() string {
	if name, ok := responseNames[r]; ok {
		return name
	}
	return "response(0x" + strconv.FormatUint(uint64(r), 16) + ")"
}

// PacketID is the discriminator at the start of every packet.
type PacketID byte

// Packet IDs.
const (
	HeaderPacket            PacketID = 0x00
	SensorDataPacket        PacketID = 0x01
	SensorDescriptionPacket PacketID = 0x02
	HeartbeatPacket         PacketID = 0xFD
	ControllerReadyPacket   PacketID = 0xFE
	TerminatorPacket        PacketID = 0xFF
)

// Map keys on the wire.
const (
	keyPacketID           = "packet_id"
	keyCommandID          = "command_id"
	keyResponseCode       = "response_code"
	keySensorID           = "sensor_id"
	keyName               = "name"
	keyLocation           = "location"
	keyKind               = "kind"
	keyCalibration        = "calibration"
	keyIsCalibratable     = "is_calibratable"
	keyCalibrationType    = "calibration_type"
	keyCalibrationMin     = "calibration_min"
	keyCalibrationMax     = "calibration_max"
	keyCurrentSensorData  = "current_sensor_data"
	keySensorStatus       = "sensor_status"
	keySensorReadings     = "sensor_readings"
	keyReadings           = "readings"
	keyReadingDescription = "reading_description"
	keyReadingID          = "reading_id"
	keyType               = "type"
	keyMinValue           = "min_value"
	keyMaxValue           = "max_value"
	keyValue              = "value"
	keyTerminatorCode     = "terminator_code"
)
