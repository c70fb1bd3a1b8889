package sensor

// Status describes the connectivity and data validity of a sensor.
type Status uint8

const (
	// StatusDisconnected means the presence check failed.
	StatusDisconnected Status = 0x00
	// StatusMalfunctioning means the sensor is present but either
	// hardware initialization or the last read failed.
	StatusMalfunctioning Status = 0x01
	// StatusNoData means the sensor is present and initialized but
	// the driver has no fresh sample yet.
	StatusNoData Status = 0x02
	// StatusValidData means the last poll produced a reading.
	StatusValidData Status = 0x03
)

var statusNames = [...]string{
	StatusDisconnected:   "Disconnected",
	StatusMalfunctioning: "Malfunctioning",
	StatusNoData:         "Connected, no data",
	StatusValidData:      "Connected, data ready",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// IsConnected indicates whether the presence check succeeded.
func (s Status) IsConnected() bool {
	return s != StatusDisconnected
}

// HasData indicates the reading is meaningful.
func (s Status) HasData() bool {
	return s == StatusValidData
}
