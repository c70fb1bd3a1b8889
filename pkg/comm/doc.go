// Package comm implements the host link protocol.
package comm

// The host sends fixed-length command frames over a point-to-point
// serial link:
//
//	[0xFF] cmd(1) args(8) checksum(1)
//
// The checksum is the low byte of the sum of cmd and args. 0xFF never
// appears inside a frame; receiving it restarts framing, so the host
// can resynchronize at any time without a timeout.
//
// The controller answers with MessagePack encoded packets: a Header,
// zero or more SensorData or SensorDescription packets, then a
// Terminator carrying the command ID that was served. Unsolicited
// Heartbeat and ControllerReady packets are each followed by their
// own Terminator.
//
// Producer: sensor controller
// Consumer: host
