package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch indicates a frame failed checksum validation.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnencodable indicates a frame contains the sync byte and
	// can't be sent.
	ErrUnencodable = errors.New("frame contains sync byte")
	// ErrBufferTooSmall indicates the packet doesn't fit the buffer.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrUnsupported indicates a value can't be encoded.
	ErrUnsupported = errors.New("unsupported value")
	// ErrMalformedPacket indicates a received packet can't be decoded.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrNoReply indicates the controller didn't answer in time.
	ErrNoReply = errors.New("no reply")
)

// CommandError wraps a non-OK response code.
type CommandError struct {
	Command CommandID
	Code    ResponseCode
}

// Error implements error.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%v: %v", e.Command, e.Code)
}
