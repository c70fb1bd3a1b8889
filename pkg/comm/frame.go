package comm

// Frame is a host command.
type Frame struct {
	Command CommandID
	Args    [ArgumentLength]byte
}

// NewFrame creates a Frame. Extra arguments are truncated.
func NewFrame(cmd CommandID, args ...byte) Frame {
	f := Frame{Command: cmd}
	copy(f.Args[:], args)
	return f
}

// Checksum is the low byte of the sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Bytes returns cmd, args and checksum.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLength)
	b[0] = byte(f.Command)
	copy(b[1:], f.Args[:])
	b[FrameLength-1] = Checksum(b[:FrameLength-1])
	return b
}

// Encode returns the frame with the sync prefix for sending.
func (f Frame) Encode() ([]byte, error) {
	body := f.Bytes()
	for _, b := range body {
		if b == SyncByte {
			return nil, ErrUnencodable
		}
	}
	return append([]byte{SyncByte}, body...), nil
}
