package comm

// DecodeState is the state of a Decoder.
type DecodeState int

const (
	// StateAwaitingData means no frame bytes are buffered.
	StateAwaitingData DecodeState = iota
	// StateProcessingFrame means a frame is partially received.
	StateProcessingFrame
	// StateCompleteFrame means a valid frame is ready in Frame.
	StateCompleteFrame
	// StateInvalidFrame means the last frame failed its checksum.
	StateInvalidFrame
)

var decodeStateNames = [...]string{"awaiting-data", "processing-frame", "complete-frame", "invalid-frame"}

// String implements fmt.Stringer.
func (s DecodeState) String() string {
	if s >= 0 && int(s) < len(decodeStateNames) {
		return decodeStateNames[s]
	}
	return "unknown"
}

// IsTerminal indicates a frame has ended, valid or not.
func (s DecodeState) IsTerminal() bool {
	return s == StateCompleteFrame || s == StateInvalidFrame
}

// Decoder assembles command frames one byte at a time. It never
// blocks and keeps no state beyond one frame.
type Decoder struct {
	state DecodeState
	buf   [FrameLength]byte
	n     int
}

// State gets the current state.
func (d *Decoder) State() DecodeState {
	return d.state
}

// Reset discards buffered bytes.
func (d *Decoder) Reset() {
	d.state, d.n = StateAwaitingData, 0
}

// Frame returns the received frame. Valid in StateCompleteFrame only.
func (d *Decoder) Frame() (f Frame) {
	if d.state != StateCompleteFrame {
		return
	}
	f.Command = CommandID(d.buf[0])
	copy(f.Args[:], d.buf[1:FrameLength-1])
	return
}

// Feed consumes one byte and returns the new state. Feeding after
// a terminal state starts a new frame.
func (d *Decoder) Feed(b byte) DecodeState {
	d.state, d.n = d.next(b)
	return d.state
}

// next is the transition function.
func (d *Decoder) next(b byte) (DecodeState, int) {
	if b == SyncByte {
		return StateAwaitingData, 0
	}
	n := d.n
	if d.state.IsTerminal() {
		n = 0
	}
	d.buf[n] = b
	n++
	if n < FrameLength {
		return StateProcessingFrame, n
	}
	if Checksum(d.buf[:FrameLength-1]) != d.buf[FrameLength-1] {
		return StateInvalidFrame, n
	}
	return StateCompleteFrame, n
}
