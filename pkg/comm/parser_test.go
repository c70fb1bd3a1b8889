package comm

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type decoderTestStep struct {
	in    []byte
	state DecodeState
	frame *Frame
}

type decoderTestSequenceBuilder struct {
	steps []decoderTestStep
}

func decoderSequences() *decoderTestSequenceBuilder {
	return &decoderTestSequenceBuilder{}
}

func (b *decoderTestSequenceBuilder) on(state DecodeState, in ...byte) *decoderTestSequenceBuilder {
	b.steps = append(b.steps, decoderTestStep{in: in, state: state})
	return b
}

func (b *decoderTestSequenceBuilder) partial(in ...byte) *decoderTestSequenceBuilder {
	return b.on(StateProcessingFrame, in...)
}

func (b *decoderTestSequenceBuilder) sync() *decoderTestSequenceBuilder {
	return b.on(StateAwaitingData, SyncByte)
}

func (b *decoderTestSequenceBuilder) complete(f Frame) *decoderTestSequenceBuilder {
	b.steps = append(b.steps, decoderTestStep{in: f.Bytes(), state: StateCompleteFrame, frame: &f})
	return b
}

func (b *decoderTestSequenceBuilder) invalid(in ...byte) *decoderTestSequenceBuilder {
	return b.on(StateInvalidFrame, in...)
}

func (b *decoderTestSequenceBuilder) build() []decoderTestStep {
	return b.steps
}

func corrupt(f Frame) []byte {
	b := f.Bytes()
	b[FrameLength-1]++
	return b
}

func TestDecoder(t *testing.T) {
	getAll := NewFrame(GetAllSensorValues)
	get3 := NewFrame(GetSensorValue, 3)
	testCases := []struct {
		name  string
		steps []decoderTestStep
	}{
		{
			name:  "frame without sync",
			steps: decoderSequences().complete(getAll).build(),
		},
		{
			name:  "frame after sync",
			steps: decoderSequences().sync().complete(get3).build(),
		},
		{
			name: "back to back frames",
			steps: decoderSequences().
				sync().complete(getAll).
				complete(get3).
				sync().complete(getAll).
				build(),
		},
		{
			name: "sync discards partial frame",
			steps: decoderSequences().
				partial(0x02, 0x01, 0x00).
				sync().
				complete(get3).
				build(),
		},
		{
			name: "bad checksum then recover",
			steps: decoderSequences().
				invalid(corrupt(get3)...).
				sync().complete(get3).
				build(),
		},
		{
			name: "frame after invalid frame without sync",
			steps: decoderSequences().
				invalid(corrupt(getAll)...).
				complete(getAll).
				build(),
		},
		{
			name: "repeated sync",
			steps: decoderSequences().
				sync().sync().sync().
				complete(getAll).
				build(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var d Decoder
			for n, s := range tc.steps {
				var state DecodeState
				for i, b := range s.in {
					state = d.Feed(b)
					if i+1 < len(s.in) {
						require.Equal(t, StateProcessingFrame, state, fmt.Sprintf("step %d byte %d", n, i))
					}
				}
				require.Equal(t, s.state, state, fmt.Sprintf("step %d", n))
				if s.frame != nil {
					require.Equal(t, *s.frame, d.Frame())
				}
			}
		})
	}
}

func randomFrame(r *rand.Rand) Frame {
	for {
		f := Frame{Command: CommandID(r.Intn(0xff))}
		for i := range f.Args {
			f.Args[i] = byte(r.Intn(0xff))
		}
		if _, err := f.Encode(); err == nil {
			return f
		}
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		f := randomFrame(r)
		encoded, err := f.Encode()
		require.NoError(t, err)
		var d Decoder
		completes := 0
		for _, b := range encoded {
			if d.Feed(b) == StateCompleteFrame {
				completes++
			}
		}
		require.Equal(t, 1, completes)
		require.Equal(t, f, d.Frame())
	}
}

func TestDecoderResyncAtAnyPosition(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		first, second := randomFrame(r), randomFrame(r)
		for pos := 0; pos < FrameLength; pos++ {
			var d Decoder
			for _, b := range first.Bytes()[:pos] {
				d.Feed(b)
			}
			require.Equal(t, StateAwaitingData, d.Feed(SyncByte))
			var state DecodeState
			for _, b := range second.Bytes() {
				state = d.Feed(b)
			}
			require.Equal(t, StateCompleteFrame, state)
			require.Equal(t, second, d.Frame())
		}
	}
}

func TestDecoderRejectsSingleBitFlips(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		f := randomFrame(r)
		for pos := 0; pos < FrameLength; pos++ {
			for bit := 0; bit < 8; bit++ {
				b := f.Bytes()
				b[pos] ^= 1 << uint(bit)
				var d Decoder
				d.Feed(SyncByte)
				for _, v := range b {
					require.NotEqual(t, StateCompleteFrame, d.Feed(v))
				}
				if b[pos] != SyncByte {
					require.Equal(t, StateInvalidFrame, d.State())
				}
			}
		}
	}
}

func TestDecoderFrameOnlyWhenComplete(t *testing.T) {
	var d Decoder
	d.Feed(byte(GetSensorValue))
	require.Equal(t, Frame{}, d.Frame())
	d.Reset()
	require.Equal(t, StateAwaitingData, d.State())
}

func TestFrameEncode(t *testing.T) {
	encoded, err := NewFrame(GetSensorValue, 2).Encode()
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0x02, 0x02, 0, 0, 0, 0, 0, 0, 0, 0x04}, encoded)

	_, err = NewFrame(GetSensorValue, 0xff).Encode()
	require.ErrorIs(t, err, ErrUnencodable)

	_, err = NewFrame(GetSensorValue, 0xfd).Encode()
	require.ErrorIs(t, err, ErrUnencodable, "checksum 0xff can't be sent")
}
