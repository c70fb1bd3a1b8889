package comm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"
)

// Pump reads from a blocking reader in the background and buffers the
// bytes for a ByteSource consumer. The reader should return
// periodically (e.g. on a read timeout) so Run can observe ctx.
type Pump struct {
	Reader io.Reader
	// Limit caps the pending bytes; the oldest are dropped beyond it.
	Limit int

	lock    sync.Mutex
	pending []byte
	chunk   int
	readyCh chan struct{}
}

// NewPump creates a Pump reading up to size bytes at a time.
func NewPump(r io.Reader, size int) *Pump {
	if size < 1 {
		size = 1
	}
	return &Pump{
		Reader:  r,
		Limit:   size * 4,
		chunk:   size,
		readyCh: make(chan struct{}, 1),
	}
}

// Run reads until ctx is done, the reader reaches EOF or fails.
func (p *Pump) Run(ctx context.Context) error {
	buf := make([]byte, p.chunk)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := p.Reader.Read(buf)
		if n > 0 {
			p.put(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (p *Pump) put(b []byte) {
	glog.V(5).Infof("pump: % x", b)
	p.lock.Lock()
	p.pending = append(p.pending, b...)
	if over := len(p.pending) - p.Limit; p.Limit > 0 && over > 0 {
		glog.Warningf("pump: overflow, dropping %d bytes", over)
		p.pending = append(p.pending[:0], p.pending[over:]...)
	}
	p.lock.Unlock()
	select {
	case p.readyCh <- struct{}{}:
	default:
	}
}

// TryReadByte implements ByteSource.
func (p *Pump) TryReadByte() (byte, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.pending) == 0 {
		return 0, false
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	return b, true
}

// Buffered implements ByteSource.
func (p *Pump) Buffered() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.pending)
}

// Ready implements ByteSource.
func (p *Pump) Ready() <-chan struct{} {
	return p.readyCh
}
