package bus

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrTimeout indicates the transaction didn't finish in time.
	ErrTimeout = errors.New("timeout")
	// ErrIO indicates the peripheral reported an error (e.g. NACK).
	ErrIO = errors.New("i/o error")
	// ErrIncomplete indicates fewer bytes were transferred than requested.
	ErrIncomplete = errors.New("incomplete transfer")
	// ErrCommandFailed indicates the request can't be issued, e.g.
	// selecting a channel without a multiplexer.
	ErrCommandFailed = errors.New("command failed")
	// ErrClosed indicates the session has no open transport.
	ErrClosed = errors.New("bus closed")
)

// Error describes a failed bus operation.
type Error struct {
	Op   string
	Addr uint8
	// Kind is one of ErrTimeout, ErrIO, ErrIncomplete, ErrCommandFailed.
	Kind error
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("bus %s 0x%02x: %v", e.Op, e.Addr, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Result is the classified outcome of a transaction.
type Result int

// Transaction outcomes.
const (
	ResultOK Result = iota
	ResultTimeout
	ResultIOError
	ResultIncomplete
	ResultCommandFailed
)

var resultNames = [...]string{"ok", "timeout", "io-error", "incomplete", "command-failed"}

// String implements fmt.Stringer.
func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown"
}

// ResultOf classifies an error returned by a Session.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrTimeout):
		return ResultTimeout
	case errors.Is(err, ErrIncomplete):
		return ResultIncomplete
	case errors.Is(err, ErrCommandFailed):
		return ResultCommandFailed
	}
	return ResultIOError
}

type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

func classify(op string, addr uint8, n, want int, err error) error {
	if err != nil {
		kind := ErrIO
		if isTimeout(err) {
			kind = ErrTimeout
		}
		if err == kind {
			err = nil
		}
		return &Error{Op: op, Addr: addr, Kind: kind, Err: err}
	}
	if n < want {
		return &Error{Op: op, Addr: addr, Kind: ErrIncomplete, Err: fmt.Errorf("%d of %d bytes", n, want)}
	}
	return nil
}
