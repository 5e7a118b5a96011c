// Package errs defines the structured error type the ring engine, pool and
// lifecycle code surface, modeled on the error-kind taxonomy of spec §7:
// QueueFull, BufExhausted, RxFrameError, BusError and InitFailed.
package errs

import "fmt"

// Code categorizes an Error the way callers are expected to branch on.
type Code string

const (
	// QueueFull is returned when a TX admission check fails; the caller
	// must retry after draining completions or back off.
	QueueFull Code = "queue_full"
	// BufExhausted is returned when the buffer pool has no buffer to
	// hand out and the lazy overflow allocation also failed.
	BufExhausted Code = "buf_exhausted"
	// RxFrameError marks a delivered RX frame that carried a non-zero
	// hardware error flag.
	RxFrameError Code = "rx_frame_error"
	// BusError is a fatal condition reported through the MAC's
	// interrupt-cause register; the driver must be re-initialized.
	BusError Code = "bus_error"
	// InitFailed marks a failure during driver construction (§4.7); the
	// caller should inspect Inner for the step that failed.
	InitFailed Code = "init_failed"
)

// Error is the structured error every exported entry point in this module
// returns instead of a bare error string, so callers can branch with
// errors.Is against the sentinels below or inspect the ring/op that failed.
type Error struct {
	// Op names the failing operation, e.g. "ring.TxPut", "pool.Alloc".
	Op string
	// Ring is "tx", "rx" or "" when the error is not ring-specific.
	Ring string
	Code Code
	// Inner wraps the underlying cause, if any.
	Inner error
}

func (e *Error) Error() string {
	if e.Ring != "" {
		if e.Inner != nil {
			return fmt.Sprintf("ethring: %s (%s/%s): %v", e.Op, e.Ring, e.Code, e.Inner)
		}
		return fmt.Sprintf("ethring: %s (%s/%s)", e.Op, e.Ring, e.Code)
	}
	if e.Inner != nil {
		return fmt.Sprintf("ethring: %s (%s): %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("ethring: %s (%s)", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is(err, errs.ErrQueueFull) and similar sentinel
// comparisons, matching purely on Code.
func (e *Error) Is(target error) bool {
	if s, ok := target.(sentinel); ok {
		return e.Code == Code(s)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New constructs an Error for the given operation.
func New(op string, ring string, code Code, inner error) *Error {
	return &Error{Op: op, Ring: ring, Code: code, Inner: inner}
}

type sentinel Code

func (s sentinel) Error() string { return string(s) }

// Sentinels usable with errors.Is against any *Error carrying the matching
// Code, regardless of Op/Ring/Inner.
var (
	ErrQueueFull    error = sentinel(QueueFull)
	ErrBufExhausted error = sentinel(BufExhausted)
	ErrRxFrameError error = sentinel(RxFrameError)
	ErrBusError     error = sentinel(BusError)
	ErrInitFailed   error = sentinel(InitFailed)
)
