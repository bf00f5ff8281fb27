package stream

import "errors"

// Stream Mux errors (Spec Section 4.5).
var (
	// ErrStreamClosed is returned from Read/Write on a stream forced
	// Closed by an abnormal close (the owning Mux failing); a clean,
	// peer-initiated close surfaces as io.EOF from Read instead, and
	// Write continues to report ErrStreamClosed regardless of the cause.
	ErrStreamClosed = errors.New("stream: closed")

	// ErrMuxClosed is returned from Open when the owning Mux has been
	// closed.
	ErrMuxClosed = errors.New("stream: mux closed")

	// ErrBackpressureTimeout is returned when a write could not obtain
	// send credit within its configured deadline.
	ErrBackpressureTimeout = errors.New("stream: backpressure timeout")

	// ErrDeadlineExceeded is returned when a read does not complete before
	// its configured deadline.
	ErrDeadlineExceeded = errors.New("stream: read deadline exceeded")

	// ErrIDSpaceExhausted is returned by Open when every local stream ID
	// is currently in use.
	ErrIDSpaceExhausted = errors.New("stream: local id space exhausted")

	// ErrUnexpectedCommand is returned when Dispatch is handed a packet
	// whose command the Mux does not route (anything but OKAY/WRTE/CLSE).
	ErrUnexpectedCommand = errors.New("stream: unexpected command for mux dispatch")
)

// ServiceUnavailableError reports that the device closed a stream while it
// was still Opening, i.e. it refused the destination string.
type ServiceUnavailableError struct {
	Destination string
}

func (e *ServiceUnavailableError) Error() string {
	return "stream: service unavailable: " + e.Destination
}
