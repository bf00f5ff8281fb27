package stream

import (
	"io"
	"sync"
	"time"

	"github.com/pion/transport/v3/deadline"

	"github.com/riftlabs/adbwire/pkg/wire"
)

// State is a Stream's lifecycle state (Spec Section 3 "Stream").
type State int

const (
	Opening State = iota
	Open
	HalfClosedLocal
	HalfClosedRemote
	Closed
)

// String returns the state name, used in log lines.
func (s State) String() string {
	switch s {
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case HalfClosedLocal:
		return "HalfClosedLocal"
	case HalfClosedRemote:
		return "HalfClosedRemote"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Stream is one multiplexed logical byte-stream ("asocket") over a
// Connection's Transport, identified by (localID, remoteID).
type Stream struct {
	mux         *Mux
	localID     uint32
	destination string

	openResult chan error // buffered 1; signaled once by onOkay/onClse while Opening

	mu       sync.Mutex
	state    State
	remoteID uint32

	// outbound flow control. Without delayed_ack, sendCredit is 0 or 1 and
	// models "at most one WRTE in flight". With delayed_ack, it is a byte
	// budget (Spec Section 4.5 "Write flow control").
	sendCredit   int64
	creditWaitCh chan struct{} // closed and replaced whenever sendCredit grows

	// inbound queue, drained by Read.
	inbox     [][]byte
	inboxWait chan struct{} // closed and replaced whenever the inbox or remoteEOF changes
	remoteEOF bool
	closeErr  error // non-nil only for an abnormal close (onMuxClosed); nil means a clean peer CLSE

	// Stream has no file descriptor of its own, so per-call deadlines are
	// implemented with pion's cancelable-deadline helper rather than
	// net.Conn's kernel-backed one.
	readDeadline  *deadline.Deadline
	writeDeadline *deadline.Deadline
}

func newStream(m *Mux, localID uint32, destination string) *Stream {
	s := &Stream{
		mux:           m,
		localID:       localID,
		destination:   destination,
		state:         Opening,
		openResult:    make(chan error, 1),
		creditWaitCh:  make(chan struct{}),
		inboxWait:     make(chan struct{}),
		readDeadline:  deadline.New(),
		writeDeadline: deadline.New(),
	}
	if !m.config.DelayedAck {
		s.sendCredit = 0 // no WRTE may be sent until the first OKAY arrives
	} else {
		s.sendCredit = int64(m.config.InitialCredit)
	}
	return s
}

// SetReadDeadline arms a cancelable deadline on future Read calls.
func (s *Stream) SetReadDeadline(t time.Time) error {
	s.readDeadline.Set(t)
	return nil
}

// SetWriteDeadline arms a cancelable deadline on future Write calls; a
// write that cannot obtain send credit before the deadline fails with
// ErrBackpressureTimeout (Spec Section 4.5 "Failure modes").
func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.writeDeadline.Set(t)
	return nil
}

// LocalID returns the stream's local identifier.
func (s *Stream) LocalID() uint32 { return s.localID }

// Destination returns the destination string the stream was opened with.
func (s *Stream) Destination() string { return s.destination }

// State returns the stream's current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// onOkay handles an inbound OKAY addressed to this stream.
func (s *Stream) onOkay(remoteID uint32, payload []byte) {
	s.mu.Lock()
	wasOpening := s.state == Opening
	if wasOpening {
		s.remoteID = remoteID
		if s.state == Opening {
			s.state = Open
		}
	}
	if s.mux.config.DelayedAck && len(payload) >= 4 {
		s.sendCredit += int64(wire.Uint32LE(payload))
	} else if !s.mux.config.DelayedAck {
		s.sendCredit = 1
	}
	s.signalCreditLocked()
	s.mu.Unlock()

	if wasOpening {
		s.openResult <- nil
	}
}

// onWrte handles inbound data, enqueues it, and acknowledges it.
func (s *Stream) onWrte(remoteID uint32, payload []byte) error {
	s.mu.Lock()
	if s.state == Closed || s.state == HalfClosedRemote {
		s.mu.Unlock()
		return nil // Spec: "inbound packets addressed to a closed local-id are silently dropped"
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.inbox = append(s.inbox, buf)
	s.signalInboxLocked()
	s.mu.Unlock()

	arg1 := uint32(0)
	if s.mux.config.DelayedAck {
		arg1 = uint32(len(payload))
	}
	return s.mux.config.Sender.SendPacket(wire.OKAY, s.localID, remoteID, optionalCredit(s.mux.config.DelayedAck, arg1))
}

func optionalCredit(delayedAck bool, n uint32) []byte {
	if !delayedAck {
		return nil
	}
	buf := make([]byte, 4)
	wire.PutUint32LE(buf, n)
	return buf
}

// onClse handles an inbound CLSE addressed to this stream.
func (s *Stream) onClse() {
	s.mu.Lock()
	wasOpening := s.state == Opening
	switch s.state {
	case Opening:
		s.state = Closed
	case Open:
		s.state = HalfClosedRemote
	case HalfClosedLocal:
		s.state = Closed
	}
	terminal := s.state == Closed
	s.remoteEOF = true
	s.signalInboxLocked()
	s.mu.Unlock()

	if wasOpening {
		s.openResult <- &ServiceUnavailableError{Destination: s.destination}
	}
	if terminal {
		s.mux.removeStream(s.localID)
	}
}

// onMuxClosed forces the stream to Closed when the owning Mux shuts down,
// e.g. on a Transport I/O error (Spec Section 4.4 "any / I/O error").
func (s *Stream) onMuxClosed() {
	s.mu.Lock()
	wasOpening := s.state == Opening
	s.state = Closed
	s.remoteEOF = true
	s.closeErr = ErrStreamClosed
	s.signalInboxLocked()
	s.mu.Unlock()
	if wasOpening {
		s.openResult <- ErrMuxClosed
	}
}

func (s *Stream) signalCreditLocked() {
	close(s.creditWaitCh)
	s.creditWaitCh = make(chan struct{})
}

func (s *Stream) signalInboxLocked() {
	close(s.inboxWait)
	s.inboxWait = make(chan struct{})
}

// Read drains inbound data, blocking until data arrives, the stream is
// closed by the peer, both halves are closed, or the read deadline expires.
// A clean end of stream (peer CLSE) is reported as io.EOF, matching the
// io.Reader contract expected by callers like io.Copy; ErrStreamClosed is
// reserved for an abnormal close (e.g. the owning Mux failing).
func (s *Stream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.inbox) > 0 {
			head := s.inbox[0]
			n := copy(p, head)
			if n == len(head) {
				s.inbox = s.inbox[1:]
			} else {
				s.inbox[0] = head[n:]
			}
			s.mu.Unlock()
			return n, nil
		}
		if s.remoteEOF || s.state == Closed {
			err := s.closeErr
			s.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		wait := s.inboxWait
		s.mu.Unlock()

		select {
		case <-wait:
		case <-s.readDeadline.Done():
			return 0, ErrDeadlineExceeded
		}
	}
}

// Write sends data to the peer, chunked to the negotiated max payload and
// flow-controlled against send credit (Spec Section 4.5 "Chunking",
// "Write flow control").
func (s *Stream) Write(p []byte) (int, error) {
	maxChunk := int(s.mux.config.MaxPayload)
	if maxChunk <= 0 {
		maxChunk = int(wire.MaxPayload)
	}
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		n, err := s.writeChunk(chunk)
		total += n
		if err != nil {
			return total, err
		}
		p = p[len(chunk):]
	}
	return total, nil
}

func (s *Stream) writeChunk(chunk []byte) (int, error) {
	remoteID, err := s.awaitSendCredit(int64(len(chunk)))
	if err != nil {
		return 0, err
	}
	if err := s.mux.config.Sender.SendPacket(wire.WRTE, s.localID, remoteID, chunk); err != nil {
		return 0, err
	}
	return len(chunk), nil
}

// awaitSendCredit blocks until enough send credit is available, consumes
// it, and returns the stream's current remote ID.
func (s *Stream) awaitSendCredit(need int64) (uint32, error) {
	for {
		s.mu.Lock()
		switch s.state {
		case Closed, HalfClosedLocal:
			s.mu.Unlock()
			return 0, ErrStreamClosed
		}
		if s.mux.config.DelayedAck {
			if s.sendCredit >= need {
				s.sendCredit -= need
				remoteID := s.remoteID
				s.mu.Unlock()
				return remoteID, nil
			}
		} else if s.sendCredit > 0 {
			s.sendCredit = 0
			remoteID := s.remoteID
			s.mu.Unlock()
			return remoteID, nil
		}
		wait := s.creditWaitCh
		s.mu.Unlock()
		select {
		case <-wait:
		case <-s.writeDeadline.Done():
			return 0, ErrBackpressureTimeout
		}
	}
}

// Close sends CLSE (if not already sent) and transitions to
// HalfClosedLocal or Closed (Spec Section 4.5 "Close").
func (s *Stream) Close() error {
	s.mu.Lock()
	switch s.state {
	case Closed, HalfClosedLocal:
		s.mu.Unlock()
		return nil
	}
	remoteID := s.remoteID
	if s.state == HalfClosedRemote {
		s.state = Closed
	} else {
		s.state = HalfClosedLocal
	}
	terminal := s.state == Closed
	s.signalInboxLocked()
	s.mu.Unlock()

	err := s.mux.config.Sender.SendPacket(wire.CLSE, s.localID, remoteID, nil)
	if terminal {
		s.mux.removeStream(s.localID)
	}
	return err
}
