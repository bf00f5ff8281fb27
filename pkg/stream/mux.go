// Package stream implements the per-connection stream multiplexer: local
// stream ID allocation, OPEN/OKAY/WRTE/CLSE dispatch, and per-stream flow
// control (Spec Section 4.5).
package stream

import (
	"sync"

	"github.com/pion/logging"

	"github.com/riftlabs/adbwire/pkg/wire"
)

// PacketSender is the single-writer seam a Mux sends framed packets
// through. pkg/adb implements it with a channel-backed writer goroutine so
// that handshake packets and stream packets are serialized onto one
// Transport (Spec Section 5).
type PacketSender interface {
	SendPacket(cmd wire.Command, arg0, arg1 uint32, payload []byte) error
}

// Config configures a Mux.
type Config struct {
	// Sender serializes outbound packets onto the connection's Transport.
	// Required.
	Sender PacketSender

	// MaxPayload is the negotiated ceiling on a single WRTE's payload;
	// writes larger than this are chunked (Spec Section 4.5 "Chunking").
	MaxPayload uint32

	// DelayedAck selects byte-budget flow control (vs. the legacy
	// one-packet-in-flight scheme) for streams opened through this Mux.
	DelayedAck bool

	// InitialCredit is the byte budget granted to and requested from the
	// peer when DelayedAck is set. Ignored otherwise.
	InitialCredit uint32

	// LoggerFactory builds the Mux's logger. A nil factory falls back to
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Mux owns every stream on one Connection. A single reader goroutine
// (driven by pkg/adb) feeds it inbound packets via Dispatch; Open and
// Stream.Write may be called from any goroutine.
type Mux struct {
	config Config
	log    logging.LeveledLogger

	mu      sync.Mutex
	streams map[uint32]*Stream
	nextID  uint32
	closed  bool
}

// NewMux creates a Mux bound to sender.
func NewMux(config Config) *Mux {
	log := logging.NewDefaultLoggerFactory().NewLogger("stream")
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("stream")
	}
	return &Mux{
		config:  config,
		log:     log,
		streams: make(map[uint32]*Stream),
		nextID:  1,
	}
}

// allocateID returns an unused non-zero local stream ID, following the
// teacher's session.Table.AllocateID idiom: start at 1, skip 0, wrap on
// overflow, retry on collision, give up once every ID has been tried.
func (m *Mux) allocateID() (uint32, error) {
	start := m.nextID
	for {
		id := m.nextID
		m.nextID++
		if m.nextID == 0 {
			m.nextID = 1
		}
		if _, exists := m.streams[id]; !exists {
			return id, nil
		}
		if m.nextID == start {
			return 0, ErrIDSpaceExhausted
		}
	}
}

// Open allocates a stream, sends OPEN, and waits for the device's OKAY or
// CLSE (Spec Section 4.5 "Open").
func (m *Mux) Open(destination string) (*Stream, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMuxClosed
	}
	localID, err := m.allocateID()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s := newStream(m, localID, destination)
	m.streams[localID] = s
	m.mu.Unlock()

	arg1 := uint32(0)
	if m.config.DelayedAck {
		arg1 = m.config.InitialCredit
	}
	if err := m.config.Sender.SendPacket(wire.OPEN, localID, arg1, wire.DestinationString(destination)); err != nil {
		m.removeStream(localID)
		return nil, err
	}

	if err := <-s.openResult; err != nil {
		m.removeStream(localID)
		return nil, err
	}
	return s, nil
}

// Dispatch routes one inbound OKAY/WRTE/CLSE packet to its target stream.
// It is called exclusively from the owning Connection's single reader
// goroutine (Spec Section 4.5 "Dispatch").
func (m *Mux) Dispatch(p *wire.Packet) error {
	switch p.Command {
	case wire.OKAY:
		return m.dispatchOkay(p)
	case wire.WRTE:
		return m.dispatchWrte(p)
	case wire.CLSE:
		return m.dispatchClse(p)
	default:
		return ErrUnexpectedCommand
	}
}

func (m *Mux) dispatchOkay(p *wire.Packet) error {
	// arg1 on OKAY is the sender's local id, which is our remote id.
	localID := p.Arg1
	s := m.lookup(localID)
	if s == nil {
		return nil // legitimate race with local close
	}
	s.onOkay(p.Arg0, p.Payload)
	return nil
}

func (m *Mux) dispatchWrte(p *wire.Packet) error {
	localID := p.Arg1
	s := m.lookup(localID)
	if s == nil {
		return nil
	}
	return s.onWrte(p.Arg0, p.Payload)
}

func (m *Mux) dispatchClse(p *wire.Packet) error {
	localID := p.Arg1
	s := m.lookup(localID)
	if s == nil {
		return nil
	}
	s.onClse()
	return nil
}

func (m *Mux) lookup(localID uint32) *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[localID]
}

func (m *Mux) removeStream(localID uint32) {
	m.mu.Lock()
	delete(m.streams, localID)
	m.mu.Unlock()
}

// Close tears down every open stream, e.g. when the underlying Transport
// fails (Spec Section 4.4 "any / I/O error").
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[uint32]*Stream)
	m.mu.Unlock()

	for _, s := range streams {
		s.onMuxClosed()
	}
}
