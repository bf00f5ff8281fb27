// Package adb drives the CNXN/AUTH/STLS connection handshake and owns the
// single reader/writer goroutines that feed pkg/stream's Mux (Spec Section
// 4.4, Section 5).
package adb

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/riftlabs/adbwire/pkg/cryptoutil"
	"github.com/riftlabs/adbwire/pkg/pairing"
	"github.com/riftlabs/adbwire/pkg/stream"
	"github.com/riftlabs/adbwire/pkg/wire"
)

// writeRequest is one entry in the Connection's writer queue: a packet to
// encode plus a place to report the outcome, following the teacher's
// request/response channel idiom for serializing a single writer goroutine.
type writeRequest struct {
	cmd     wire.Command
	arg0    uint32
	arg1    uint32
	payload []byte
	done    chan error
}

// Connection drives one ADB wire-protocol connection end to end: the
// CNXN/AUTH/STLS handshake, then the OPEN/OKAY/WRTE/CLSE stream traffic
// delegated to a *stream.Mux. All reads happen on one goroutine started by
// Connect; all writes are serialized through writeCh onto a single writer
// goroutine, so Connection itself is the PacketSender pkg/stream consumes.
type Connection struct {
	config Config
	log    logging.LeveledLogger

	writeCh chan writeRequest
	stopCh  chan struct{}

	mu             sync.Mutex
	state          connState
	peerVersion    uint32
	peerMaxPayload uint32
	features       map[string]struct{}
	legacyChecksum bool
	authRounds     int

	reader *wire.Reader
	writer *wire.Writer

	mux *stream.Mux

	readyCh   chan error // buffered 1; signaled once when Ready or failed
	closeOnce sync.Once
	closeErr  error
}

// New creates a Connection over config.Transport. Call Connect to drive the
// handshake.
func New(config Config) *Connection {
	log := logging.NewDefaultLoggerFactory().NewLogger("adb")
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("adb")
	}
	if config.MaxPayload == 0 {
		config.MaxPayload = wire.MaxPayload
	}
	if config.TrustAnchor == nil {
		config.TrustAnchor = pairing.AlwaysTrust{}
	}
	c := &Connection{
		config:  config,
		log:     log,
		writeCh: make(chan writeRequest, 8),
		stopCh:  make(chan struct{}),
		state:   stateInit,
		reader:  wire.NewReader(config.Transport, config.MaxPayload, false),
		writer:  wire.NewWriter(config.Transport, false),
		readyCh: make(chan error, 1),
	}
	go c.writeLoop()
	return c
}

// writeLoop is the single writer goroutine: every outbound packet, whether
// a handshake message or stream traffic routed through SendPacket, is
// encoded here and nowhere else (Spec Section 5). handleCnxn and handleStls
// swap c.writer under c.mu as the checksum policy and transport change;
// writeLoop always picks up the current one. It drains on stopCh rather than
// on writeCh being closed, so SendPacket never races a send against a closed
// channel.
func (c *Connection) writeLoop() {
	for {
		select {
		case req := <-c.writeCh:
			c.mu.Lock()
			w := c.writer
			c.mu.Unlock()
			req.done <- w.WritePacket(req.cmd, req.arg0, req.arg1, req.payload)
		case <-c.stopCh:
			return
		}
	}
}

// SendPacket implements stream.PacketSender, funneling Mux traffic through
// the same writer goroutine the handshake uses.
func (c *Connection) SendPacket(cmd wire.Command, arg0, arg1 uint32, payload []byte) error {
	done := make(chan error, 1)
	select {
	case c.writeCh <- writeRequest{cmd: cmd, arg0: arg0, arg1: arg1, payload: payload, done: done}:
	case <-c.stopCh:
		return ErrTransportClosed
	}
	select {
	case err := <-done:
		return err
	case <-c.stopCh:
		return ErrTransportClosed
	}
}

// Connect sends the initial CNXN and blocks until the handshake reaches
// Ready, is rejected, times out, or the transport fails.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.state != stateInit {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = stateSentCnxn
	c.mu.Unlock()

	go c.readLoop()

	banner := buildHostBanner(c.config.SystemIdentity, c.config.Features)
	if err := c.SendPacket(wire.CNXN, wire.ProtocolVersion, c.config.MaxPayload, banner); err != nil {
		c.fail(err)
		return err
	}

	if c.config.HandshakeTimeout <= 0 {
		return <-c.readyCh
	}
	select {
	case err := <-c.readyCh:
		return err
	case <-time.After(c.config.HandshakeTimeout):
		c.fail(ErrHandshakeTimeout)
		return ErrHandshakeTimeout
	}
}

// readLoop is the single reader goroutine: it owns c.reader and is the only
// caller of handlePacket and Mux.Dispatch (Spec Section 5).
func (c *Connection) readLoop() {
	for {
		p, err := c.reader.ReadPacket()
		if err != nil {
			c.fail(err)
			return
		}
		if err := c.handlePacket(p); err != nil {
			c.fail(err)
			return
		}
	}
}

// handlePacket steps the handshake state machine, or forwards to the Mux
// once the connection is Ready (Spec Section 4.4's state table).
func (c *Connection) handlePacket(p *wire.Packet) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == stateReady {
		return c.mux.Dispatch(p)
	}

	switch p.Command {
	case wire.CNXN:
		return c.handleCnxn(p)
	case wire.STLS:
		return c.handleStls(p)
	case wire.AUTH:
		return c.handleAuth(p)
	default:
		return ErrProtocolError
	}
}

// handleCnxn finalizes the handshake: negotiate the payload ceiling and
// checksum policy, parse the device's feature set, build the Mux, and
// unblock Connect (any pre-Ready state may receive CNXN, per the state
// table's "any -> CNXN -> Ready").
func (c *Connection) handleCnxn(p *wire.Packet) error {
	c.mu.Lock()
	c.peerVersion = p.Arg0
	c.peerMaxPayload = p.Arg1
	c.features = parseDeviceBanner(p.Payload)
	c.legacyChecksum = c.peerVersion <= wire.LegacyChecksumVersionBoundary

	maxPayload := c.config.MaxPayload
	if c.peerMaxPayload != 0 && c.peerMaxPayload < maxPayload {
		maxPayload = c.peerMaxPayload
	}
	c.reader = wire.NewReader(c.config.Transport, maxPayload, c.legacyChecksum)
	c.writer = wire.NewWriter(c.config.Transport, c.legacyChecksum)
	delayedAck := negotiateDelayedAck(c.config.DelayedAck, c.features)

	c.mux = stream.NewMux(stream.Config{
		Sender:        c,
		MaxPayload:    maxPayload,
		DelayedAck:    delayedAck,
		InitialCredit: c.config.InitialCredit,
		LoggerFactory: c.config.LoggerFactory,
	})
	c.state = stateReady
	c.mu.Unlock()

	c.log.Infof("connection ready (peer version=%#x, max payload=%d, delayed_ack=%v)",
		c.peerVersion, maxPayload, delayedAck)

	c.readyCh <- nil
	return nil
}

// handleStls upgrades the transport to TLS in place. It runs synchronously
// on the reader goroutine: the STLS acknowledgement is sent and awaited
// first so no other write races the handshake bytes, then UpgradeTLS reads
// and writes the raw connection directly until it completes (Spec Section
// 4.4 "STLS").
func (c *Connection) handleStls(p *wire.Packet) error {
	c.mu.Lock()
	if c.state != stateSentCnxn {
		c.mu.Unlock()
		return ErrProtocolError
	}
	c.state = stateTLSUpgrading
	c.mu.Unlock()

	if err := c.SendPacket(wire.STLS, wire.ProtocolVersion, 0, nil); err != nil {
		return err
	}

	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	tlsConfig.InsecureSkipVerify = true
	anchor := c.config.TrustAnchor
	tlsConfig.VerifyConnection = func(state tls.ConnectionState) error {
		if len(state.PeerCertificates) == 0 {
			return fmt.Errorf("adb: STLS: no peer certificate presented")
		}
		if !anchor.Trusted(state.PeerCertificates[0]) {
			return fmt.Errorf("adb: STLS: peer certificate not trusted")
		}
		return nil
	}

	if err := c.config.Transport.UpgradeTLS(tlsConfig); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = stateSentCnxn
	c.reader = wire.NewReader(c.config.Transport, c.config.MaxPayload, false)
	c.writer = wire.NewWriter(c.config.Transport, false)
	c.mu.Unlock()

	banner := buildHostBanner(c.config.SystemIdentity, c.config.Features)
	return c.SendPacket(wire.CNXN, wire.ProtocolVersion, c.config.MaxPayload, banner)
}

// handleAuth drives the signature-then-key challenge/response sequence
// (Spec Section 4.3, Section 4.4's "Failures" policy of two rounds).
func (c *Connection) handleAuth(p *wire.Packet) error {
	if p.Arg0 != wire.AuthToken {
		return ErrProtocolError
	}

	c.mu.Lock()
	state := c.state
	c.authRounds++
	round := c.authRounds
	c.mu.Unlock()

	if round > maxAuthRounds {
		return ErrAuthRejected
	}

	switch state {
	case stateSentCnxn:
		return c.respondWithSignature(p.Payload)
	case stateSentSig:
		return c.respondWithPublicKey()
	case stateSentKey:
		// Device is still waiting on the user to confirm the key; the round
		// counter above already enforces the two-round bound.
		return nil
	default:
		return ErrProtocolError
	}
}

func (c *Connection) respondWithSignature(tokenPayload []byte) error {
	if len(tokenPayload) != cryptoutil.TokenSize || c.config.Key == nil {
		return ErrProtocolError
	}
	var token [cryptoutil.TokenSize]byte
	copy(token[:], tokenPayload)

	sig, err := c.config.Key.SignToken(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.state = stateSentSig
	c.mu.Unlock()

	return c.SendPacket(wire.AUTH, wire.AuthSignature, 0, sig[:])
}

func (c *Connection) respondWithPublicKey() error {
	if c.config.Key == nil {
		return ErrProtocolError
	}
	blob := c.config.Key.AndroidPublicKey().Encode()
	encoded := base64.StdEncoding.EncodeToString(blob)

	comment := c.config.KeyComment
	if comment == "" {
		comment = "adbwire"
	}
	payload := append([]byte(encoded+" "+comment), 0)

	c.mu.Lock()
	c.state = stateSentKey
	c.mu.Unlock()

	return c.SendPacket(wire.AUTH, wire.AuthRSAPublicKey, 0, payload)
}

// Supports reports whether the device advertised feature in its CNXN
// banner. Only meaningful after Connect returns successfully.
func (c *Connection) Supports(feature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.features == nil {
		return false
	}
	_, ok := c.features[feature]
	return ok
}

// State returns the connection's current handshake/lifecycle state.
func (c *Connection) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// Open opens a new multiplexed stream to destination once the connection is
// Ready (Spec Section 4.5 "Open").
func (c *Connection) Open(destination string) (*stream.Stream, error) {
	c.mu.Lock()
	mux := c.mux
	ready := c.state == stateReady
	c.mu.Unlock()
	if !ready || mux == nil {
		return nil, ErrNotReady
	}
	return mux.Open(destination)
}

// fail transitions the connection to Closed, reports a pending Connect
// caller if one is still waiting, and tears down every open stream.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	wasReady := c.state == stateReady
	c.state = stateClosed
	mux := c.mux
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.stopCh)
	})

	if !wasReady {
		select {
		case c.readyCh <- err:
		default:
		}
	}
	if mux != nil {
		mux.Close()
	}
}

// Close shuts down the connection: the transport, the writer goroutine, and
// every open stream.
func (c *Connection) Close() error {
	c.fail(ErrTransportClosed)
	return c.config.Transport.Close()
}
