// Package transport carries the raw ADB byte stream between client and
// device: a plain TCP dial for the emulator/adb-server path, or an
// already-established socket handed in by a USB bridge (Spec Section 4.2).
// It also owns the STLS mid-stream upgrade to TLS (Spec Section 4.4).
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"
)

// Transport is the byte-stream abstraction pkg/adb and pkg/wire read and
// write framed packets over. A Transport is not safe for concurrent Write
// calls from more than one goroutine; pkg/adb serializes all outbound
// packets through a single writer goroutine (Spec Section 5).
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// SetDeadline arms a cancelable deadline on the next Read/Write calls,
	// following the net.Conn convention. A zero Time clears the deadline.
	SetDeadline(t time.Time) error

	// UpgradeTLS performs the STLS handshake upgrade in place: everything
	// read or written after it returns is carried inside the TLS record
	// layer over the same underlying connection (Spec Section 4.4). It may
	// only be called once per Transport.
	UpgradeTLS(config *tls.Config) error
}

// TCP is a Transport backed by a net.Conn, grounded on the teacher's
// tcpConn wrapper. Dialing, framing and TLS upgrade all share the same
// underlying net.Conn, so UpgradeTLS simply swaps the conn field.
type TCP struct {
	conn      net.Conn
	tlsUpgrad bool
}

// DialTCP opens a TCP connection to addr (host:port), as used for the
// "adb connect" / emulator console path.
func DialTCP(addr string) (*TCP, error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCP(conn), nil
}

// NewTCP wraps an already-established net.Conn, e.g. one handed in by a USB
// transport bridge or accepted from a listener in tests.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *TCP) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *TCP) Close() error                { return t.conn.Close() }

func (t *TCP) SetDeadline(d time.Time) error { return t.conn.SetDeadline(d) }

// UpgradeTLS replaces the underlying net.Conn with a *tls.Conn performing
// the client half of the handshake. Per Spec Section 4.4 the device's
// self-signed certificate is never chain-validated; config should already
// carry InsecureSkipVerify (pkg/adb sets this, not this package, so the
// trust decision stays visible at the call site).
func (t *TCP) UpgradeTLS(config *tls.Config) error {
	if t.tlsUpgrad {
		return ErrAlreadyUpgraded
	}
	tlsConn := tls.Client(t.conn, config)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return err
	}
	t.conn = tlsConn
	t.tlsUpgrad = true
	return nil
}
