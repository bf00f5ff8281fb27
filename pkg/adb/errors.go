package adb

import "errors"

// Connection errors (Spec Section 4.4 "Failures").
var (
	// ErrAuthRejected is returned when the device never issues CNXN after
	// the policy-bounded number of AUTH(TOKEN) rounds (signature, then key).
	ErrAuthRejected = errors.New("adb: auth rejected")

	// ErrProtocolError is returned when the peer sends a command that is
	// not valid in the connection's current state.
	ErrProtocolError = errors.New("adb: protocol error")

	// ErrHandshakeTimeout is returned when the handshake makes no progress
	// within Config.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("adb: handshake timeout")

	// ErrTransportClosed is returned from pending operations once the
	// underlying Transport has failed or been closed.
	ErrTransportClosed = errors.New("adb: transport closed")

	// ErrNotReady is returned by Open when called before the handshake has
	// reached the Ready state.
	ErrNotReady = errors.New("adb: connection not ready")

	// ErrAlreadyConnected is returned by Connect when called more than once.
	ErrAlreadyConnected = errors.New("adb: already connected")
)
