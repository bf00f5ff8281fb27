package transport

import "errors"

// Transport errors (Spec Section 4.2).
var (
	// ErrClosed reports an operation on a closed transport. TCP does not
	// return it: its Read, Write and Close pass through the underlying
	// net.Conn's own errors.
	ErrClosed = errors.New("transport: closed")

	// ErrAlreadyUpgraded is returned when UpgradeTLS is called a second time
	// on the same transport.
	ErrAlreadyUpgraded = errors.New("transport: already upgraded to TLS")

	// ErrInvalidAddress is returned when DialTCP is given an empty address.
	ErrInvalidAddress = errors.New("transport: invalid address")
)
