package wire

import "errors"

// Codec errors (Spec Section 4.1, Section 7 ProtocolError).
var (
	// ErrBadMagic is returned when header.Magic != header.Command ^ 0xFFFFFFFF.
	ErrBadMagic = errors.New("wire: bad magic")

	// ErrPayloadTooLarge is returned when a header's data_length exceeds the
	// negotiated max payload.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds max payload")

	// ErrChecksumMismatch is returned when the legacy payload checksum does
	// not match (only checked at or below the protocol version boundary).
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")

	// ErrShortRead is returned when fewer bytes than requested could be read
	// before the underlying transport reported an error or EOF.
	ErrShortRead = errors.New("wire: short read")
)
