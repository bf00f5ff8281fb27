package wire

import "encoding/binary"

// Header is the fixed 24-byte ADB packet header (Spec Section 3/6). All
// multi-byte fields are little-endian on the wire.
type Header struct {
	Command      Command
	Arg0         uint32
	Arg1         uint32
	DataLength   uint32
	DataChecksum uint32
	Magic        uint32
}

// NewHeader builds a header for command/arg0/arg1/payload, computing Magic
// and (when legacyChecksum is true) the legacy payload checksum.
func NewHeader(cmd Command, arg0, arg1 uint32, payload []byte, legacyChecksum bool) Header {
	h := Header{
		Command: cmd,
		Arg0:    arg0,
		Arg1:    arg1,
		Magic:   uint32(cmd) ^ 0xFFFFFFFF,
	}
	h.DataLength = uint32(len(payload))
	if legacyChecksum {
		h.DataChecksum = checksum(payload)
	}
	return h
}

// checksum is the unsigned sum of payload bytes mod 2^32 (Spec Section 3).
func checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

// EncodeTo serializes the header into buf, which must be at least
// HeaderSize bytes long. Returns the number of bytes written.
func (h Header) EncodeTo(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Command))
	binary.LittleEndian.PutUint32(buf[4:8], h.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], h.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataLength)
	binary.LittleEndian.PutUint32(buf[16:20], h.DataChecksum)
	binary.LittleEndian.PutUint32(buf[20:24], h.Magic)
	return HeaderSize
}

// Encode returns the 24-byte wire encoding of h.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// DecodeHeader parses a 24-byte buffer into a Header and validates the
// magic invariant. A buf shorter than HeaderSize returns ErrShortRead; bytes
// past HeaderSize are ignored.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortRead
	}
	h.Command = Command(binary.LittleEndian.Uint32(buf[0:4]))
	h.Arg0 = binary.LittleEndian.Uint32(buf[4:8])
	h.Arg1 = binary.LittleEndian.Uint32(buf[8:12])
	h.DataLength = binary.LittleEndian.Uint32(buf[12:16])
	h.DataChecksum = binary.LittleEndian.Uint32(buf[16:20])
	h.Magic = binary.LittleEndian.Uint32(buf[20:24])

	if h.Magic != uint32(h.Command)^0xFFFFFFFF {
		return h, ErrBadMagic
	}
	return h, nil
}
