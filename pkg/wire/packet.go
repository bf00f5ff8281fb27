package wire

import (
	"encoding/binary"
	"io"
)

// Packet is a decoded ADB packet: header fields plus payload.
type Packet struct {
	Command Command
	Arg0    uint32
	Arg1    uint32
	Payload []byte
}

// Encode serializes p to header‖payload, computing the legacy checksum
// when legacyChecksum is true (Spec Section 3, Section 9(c)).
func (p *Packet) Encode(legacyChecksum bool) []byte {
	h := NewHeader(p.Command, p.Arg0, p.Arg1, p.Payload, legacyChecksum)
	buf := make([]byte, HeaderSize+len(p.Payload))
	h.EncodeTo(buf)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Writer serializes packets onto an underlying io.Writer. A single Writer
// must only ever be used by one goroutine at a time; pkg/adb and
// pkg/stream serialize all outbound packets through one writer goroutine
// (Spec Section 5).
type Writer struct {
	w              io.Writer
	legacyChecksum bool
}

// NewWriter returns a Writer. legacyChecksum selects whether outgoing
// packets carry the legacy payload checksum (protocol version ≤
// LegacyChecksumVersionBoundary).
func NewWriter(w io.Writer, legacyChecksum bool) *Writer {
	return &Writer{w: w, legacyChecksum: legacyChecksum}
}

// WritePacket encodes and writes one packet.
func (w *Writer) WritePacket(cmd Command, arg0, arg1 uint32, payload []byte) error {
	p := Packet{Command: cmd, Arg0: arg0, Arg1: arg1, Payload: payload}
	_, err := w.w.Write(p.Encode(w.legacyChecksum))
	return err
}

// Reader reads framed packets off an underlying io.Reader, validating the
// header against the negotiated max payload and, when legacyChecksum is set
// (peer version at or below the checksum version boundary), the legacy
// payload checksum.
type Reader struct {
	r              io.Reader
	maxPayload     uint32
	legacyChecksum bool
}

// NewReader returns a Reader. maxPayload is the negotiated ceiling on
// data_length (min of local and peer advertised values); legacyChecksum
// mirrors Writer's.
func NewReader(r io.Reader, maxPayload uint32, legacyChecksum bool) *Reader {
	return &Reader{r: r, maxPayload: maxPayload, legacyChecksum: legacyChecksum}
}

// ReadPacket reads and validates one packet, following the teacher's
// StreamReader idiom: read the fixed header first via io.ReadFull, then
// slurp exactly data_length payload bytes.
func (r *Reader) ReadPacket() (*Packet, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r.r, hdrBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrShortRead
	}

	h, err := DecodeHeader(hdrBuf[:])
	if err != nil {
		return nil, err
	}
	if h.DataLength > r.maxPayload {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, h.DataLength)
	if h.DataLength > 0 {
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return nil, ErrShortRead
		}
	}

	if r.legacyChecksum {
		if checksum(payload) != h.DataChecksum {
			return nil, ErrChecksumMismatch
		}
	}

	return &Packet{
		Command: h.Command,
		Arg0:    h.Arg0,
		Arg1:    h.Arg1,
		Payload: payload,
	}, nil
}

// DestinationString builds the NUL-terminated destination payload used by
// OPEN packets (Spec Section 4.5).
func DestinationString(destination string) []byte {
	b := make([]byte, len(destination)+1)
	copy(b, destination)
	return b
}

// Uint32LE is a small helper used by sub-protocols (SYNC, Shell v2) that
// embed little-endian uint32 fields inside a stream payload rather than a
// packet header.
func Uint32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// PutUint32LE is the write-side counterpart of Uint32LE.
func PutUint32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
