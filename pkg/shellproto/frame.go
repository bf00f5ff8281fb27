package shellproto

import (
	"encoding/binary"
	"io"
)

// frameID identifies one v2 shell frame (Spec Section 4.7).
type frameID byte

const (
	idStdin            frameID = 0
	idStdout           frameID = 1
	idStderr           frameID = 2
	idExit             frameID = 3
	idCloseStdin       frameID = 4
	idWindowSizeChange frameID = 5
)

func (id frameID) String() string {
	switch id {
	case idStdin:
		return "stdin"
	case idStdout:
		return "stdout"
	case idStderr:
		return "stderr"
	case idExit:
		return "exit"
	case idCloseStdin:
		return "close-stdin"
	case idWindowSizeChange:
		return "window-size-change"
	default:
		return "unknown"
	}
}

// frameCodec reads and writes shell v2's 1-byte id + 4-byte little-endian
// length header, grounded on the same length-prefix idiom used by
// pkg/syncproto's frameCodec, shrunk to shell v2's 1-byte id.
type frameCodec struct {
	rw io.ReadWriter
}

func (c *frameCodec) writeFrame(id frameID, payload []byte) error {
	var hdr [5]byte
	hdr[0] = byte(id)
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	if _, err := c.rw.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := c.rw.Write(payload)
	return err
}

// readFrame reads one frame header and its payload. It rejects lengths
// over maxFrameSize before allocating a buffer for them.
func (c *frameCodec) readFrame() (frameID, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(c.rw, hdr[:]); err != nil {
		return 0, nil, err
	}
	id := frameID(hdr[0])
	length := binary.LittleEndian.Uint32(hdr[1:5])
	if length > maxFrameSize {
		return 0, nil, &ErrFrameTooLarge{Length: length}
	}
	if length == 0 {
		return id, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return 0, nil, err
	}
	return id, payload, nil
}
