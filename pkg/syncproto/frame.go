package syncproto

import (
	"encoding/binary"
	"io"
)

// frameID is one of the 4-ASCII-byte SYNC frame identifiers, encoded
// little-endian the same way pkg/wire.Command encodes packet commands
// (Spec Section 4.6: "All frames are 8 bytes: 4-byte ASCII id + 4-byte
// little-endian u32 arg").
type frameID uint32

func newFrameID(s string) frameID {
	return frameID(binary.LittleEndian.Uint32([]byte(s)))
}

var (
	idStat = newFrameID("STAT")
	idList = newFrameID("LIST")
	idSend = newFrameID("SEND")
	idRecv = newFrameID("RECV")
	idDent = newFrameID("DENT")
	idDone = newFrameID("DONE")
	idData = newFrameID("DATA")
	idOkay = newFrameID("OKAY")
	idFail = newFrameID("FAIL")
	idQuit = newFrameID("QUIT")
)

func (id frameID) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return string(b[:])
}

// frameCodec reads and writes the 8-byte id+arg headers shared by every
// SYNC frame, grounded on the teacher's StreamReader/StreamWriter
// length-prefix idiom (frame.go), adapted from a 4-byte length prefix to
// SYNC's fixed 8-byte id+arg header.
type frameCodec struct {
	rw io.ReadWriter
}

func (c *frameCodec) writeHeader(id frameID, arg uint32) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id))
	binary.LittleEndian.PutUint32(buf[4:8], arg)
	_, err := c.rw.Write(buf[:])
	return err
}

func (c *frameCodec) writeHeaderAndPayload(id frameID, payload []byte) error {
	if err := c.writeHeader(id, uint32(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := c.rw.Write(payload)
	return err
}

func (c *frameCodec) readHeader() (frameID, uint32, error) {
	var buf [8]byte
	if _, err := io.ReadFull(c.rw, buf[:]); err != nil {
		return 0, 0, err
	}
	id := frameID(binary.LittleEndian.Uint32(buf[0:4]))
	arg := binary.LittleEndian.Uint32(buf[4:8])
	return id, arg, nil
}

func (c *frameCodec) readPayload(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// expect reads one header and, if it is FAIL, consumes the message and
// returns a *SyncFail; any other id besides want returns *UnexpectedFrame.
func (c *frameCodec) expect(want frameID) (uint32, error) {
	id, arg, err := c.readHeader()
	if err != nil {
		return 0, err
	}
	if id == idFail {
		msg, err := c.readPayload(arg)
		if err != nil {
			return 0, err
		}
		return 0, &SyncFail{Msg: string(msg)}
	}
	if id != want {
		return 0, &UnexpectedFrame{ID: id}
	}
	return arg, nil
}
