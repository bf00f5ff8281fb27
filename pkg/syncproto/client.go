// Package syncproto implements the SYNC file-transfer sub-protocol layered
// over a stream opened to destination "sync:" (Spec Section 4.6). The
// package is named syncproto because "sync" collides with the standard
// library.
package syncproto

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/riftlabs/adbwire/pkg/stream"
)

// StreamOpener is the subset of *adb.Connection that syncproto needs,
// avoiding an import of pkg/adb (destination opening is the only
// dependency, not the handshake itself).
type StreamOpener interface {
	Open(destination string) (*stream.Stream, error)
}

// Stat is the response to a STAT request.
type Stat struct {
	Mode  uint32
	Size  uint32
	Mtime uint32
}

// DirEntry is one entry returned by List.
type DirEntry struct {
	Mode  uint32
	Size  uint32
	Mtime uint32
	Name  string
}

// Client drives the SYNC sub-protocol over one stream. rwc is typed as the
// narrower io.ReadWriteCloser rather than *stream.Stream so the codec logic
// can be tested against any duplex, not just a live Mux.
type Client struct {
	rwc   io.ReadWriteCloser
	codec frameCodec
}

// Dial opens a "sync:" stream through opener and wraps it in a Client.
func Dial(opener StreamOpener) (*Client, error) {
	s, err := opener.Open("sync:")
	if err != nil {
		return nil, err
	}
	return newClient(s), nil
}

func newClient(rwc io.ReadWriteCloser) *Client {
	return &Client{rwc: rwc, codec: frameCodec{rw: rwc}}
}

// Stat requests metadata for name (Spec Section 4.6 "STAT").
func (c *Client) Stat(name string) (Stat, error) {
	if err := c.codec.writeHeaderAndPayload(idStat, []byte(name)); err != nil {
		return Stat{}, err
	}
	if _, err := c.codec.expect(idStat); err != nil {
		return Stat{}, err
	}
	payload, err := c.codec.readPayload(12)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Mode:  binary.LittleEndian.Uint32(payload[0:4]),
		Size:  binary.LittleEndian.Uint32(payload[4:8]),
		Mtime: binary.LittleEndian.Uint32(payload[8:12]),
	}, nil
}

// List requests a directory listing for name (Spec Section 4.6 "LIST").
func (c *Client) List(name string) ([]DirEntry, error) {
	if err := c.codec.writeHeaderAndPayload(idList, []byte(name)); err != nil {
		return nil, err
	}
	var entries []DirEntry
	for {
		id, arg, err := c.codec.readHeader()
		if err != nil {
			return nil, err
		}
		switch id {
		case idDone:
			return entries, nil
		case idFail:
			msg, err := c.codec.readPayload(arg)
			if err != nil {
				return nil, err
			}
			return nil, &SyncFail{Msg: string(msg)}
		case idDent:
			entry, err := c.readDent()
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		default:
			return nil, &UnexpectedFrame{ID: id}
		}
	}
}

// readDent reads a DENT frame's payload: mode+size+mtime(u32 each) followed
// by a 4-byte name length and the name bytes (Spec Section 4.6 "LIST").
func (c *Client) readDent() (DirEntry, error) {
	fixed, err := c.codec.readPayload(16)
	if err != nil {
		return DirEntry{}, err
	}
	mode := binary.LittleEndian.Uint32(fixed[0:4])
	size := binary.LittleEndian.Uint32(fixed[4:8])
	mtime := binary.LittleEndian.Uint32(fixed[8:12])
	nameLen := binary.LittleEndian.Uint32(fixed[12:16])
	name, err := c.codec.readPayload(nameLen)
	if err != nil {
		return DirEntry{}, err
	}
	return DirEntry{Mode: mode, Size: size, Mtime: mtime, Name: string(name)}, nil
}

// Send uploads data to path on the device with the given Unix mode,
// chunked to MaxChunkSize, terminated with a DONE carrying mtime (Spec
// Section 4.6 "SEND"). A SEND to an existing path overwrites it.
func (c *Client) Send(path string, mode uint32, mtime time.Time, data io.Reader) error {
	info := []byte(path + "," + modeString(mode))
	if err := c.codec.writeHeaderAndPayload(idSend, info); err != nil {
		return err
	}

	buf := make([]byte, MaxChunkSize)
	for {
		n, err := data.Read(buf)
		if n > 0 {
			if err := c.codec.writeHeaderAndPayload(idData, buf[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if err := c.codec.writeHeader(idDone, uint32(mtime.Unix())); err != nil {
		return err
	}

	_, err := c.codec.expect(idOkay)
	return err
}

// Recv downloads name from the device into w (Spec Section 4.6 "RECV").
func (c *Client) Recv(name string, w io.Writer) error {
	if err := c.codec.writeHeaderAndPayload(idRecv, []byte(name)); err != nil {
		return err
	}
	for {
		id, arg, err := c.codec.readHeader()
		if err != nil {
			return err
		}
		switch id {
		case idDone:
			return nil
		case idFail:
			msg, err := c.codec.readPayload(arg)
			if err != nil {
				return err
			}
			return &SyncFail{Msg: string(msg)}
		case idData:
			if arg > MaxChunkSize {
				return errChunkTooLarge
			}
			chunk, err := c.codec.readPayload(arg)
			if err != nil {
				return err
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		default:
			return &UnexpectedFrame{ID: id}
		}
	}
}

// Quit sends QUIT and closes the underlying stream (Spec Section 4.6
// "QUIT").
func (c *Client) Quit() error {
	if err := c.codec.writeHeader(idQuit, 0); err != nil {
		c.rwc.Close()
		return err
	}
	return c.rwc.Close()
}

// modeString formats mode the way real adb clients do in the SEND info
// string: decimal, no leading zeros.
func modeString(mode uint32) string {
	if mode == 0 {
		return "0"
	}
	var digits [12]byte
	i := len(digits)
	for mode > 0 {
		i--
		digits[i] = byte('0' + mode%10)
		mode /= 10
	}
	return string(digits[i:])
}
