package syncproto

import (
	"bytes"
	"net"
	"testing"
	"time"
)

// fakeDevice drives the peer side of the SYNC sub-protocol directly against
// a frameCodec, standing in for adbd's file daemon.
type fakeDevice struct {
	t     *testing.T
	codec frameCodec
}

func newHarness(t *testing.T) (*Client, *fakeDevice) {
	t.Helper()
	clientConn, deviceConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); deviceConn.Close() })
	return newClient(clientConn), &fakeDevice{t: t, codec: frameCodec{rw: deviceConn}}
}

func (d *fakeDevice) recvHeader() (frameID, uint32) {
	d.t.Helper()
	id, arg, err := d.codec.readHeader()
	if err != nil {
		d.t.Fatalf("device readHeader: %v", err)
	}
	return id, arg
}

func (d *fakeDevice) recvPayload(n uint32) []byte {
	d.t.Helper()
	payload, err := d.codec.readPayload(n)
	if err != nil {
		d.t.Fatalf("device readPayload: %v", err)
	}
	return payload
}

func TestClientStat(t *testing.T) {
	c, dev := newHarness(t)

	resultCh := make(chan struct {
		stat Stat
		err  error
	}, 1)
	go func() {
		s, err := c.Stat("/system")
		resultCh <- struct {
			stat Stat
			err  error
		}{s, err}
	}()

	id, arg := dev.recvHeader()
	if id != idStat {
		t.Fatalf("id = %v, want STAT", id)
	}
	name := dev.recvPayload(arg)
	if string(name) != "/system" {
		t.Fatalf("name = %q", name)
	}

	payload := make([]byte, 12)
	putU32(payload[0:4], 0o40755)
	putU32(payload[4:8], 4096)
	putU32(payload[8:12], 1700000000)
	if err := dev.codec.writeHeaderAndPayload(idStat, payload); err != nil {
		t.Fatalf("device write: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("Stat: %v", res.err)
	}
	if res.stat.Mode != 0o40755 || res.stat.Size != 4096 || res.stat.Mtime != 1700000000 {
		t.Fatalf("stat = %+v", res.stat)
	}
}

func TestClientStatFail(t *testing.T) {
	c, dev := newHarness(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Stat("/missing")
		errCh <- err
	}()

	_, arg := dev.recvHeader()
	dev.recvPayload(arg)
	if err := dev.codec.writeHeaderAndPayload(idFail, []byte("no such file")); err != nil {
		t.Fatalf("device write: %v", err)
	}

	err := <-errCh
	sf, ok := err.(*SyncFail)
	if !ok {
		t.Fatalf("err = %v (%T), want *SyncFail", err, err)
	}
	if sf.Msg != "no such file" {
		t.Fatalf("Msg = %q", sf.Msg)
	}
}

func TestClientList(t *testing.T) {
	c, dev := newHarness(t)

	resultCh := make(chan struct {
		entries []DirEntry
		err     error
	}, 1)
	go func() {
		entries, err := c.List("/data/local/tmp")
		resultCh <- struct {
			entries []DirEntry
			err     error
		}{entries, err}
	}()

	_, arg := dev.recvHeader()
	dev.recvPayload(arg)

	dent := make([]byte, 16+len("t.bin"))
	putU32(dent[0:4], 0o100644)
	putU32(dent[4:8], 300000)
	putU32(dent[8:12], 1700000001)
	putU32(dent[12:16], uint32(len("t.bin")))
	copy(dent[16:], "t.bin")
	if err := dev.codec.writeHeaderAndPayload(idDent, dent); err != nil {
		t.Fatalf("device write DENT: %v", err)
	}
	if err := dev.codec.writeHeader(idDone, 0); err != nil {
		t.Fatalf("device write DONE: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("List: %v", res.err)
	}
	if len(res.entries) != 1 || res.entries[0].Name != "t.bin" || res.entries[0].Size != 300000 {
		t.Fatalf("entries = %+v", res.entries)
	}
}

func TestClientSendAndRecvRoundTrip(t *testing.T) {
	c, dev := newHarness(t)

	data := bytes.Repeat([]byte{0x5a}, MaxChunkSize+17)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.Send("/data/local/tmp/t.bin", 0o644, time.Unix(1700000002, 0), bytes.NewReader(data))
	}()

	id, arg := dev.recvHeader()
	if id != idSend {
		t.Fatalf("id = %v, want SEND", id)
	}
	info := dev.recvPayload(arg)
	if string(info) != "/data/local/tmp/t.bin,420" {
		t.Fatalf("info = %q", info)
	}

	var received []byte
	for {
		fid, farg := dev.recvHeader()
		if fid == idDone {
			break
		}
		if fid != idData {
			t.Fatalf("id = %v, want DATA or DONE", fid)
		}
		if farg > MaxChunkSize {
			t.Fatalf("chunk too large: %d", farg)
		}
		received = append(received, dev.recvPayload(farg)...)
	}
	if !bytes.Equal(received, data) {
		t.Fatalf("received %d bytes, want %d", len(received), len(data))
	}
	if err := dev.codec.writeHeader(idOkay, 0); err != nil {
		t.Fatalf("device write OKAY: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Recv the same bytes back.
	recvErr := make(chan error, 1)
	var out bytes.Buffer
	go func() { recvErr <- c.Recv("/data/local/tmp/t.bin", &out) }()

	id, arg = dev.recvHeader()
	if id != idRecv {
		t.Fatalf("id = %v, want RECV", id)
	}
	dev.recvPayload(arg)

	for off := 0; off < len(data); off += MaxChunkSize {
		end := off + MaxChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := dev.codec.writeHeaderAndPayload(idData, data[off:end]); err != nil {
			t.Fatalf("device write DATA: %v", err)
		}
	}
	if err := dev.codec.writeHeader(idDone, 0); err != nil {
		t.Fatalf("device write DONE: %v", err)
	}

	if err := <-recvErr; err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("Recv produced %d bytes, want %d", out.Len(), len(data))
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
