package adb

import (
	"bytes"
	"testing"
	"time"

	"github.com/riftlabs/adbwire/pkg/cryptoutil"
	"github.com/riftlabs/adbwire/pkg/stream"
	"github.com/riftlabs/adbwire/pkg/transport"
	"github.com/riftlabs/adbwire/pkg/wire"
)

// fakeDevice drives the peer side of the handshake directly against a
// wire.Reader/Writer pair, standing in for a real adbd.
type fakeDevice struct {
	t *testing.T
	r *wire.Reader
	w *wire.Writer
}

func newFakeDevice(t *testing.T, conn *transport.TCP) *fakeDevice {
	t.Helper()
	return &fakeDevice{
		t: t,
		r: wire.NewReader(conn, wire.MaxPayload, false),
		w: wire.NewWriter(conn, false),
	}
}

func (d *fakeDevice) recv() *wire.Packet {
	d.t.Helper()
	p, err := d.r.ReadPacket()
	if err != nil {
		d.t.Fatalf("device ReadPacket: %v", err)
	}
	return p
}

func (d *fakeDevice) send(cmd wire.Command, arg0, arg1 uint32, payload []byte) {
	d.t.Helper()
	if err := d.w.WritePacket(cmd, arg0, arg1, payload); err != nil {
		d.t.Fatalf("device WritePacket: %v", err)
	}
}

func testKey(t *testing.T) *cryptoutil.Key {
	t.Helper()
	k, err := cryptoutil.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func TestConnectPreAuthorized(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()
	dev := newFakeDevice(t, device)

	c := New(Config{
		Transport: client,
		Key:       testKey(t),
		Features:  []string{"shell_v2", "cmd"},
	})

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect() }()

	cnxn := dev.recv()
	if cnxn.Command != wire.CNXN {
		t.Fatalf("command = %v, want CNXN", cnxn.Command)
	}
	if cnxn.Arg0 != wire.ProtocolVersion {
		t.Fatalf("arg0 = %#x, want ProtocolVersion", cnxn.Arg0)
	}
	dev.send(wire.CNXN, wire.ProtocolVersion, wire.MaxPayload,
		[]byte("device::ro.product.name=test;features=shell_v2,cmd,stat_v2;\x00"))

	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != "Ready" {
		t.Fatalf("State = %q, want Ready", c.State())
	}
	if !c.Supports("stat_v2") {
		t.Fatalf("Supports(stat_v2) = false, want true")
	}
	if c.Supports("nonexistent") {
		t.Fatalf("Supports(nonexistent) = true, want false")
	}
}

func TestConnectSignatureThenKey(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()
	dev := newFakeDevice(t, device)

	key := testKey(t)
	c := New(Config{Transport: client, Key: key})

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect() }()

	dev.recv() // CNXN

	var token [cryptoutil.TokenSize]byte
	for i := range token {
		token[i] = byte(i + 1)
	}
	dev.send(wire.AUTH, wire.AuthToken, 0, token[:])

	sigResp := dev.recv()
	if sigResp.Command != wire.AUTH || sigResp.Arg0 != wire.AuthSignature {
		t.Fatalf("unexpected response to token: %+v", sigResp)
	}
	if len(sigResp.Payload) != cryptoutil.SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(sigResp.Payload), cryptoutil.SignatureSize)
	}

	// Device rejects the signature (doesn't recognize the key) and issues a
	// fresh challenge; the client falls back to sending its public key.
	dev.send(wire.AUTH, wire.AuthToken, 0, token[:])

	keyResp := dev.recv()
	if keyResp.Command != wire.AUTH || keyResp.Arg0 != wire.AuthRSAPublicKey {
		t.Fatalf("unexpected response to second token: %+v", keyResp)
	}
	if !bytes.Contains(keyResp.Payload, []byte(" ")) {
		t.Fatalf("public key payload missing comment separator: %q", keyResp.Payload)
	}

	dev.send(wire.CNXN, wire.ProtocolVersion, wire.MaxPayload, []byte("device::\x00"))

	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != "Ready" {
		t.Fatalf("State = %q, want Ready", c.State())
	}
}

func TestConnectAuthRejectedAfterThirdRound(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()
	dev := newFakeDevice(t, device)

	c := New(Config{Transport: client, Key: testKey(t)})

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect() }()

	dev.recv() // CNXN

	var token [cryptoutil.TokenSize]byte
	dev.send(wire.AUTH, wire.AuthToken, 0, token[:]) // round 1 -> signature
	dev.recv()
	dev.send(wire.AUTH, wire.AuthToken, 0, token[:]) // round 2 -> key
	dev.recv()
	dev.send(wire.AUTH, wire.AuthToken, 0, token[:]) // round 3 -> rejected

	if err := <-connectErr; err != ErrAuthRejected {
		t.Fatalf("Connect err = %v, want ErrAuthRejected", err)
	}
}

func TestConnectHandshakeTimeout(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()
	dev := newFakeDevice(t, device)

	c := New(Config{
		Transport:        client,
		Key:              testKey(t),
		HandshakeTimeout: 20 * time.Millisecond,
	})

	// Drain the CNXN so the client's write does not block, but never reply.
	go dev.recv()

	if err := c.Connect(); err != ErrHandshakeTimeout {
		t.Fatalf("Connect err = %v, want ErrHandshakeTimeout", err)
	}
}

func TestOpenDelegatesToMux(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()
	dev := newFakeDevice(t, device)

	c := New(Config{Transport: client, Key: testKey(t)})

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect() }()
	dev.recv()
	dev.send(wire.CNXN, wire.ProtocolVersion, wire.MaxPayload, []byte("device::\x00"))
	if err := <-connectErr; err != nil {
		t.Fatalf("Connect: %v", err)
	}

	type openResult struct {
		s   *stream.Stream
		err error
	}
	openCh := make(chan openResult, 1)
	go func() {
		s, err := c.Open("shell:echo hi")
		openCh <- openResult{s, err}
	}()

	open := dev.recv()
	if open.Command != wire.OPEN {
		t.Fatalf("command = %v, want OPEN", open.Command)
	}
	dev.send(wire.OKAY, 1, open.Arg0, nil)

	res := <-openCh
	if res.err != nil {
		t.Fatalf("Open: %v", res.err)
	}
	if res.s.State() != stream.Open {
		t.Fatalf("stream state = %v, want Open", res.s.State())
	}
}

func TestOpenBeforeReadyFails(t *testing.T) {
	client, device := transport.Pipe()
	defer client.Close()
	defer device.Close()

	c := New(Config{Transport: client, Key: testKey(t)})
	if _, err := c.Open("shell:"); err != ErrNotReady {
		t.Fatalf("Open err = %v, want ErrNotReady", err)
	}
}
