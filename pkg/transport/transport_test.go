package transport

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func TestTCPDialAndRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err := DialTCP(ln.Addr().String())
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	serverConn := <-accepted
	defer serverConn.Close()
	server := NewTCP(serverConn)

	want := []byte("CNXN payload")
	if _, err := client.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, len(want))
	if _, err := server.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDialTCPEmptyAddress(t *testing.T) {
	if _, err := DialTCP(""); err != ErrInvalidAddress {
		t.Fatalf("DialTCP(\"\") err = %v, want ErrInvalidAddress", err)
	}
}

func TestPipeRoundTrip(t *testing.T) {
	client, device := Pipe()
	defer client.Close()
	defer device.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		if _, err := device.Read(buf); err != nil {
			t.Errorf("device Read: %v", err)
			return
		}
		if !bytes.Equal(buf, []byte("hello")) {
			t.Errorf("got %q, want hello", buf)
		}
	}()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("client Write: %v", err)
	}
	<-done
}

func TestSetDeadlineTimesOut(t *testing.T) {
	client, device := Pipe()
	defer client.Close()
	defer device.Close()

	if err := client.SetDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}
	buf := make([]byte, 1)
	_, err := client.Read(buf)
	if err == nil {
		t.Fatalf("Read did not time out")
	}
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Fatalf("Read err = %v, want a net.Error timeout", err)
	}
}

func TestUpgradeTLSHandshake(t *testing.T) {
	cert := selfSignedCert(t)

	client, device := Pipe()
	defer client.Close()
	defer device.Close()

	// UpgradeTLS only performs the client half of the handshake, so the
	// device side runs tls.Server over its conn directly.
	deviceErr := make(chan error, 1)
	go func() {
		srv := tls.Server(device.conn, &tls.Config{
			Certificates: []tls.Certificate{cert},
		})
		err := srv.Handshake()
		if err == nil {
			device.conn = srv
		}
		deviceErr <- err
	}()

	clientConfig := &tls.Config{InsecureSkipVerify: true}
	if err := client.UpgradeTLS(clientConfig); err != nil {
		t.Fatalf("client UpgradeTLS: %v", err)
	}
	if err := <-deviceErr; err != nil {
		t.Fatalf("device UpgradeTLS: %v", err)
	}

	if err := client.UpgradeTLS(clientConfig); err != ErrAlreadyUpgraded {
		t.Fatalf("second UpgradeTLS err = %v, want ErrAlreadyUpgraded", err)
	}

	want := []byte("post-STLS CNXN")
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, len(want))
		if _, err := device.Read(buf); err != nil {
			t.Errorf("device Read after upgrade: %v", err)
			return
		}
		if !bytes.Equal(buf, want) {
			t.Errorf("got %q, want %q", buf, want)
		}
	}()
	if _, err := client.Write(want); err != nil {
		t.Fatalf("client Write after upgrade: %v", err)
	}
	<-done
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "adbwire-test-device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
}
