package adb

import (
	"crypto/tls"
	"time"

	"github.com/pion/logging"

	"github.com/riftlabs/adbwire/pkg/cryptoutil"
	"github.com/riftlabs/adbwire/pkg/pairing"
	"github.com/riftlabs/adbwire/pkg/transport"
)

// Config configures a Connection (Spec Section 4.4, Section 4.5).
type Config struct {
	// Transport carries the connection's bytes. Required.
	Transport transport.Transport

	// Key authenticates the client during AUTH. Required unless the device
	// accepts the connection unauthenticated (e.g. over an already-trusted
	// USB link), which this client does not assume.
	Key *cryptoutil.Key

	// SystemIdentity is the "system-type:serialno:banner" style host
	// identity string sent in the CNXN payload, minus the feature list this
	// package appends automatically. Defaults to "host::" when empty.
	SystemIdentity string

	// KeyComment labels the public key sent in round 2, matching real
	// clients' "user@host" suffix so the device's pairing UI has something
	// to show. Defaults to "adbwire" when empty.
	KeyComment string

	// Features lists the feature names this client advertises in CNXN, e.g.
	// "shell_v2", "cmd", "stat_v2". Stream/SYNC/Shell v2 callers gate
	// optional behavior on Connection.Supports after the handshake.
	Features []string

	// MaxPayload is the largest data_length this client will accept or send.
	// Defaults to wire.MaxPayload.
	MaxPayload uint32

	// DelayedAck requests byte-budget stream flow control when both sides
	// advertise the "delayed_ack" feature (Spec Section 4.5).
	DelayedAck bool

	// InitialCredit is the delayed_ack byte budget granted per stream.
	// Ignored unless DelayedAck negotiates on.
	InitialCredit uint32

	// HandshakeTimeout bounds the whole CNXN/AUTH/STLS exchange. Zero means
	// no timeout.
	HandshakeTimeout time.Duration

	// TLSConfig seeds the STLS upgrade's tls.Config (certificates, min
	// version); InsecureSkipVerify and VerifyConnection are overridden on a
	// clone during the STLS upgrade to route trust through TrustAnchor.
	TLSConfig *tls.Config

	// TrustAnchor decides whether to accept the device's TLS certificate
	// during STLS. Defaults to pairing.AlwaysTrust{}.
	TrustAnchor pairing.TrustAnchor

	// LoggerFactory builds the Connection's and its Mux's loggers. A nil
	// factory falls back to logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}
