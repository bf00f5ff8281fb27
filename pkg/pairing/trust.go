// Package pairing defines the seam the WiFi pairing sub-protocol
// (SPAKE2+, PeerInfo exchange) plugs into. No pairing math is implemented
// here: the sub-protocol itself is out of scope (Spec Section 1), but the
// STLS transport upgrade needs somewhere to ask "do I already trust this
// device's certificate" when a pairing secret was established out of
// band.
package pairing

import "crypto/x509"

// TrustAnchor is consulted by pkg/adb before completing an STLS upgrade
// when the caller wants the device's ephemeral TLS certificate pinned to
// a secret established by a prior pairing exchange, instead of accepting
// it unconditionally (Spec Section 4.2 "peer certificate verification
// disabled... trust is anchored elsewhere, via the pairing step").
type TrustAnchor interface {
	// Trusted reports whether cert is the certificate previously pinned
	// for this device, e.g. during WiFi pairing.
	Trusted(cert *x509.Certificate) bool
}

// AlwaysTrust is the zero-configuration TrustAnchor: it accepts any
// certificate, matching the core's default behavior when no pairing step
// has run.
type AlwaysTrust struct{}

// Trusted always returns true.
func (AlwaysTrust) Trusted(*x509.Certificate) bool { return true }
