package adb

import "strings"

// buildHostBanner assembles the CNXN payload this client sends: an identity
// prefix followed directly (no ";" is inserted) by a "features=a,b,c"
// property, NUL terminated like the device's own banner (Spec Section 4.4
// "CNXN").
func buildHostBanner(identity string, features []string) []byte {
	if identity == "" {
		identity = "host::"
	}
	var b strings.Builder
	b.WriteString(identity)
	if len(features) > 0 {
		b.WriteString("features=")
		b.WriteString(strings.Join(features, ","))
	}
	b.WriteByte(0)
	return []byte(b.String())
}

// parseDeviceBanner extracts the advertised feature set from a device's CNXN
// payload, of the form "device::ro.product.name=...;features=f1,f2,...;"
// (Spec Section 4.4 "feature negotiation").
func parseDeviceBanner(payload []byte) map[string]struct{} {
	s := strings.TrimRight(string(payload), "\x00")
	features := make(map[string]struct{})
	for _, prop := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(prop, "=")
		if !ok || name != "features" {
			continue
		}
		for _, f := range strings.Split(value, ",") {
			if f != "" {
				features[f] = struct{}{}
			}
		}
	}
	return features
}

// negotiateDelayedAck reports whether both sides advertised "delayed_ack".
func negotiateDelayedAck(want bool, peerFeatures map[string]struct{}) bool {
	if !want {
		return false
	}
	_, ok := peerFeatures["delayed_ack"]
	return ok
}
