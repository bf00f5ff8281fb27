package transport

import "net"

// Pipe returns two in-memory Transports connected to each other, for use in
// pkg/adb, pkg/stream and pkg/service tests that need a
// full client/device pair without a real socket. Unlike the teacher's
// pion/transport/v3/test.Bridge, ADB's transport carries a single ordered
// byte stream with no packet loss or reordering to simulate, so a bare
// net.Pipe() is sufficient here.
func Pipe() (client, device *TCP) {
	a, b := net.Pipe()
	return NewTCP(a), NewTCP(b)
}
