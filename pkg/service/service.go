// Package service translates a high-level request (shell command, exec-cmd,
// abb_exec, reboot, root/unroot) into the destination string a Connection
// opens a stream against; sync sessions are not a request kind here
// (pkg/syncproto.Dial opens "sync:" itself). It chooses between a feature
// and its fallback the way the peer's advertised features allow (Spec
// Section 4.8), grounded on the teacher's Manager.Route opcode dispatch
// (pkg/securechannel/manager.go) generalized from a fixed opcode switch to
// a request-kind switch that also consults the peer's feature set.
package service

import (
	"fmt"
	"strings"

	"github.com/riftlabs/adbwire/pkg/shellproto"
	"github.com/riftlabs/adbwire/pkg/stream"
)

// Connector is the subset of *adb.Connection the opener needs: opening
// streams and querying negotiated features. Kept narrow so this package
// never imports pkg/adb (same seam pkg/syncproto.StreamOpener uses).
type Connector interface {
	Open(destination string) (*stream.Stream, error)
	Supports(feature string) bool
}

// Kind selects which row of the decision table a Request exercises.
type Kind int

const (
	ShellCmd Kind = iota
	InstallAPK
	MultiAPKSession
	Root
	Unroot
	Reboot
)

// Request describes one high-level operation to open.
type Request struct {
	Kind Kind

	// Cmd is the shell command line for ShellCmd; empty opens an
	// interactive shell.
	Cmd string

	// InstallArgs are extra arguments appended after "install" for
	// InstallAPK (e.g. "-r", "-g").
	InstallArgs []string

	// SessionArgs are extra arguments appended after "install-create" for
	// MultiAPKSession.
	SessionArgs []string

	// RebootTarget selects a reboot mode for Reboot ("", "bootloader",
	// "recovery", "sideload"); empty reboots normally.
	RebootTarget string
}

// Result is what Open produced: the opened stream, and for ShellCmd a
// shellproto.Session wrapping it in whichever framing mode was chosen.
type Result struct {
	Stream *stream.Stream
	Shell  shellproto.Session
}

// Open opens a stream (and, for shell commands, a shellproto.Session) for
// req against conn, following the decision table of Spec Section 4.8.
func Open(conn Connector, req Request) (Result, error) {
	switch req.Kind {
	case ShellCmd:
		return openShell(conn, req.Cmd)
	case InstallAPK:
		s, err := conn.Open(installDestination(conn, req.InstallArgs))
		return Result{Stream: s}, err
	case MultiAPKSession:
		s, err := conn.Open(multiAPKDestination(conn, req.SessionArgs))
		return Result{Stream: s}, err
	case Root:
		s, err := conn.Open("root:")
		return Result{Stream: s}, err
	case Unroot:
		s, err := conn.Open("unroot:")
		return Result{Stream: s}, err
	case Reboot:
		s, err := conn.Open("reboot:" + req.RebootTarget)
		return Result{Stream: s}, err
	default:
		return Result{}, fmt.Errorf("service: unknown request kind %d", req.Kind)
	}
}

func openShell(conn Connector, cmd string) (Result, error) {
	if conn.Supports("shell_v2") {
		s, err := conn.Open("shell,v2,raw:" + cmd)
		if err != nil {
			return Result{}, err
		}
		return Result{Stream: s, Shell: shellproto.NewV2Session(s, shellproto.Config{})}, nil
	}
	s, err := conn.Open("shell:" + cmd)
	if err != nil {
		return Result{}, err
	}
	return Result{Stream: s, Shell: shellproto.NewRawSession(s)}, nil
}

func installDestination(conn Connector, args []string) string {
	if conn.Supports("cmd") {
		return withArgs("exec:cmd package install", args)
	}
	return withArgs("exec:pm install", args)
}

func multiAPKDestination(conn Connector, args []string) string {
	if conn.Supports("abb_exec") {
		parts := append([]string{"package", "install-create"}, args...)
		return "abb_exec:" + strings.Join(parts, "\x00")
	}
	return withArgs("exec:pm install-create", args)
}

func withArgs(prefix string, args []string) string {
	if len(args) == 0 {
		return prefix
	}
	return prefix + " " + strings.Join(args, " ")
}
