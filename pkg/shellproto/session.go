// Package shellproto implements the Shell v2 sub-protocol layered over a
// stream opened to destination "shell,v2,raw:<command>", plus the v1
// fallback (merged stdout/stderr, no exit code) used when the peer does
// not advertise shell_v2 (Spec Section 4.7).
package shellproto

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/logging"
)

// ErrStdinClosed is returned by WriteStdin after CloseStdin.
var ErrStdinClosed = errors.New("shellproto: stdin already closed")

// Session is the caller-facing handle on a running shell command: two
// output streams, a stdin sink, and an eventual exit code.
type Session interface {
	// Stdout returns the stream of stdout bytes. In v1 fallback mode this
	// also carries stderr, merged.
	Stdout() io.Reader
	// Stderr returns the stream of stderr bytes. In v1 fallback mode this
	// is always empty (reads return io.EOF immediately).
	Stderr() io.Reader
	// WriteStdin sends p to the remote command's standard input.
	WriteStdin(p []byte) (int, error)
	// CloseStdin signals end-of-input.
	CloseStdin() error
	// ExitCode returns the command's exit status and whether one has been
	// observed yet. In v1 fallback mode ok is always false (Spec Section
	// 4.7 "exit code is not available").
	ExitCode() (code uint8, ok bool)
	// Wait blocks until the session's demultiplex loop has ended (peer
	// sent the exit frame, or the underlying stream errored/closed).
	Wait() error
	// Close closes the underlying stream.
	Close() error
}

// Config configures a V2Session.
type Config struct {
	// LoggerFactory builds the session's logger. A nil factory falls back
	// to logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// V2Session implements Session over the id+length framing of Spec Section
// 4.7. rwc is typed as the narrower io.ReadWriteCloser, not *stream.Stream,
// so the demux loop can be driven in tests over a plain net.Pipe().
type V2Session struct {
	rwc   io.ReadWriteCloser
	codec frameCodec
	log   logging.LeveledLogger

	writeMu   sync.Mutex
	stdinDone bool
	stdoutR   *io.PipeReader
	stdoutW   *io.PipeWriter
	stderrR   *io.PipeReader
	stderrW   *io.PipeWriter

	mu       sync.Mutex
	exitCode uint8
	exitSeen bool

	doneCh  chan struct{}
	doneErr error
}

// NewV2Session wraps rwc (a "shell,v2,raw:" stream) and starts its demux
// loop.
func NewV2Session(rwc io.ReadWriteCloser, config Config) *V2Session {
	log := logging.NewDefaultLoggerFactory().NewLogger("shellproto")
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("shellproto")
	}
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	s := &V2Session{
		rwc:     rwc,
		codec:   frameCodec{rw: rwc},
		log:     log,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		stderrR: stderrR,
		stderrW: stderrW,
		doneCh:  make(chan struct{}),
	}
	go s.demux()
	return s
}

// demux is the session's single reader loop: it owns rwc for reads for the
// session's lifetime, fanning frames out to the stdout/stderr pipes, the
// same single-consumer-owns-the-connection shape pkg/adb's readLoop uses
// for packets.
func (s *V2Session) demux() {
	defer close(s.doneCh)
	for {
		id, payload, err := s.codec.readFrame()
		if err != nil {
			s.doneErr = err
			s.stdoutW.CloseWithError(err)
			s.stderrW.CloseWithError(err)
			return
		}
		switch id {
		case idStdout:
			if _, err := s.stdoutW.Write(payload); err != nil {
				s.log.Debugf("stdout pipe closed: %v", err)
			}
		case idStderr:
			if _, err := s.stderrW.Write(payload); err != nil {
				s.log.Debugf("stderr pipe closed: %v", err)
			}
		case idExit:
			var code uint8
			if len(payload) > 0 {
				code = payload[0]
			}
			s.mu.Lock()
			s.exitCode = code
			s.exitSeen = true
			s.mu.Unlock()
			s.stdoutW.Close()
			s.stderrW.Close()
			return
		case idWindowSizeChange:
			// not meaningful for a client that never presents a pty; ignore.
		case idStdin, idCloseStdin:
			// client-to-device ids; nothing to deliver on this side, ignore.
		default:
			err := &ErrUnknownFrameID{ID: byte(id)}
			s.doneErr = err
			s.stdoutW.CloseWithError(err)
			s.stderrW.CloseWithError(err)
			return
		}
	}
}

func (s *V2Session) Stdout() io.Reader { return s.stdoutR }
func (s *V2Session) Stderr() io.Reader { return s.stderrR }

func (s *V2Session) WriteStdin(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stdinDone {
		return 0, ErrStdinClosed
	}
	if err := s.codec.writeFrame(idStdin, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *V2Session) CloseStdin() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stdinDone {
		return nil
	}
	s.stdinDone = true
	return s.codec.writeFrame(idCloseStdin, nil)
}

func (s *V2Session) ExitCode() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exitSeen
}

func (s *V2Session) Wait() error {
	<-s.doneCh
	return s.doneErr
}

func (s *V2Session) Close() error {
	return s.rwc.Close()
}

// RawSession implements Session over the unframed v1 fallback: stdout and
// stderr are merged on the raw byte stream, stdin is written directly, and
// no exit code is ever available (Spec Section 4.7).
type RawSession struct {
	rwc io.ReadWriteCloser
}

// NewRawSession wraps rwc (a "shell:" stream) for v1 fallback mode.
func NewRawSession(rwc io.ReadWriteCloser) *RawSession {
	return &RawSession{rwc: rwc}
}

func (s *RawSession) Stdout() io.Reader { return s.rwc }
func (s *RawSession) Stderr() io.Reader { return emptyReader{} }

func (s *RawSession) WriteStdin(p []byte) (int, error) {
	return s.rwc.Write(p)
}

// CloseStdin has no v1 wire representation; closing the stream is the only
// way to signal end-of-input, which the caller does via Close.
func (s *RawSession) CloseStdin() error { return nil }

func (s *RawSession) ExitCode() (uint8, bool) { return 0, false }

// Wait has nothing to wait on in v1 mode: there is no demux loop, so it
// returns immediately.
func (s *RawSession) Wait() error { return nil }

func (s *RawSession) Close() error { return s.rwc.Close() }

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
