// adbshell is a minimal demonstration of the adbwire core: it connects to
// an adb-compatible endpoint, completes the CNXN/AUTH handshake with a
// freshly generated RSA key, and runs a single shell command.
//
// Credential persistence is out of scope for this module, so adbshell
// generates a new keypair every run rather than loading one from disk;
// against a real device this means accepting the RSA fingerprint prompt
// each time.
//
// Usage:
//
//	adbshell -addr 127.0.0.1:5555 -- shell command here
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/riftlabs/adbwire/pkg/adb"
	"github.com/riftlabs/adbwire/pkg/cryptoutil"
	"github.com/riftlabs/adbwire/pkg/service"
	"github.com/riftlabs/adbwire/pkg/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5555", "adbd TCP address")
	timeout := flag.Duration("handshake-timeout", 10*time.Second, "handshake deadline")
	verbose := flag.Bool("v", false, "enable protocol-level logging")
	flag.Parse()

	cmd := strings.Join(flag.Args(), " ")

	if err := run(*addr, cmd, *timeout, *verbose); err != nil {
		log.Fatal(err)
	}
}

func run(addr, cmd string, timeout time.Duration, verbose bool) error {
	key, err := cryptoutil.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	tc, err := transport.DialTCP(addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	if !verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelError
	}

	conn := adb.New(adb.Config{
		Transport:        tc,
		Key:              key,
		Features:         []string{"shell_v2", "cmd"},
		HandshakeTimeout: timeout,
		LoggerFactory:    loggerFactory,
	})
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	res, err := service.Open(conn, service.Request{Kind: service.ShellCmd, Cmd: cmd})
	if err != nil {
		return fmt.Errorf("open shell: %w", err)
	}
	defer res.Shell.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(os.Stderr, res.Shell.Stderr())
	}()
	if _, err := io.Copy(os.Stdout, res.Shell.Stdout()); err != nil {
		return fmt.Errorf("read stdout: %w", err)
	}
	<-done

	if err := res.Shell.Wait(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	if code, ok := res.Shell.ExitCode(); ok && code != 0 {
		os.Exit(int(code))
	}
	return nil
}
