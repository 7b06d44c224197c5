package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"chatd/internal/capability"
	"chatd/internal/retry"
	"chatd/internal/transport"
	"chatd/util"
)

// ConnectMode dials a broker and relays the local terminal to it: the
// thin client.
type ConnectMode struct {
	Dialer  transport.Dialer
	Address string
	Backoff *retry.Backoff
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the broker, retrying with backoff, and relays until either
// side hangs up.  The connection is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	backoff := m.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}

	var conn net.Conn
	err := backoff.Do(ctx, func(attempt int) error {
		m.Logger.Verbose("connecting to %s (attempt %d)", m.Address, attempt)
		c, err := m.Dialer.Dial(ctx, "tcp", m.Address)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			m.Logger.Verbose("connect: %v", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer conn.Close()

	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	relay := &capability.Relay{Stdin: m.stdin(), Stdout: m.stdout()}
	return relay.Handle(ctx, conn)
}
