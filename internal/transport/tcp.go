package transport

import (
	"context"
	"net"
	"time"

	ncerr "chatd/internal/errors"
)

// TCPListener accepts plain TCP chat clients.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP opens a TCP listener on addr.
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next client.  Cancelling ctx does not interrupt
// a pending Accept; Close does.
func (l *TCPListener) Accept(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, ncerr.Wrap("accept", l.ln.Addr().String(), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)                   //nolint:errcheck
		tc.SetKeepAlivePeriod(30 * time.Second) //nolint:errcheck
	}
	return conn, nil
}

// Close stops accepting clients.
func (l *TCPListener) Close() error { return l.ln.Close() }

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Name implements Listener.
func (l *TCPListener) Name() string { return "tcp" }

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, ncerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
