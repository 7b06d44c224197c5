// Package transport provides the connection sources a chat broker
// accepts clients from, and the dialer its thin client connects with.
// Transports handle the "how" of moving lines (plain TCP, SSH, or
// WebSocket) independent of what a session does with them.
package transport

import (
	"context"
	"io"
	"net"
	"time"
)

// Conn is one client's bidirectional byte stream.  Every transport
// supports deadlines so an idle or kicked session can always interrupt
// a blocked read.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Listener yields client connections.  Accept returns an error wrapping
// net.ErrClosed once the listener has been closed.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
	// Name identifies the transport in logs ("tcp", "ssh", "ws").
	Name() string
}

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// queue is the hand-off between a transport's own accept machinery and
// Listener.Accept, shared by the SSH and WebSocket listeners.
type queue struct {
	conns chan Conn
	done  chan struct{}
}

func newQueue() queue {
	return queue{conns: make(chan Conn), done: make(chan struct{})}
}

// push offers c to Accept.  It closes c and returns false once the
// listener is shut down.
func (q queue) push(c Conn) bool {
	select {
	case q.conns <- c:
		return true
	case <-q.done:
		c.Close()
		return false
	}
}

func (q queue) accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-q.conns:
		return c, nil
	case <-q.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
