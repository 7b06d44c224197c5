// Package capability defines what happens over an established
// connection.  Each Capability encapsulates a single behaviour (serve a
// chat session, or relay a terminal to a remote broker) and operates on
// a transport.Conn, which keeps capabilities independent of whether the
// bytes arrive over TCP, SSH or WebSocket.
package capability

import (
	"context"

	"chatd/internal/transport"
)

// Capability handles a single connection according to a specific
// behaviour.
type Capability interface {
	// Handle runs the capability against conn.  It blocks until the
	// connection is done or the context is cancelled, and leaves conn
	// closed.
	Handle(ctx context.Context, conn transport.Conn) error
}
