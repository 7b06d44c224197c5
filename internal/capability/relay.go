package capability

import (
	"context"
	"io"

	"chatd/internal/transport"
	"chatd/util"
)

// Relay copies data bidirectionally between a broker connection and
// local I/O endpoints: the thin client.
type Relay struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// Handle shuttles bytes between the network connection and the local
// I/O endpoints until one side closes or the context is cancelled.
func (r *Relay) Handle(ctx context.Context, conn transport.Conn) error {
	return util.BidirectionalCopy(ctx, conn, r.Stdin, r.Stdout)
}
