package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// closeWriter is implemented by connections that support half-close
// (*net.TCPConn, *net.UnixConn).
type closeWriter interface {
	CloseWrite() error
}

// BidirectionalCopy relays a chat connection to a local terminal: lines
// typed on r go to the server, and everything the server sends is
// copied to w.  It returns when the server hangs up, when the context
// is cancelled, or when the local side fails.
func BidirectionalCopy(ctx context.Context, conn io.ReadWriteCloser, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// server → terminal
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(w, conn)
		errCh <- err
		cancel()
	}()

	// terminal → server
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(conn, r)
		// Local EOF (piped input ran out) half-closes so the server
		// still gets to answer the last command before hanging up.
		if cw, ok := conn.(closeWriter); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		errCh <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
