package session

import (
	"sync"
	"time"

	"chatd/internal/metrics"
	"chatd/internal/transport"
)

// outbox serialises everything written to one client.  Producers
// enqueue without blocking; a single writer goroutine drains the queue
// with a deadline on every write, so a wedged client costs its own
// session and nobody else.
type outbox struct {
	conn    transport.Conn
	timeout time.Duration
	metrics *metrics.Collector
	onFail  func(err error)

	mu     sync.Mutex
	lines  chan string
	closed bool
	done   chan struct{}
}

func newOutbox(conn transport.Conn, size int, timeout time.Duration, m *metrics.Collector, onFail func(error)) *outbox {
	o := &outbox{
		conn:    conn,
		timeout: timeout,
		metrics: m,
		onFail:  onFail,
		lines:   make(chan string, size),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// enqueue queues line for writing.  It returns false if the queue is
// full or already closed.
func (o *outbox) enqueue(line string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.lines <- line:
		return true
	default:
		return false
	}
}

func (o *outbox) run() {
	defer close(o.done)
	failed := false
	for line := range o.lines {
		if failed {
			continue
		}
		if o.timeout > 0 {
			o.conn.SetWriteDeadline(time.Now().Add(o.timeout)) //nolint:errcheck
		}
		n, err := o.conn.Write([]byte(line + "\n"))
		o.metrics.BytesSent(int64(n))
		if err != nil {
			failed = true
			o.onFail(err)
		}
	}
}

// close stops accepting lines and waits up to wait for the queue to
// drain.  It reports whether the drain finished.
func (o *outbox) close(wait time.Duration) bool {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.lines)
	}
	o.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-o.done:
		return true
	case <-timer.C:
		return false
	}
}
