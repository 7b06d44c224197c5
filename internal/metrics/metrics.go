// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a chatd process.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the broker.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	logins            atomic.Int64
	loginFailures     atomic.Int64
	idleKicks         atomic.Int64
	roomPosts         atomic.Int64
	whispers          atomic.Int64
	dropped           atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a client.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a client.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Chat metrics ─────────────────────────────────────────────────────

// LoginSucceeded records a session that claimed a name.
func (c *Collector) LoginSucceeded() {
	if c == nil {
		return
	}
	c.logins.Add(1)
}

// LoginFailed records one rejected name attempt.
func (c *Collector) LoginFailed() {
	if c == nil {
		return
	}
	c.loginFailures.Add(1)
}

// IdleKick records a session closed for inactivity.
func (c *Collector) IdleKick() {
	if c == nil {
		return
	}
	c.idleKicks.Add(1)
}

// RoomPost records a message fanned out to a room.
func (c *Collector) RoomPost() {
	if c == nil {
		return
	}
	c.roomPosts.Add(1)
}

// Whisper records a private message.
func (c *Collector) Whisper() {
	if c == nil {
		return
	}
	c.whispers.Add(1)
}

// Dropped records a line that could not be queued for a slow client.
func (c *Collector) Dropped() {
	if c == nil {
		return
	}
	c.dropped.Add(1)
}

// Logins returns the number of successful logins.
func (c *Collector) Logins() int64 {
	if c == nil {
		return 0
	}
	return c.logins.Load()
}

// LoginFailures returns the number of rejected name attempts.
func (c *Collector) LoginFailures() int64 {
	if c == nil {
		return 0
	}
	return c.loginFailures.Load()
}

// IdleKicks returns the number of idle disconnects.
func (c *Collector) IdleKicks() int64 {
	if c == nil {
		return 0
	}
	return c.idleKicks.Load()
}

// DroppedLines returns the number of lines lost to full outboxes.
func (c *Collector) DroppedLines() int64 {
	if c == nil {
		return 0
	}
	return c.dropped.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	Logins            int64  `json:"logins"`
	LoginFailures     int64  `json:"login_failures"`
	IdleKicks         int64  `json:"idle_kicks"`
	RoomPosts         int64  `json:"room_posts"`
	Whispers          int64  `json:"whispers"`
	Dropped           int64  `json:"dropped"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		Logins:            c.logins.Load(),
		LoginFailures:     c.loginFailures.Load(),
		IdleKicks:         c.idleKicks.Load(),
		RoomPosts:         c.roomPosts.Load(),
		Whispers:          c.whispers.Load(),
		Dropped:           c.dropped.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
