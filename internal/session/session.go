// Package session runs one client connection through its lifecycle:
// login, the command loop, and teardown.
//
// A Session owns its transport exclusively.  Everything that affects
// other clients goes through the shared chat.Directory, and everything
// written to this client goes through the session's outbox.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chatd/internal/chat"
	ncerr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/internal/transport"
	"chatd/util"
)

// State is a session's position in its lifecycle.
type State int32

const (
	Connecting State = iota
	LoggingIn
	Active
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case LoggingIn:
		return "logging-in"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options bounds what a session tolerates from its client.
type Options struct {
	IdleTimeout   time.Duration
	LoginAttempts int
	MaxNameLen    int
	MaxRoomLen    int
	MaxLineLen    int
	OutboxSize    int
	WriteTimeout  time.Duration
	Rate          float64 // lines per second; 0 disables flood control
	Burst         int
}

// Session is one connected client.  It implements chat.Member.
type Session struct {
	conn    transport.Conn
	dir     *chat.Directory
	opts    Options
	logger  *util.Logger
	metrics *metrics.Collector

	reader  *lineReader
	out     *outbox
	limiter *rate.Limiter

	state atomic.Int32
	done  atomic.Bool

	mu           sync.Mutex
	name         string
	room         string
	lastActivity time.Time
	kickReason   string

	registered bool // touched only by the session goroutine
	teardown   sync.Once
}

// New prepares a session for conn.  The writer goroutine starts
// immediately; call Run to drive the session.
func New(conn transport.Conn, dir *chat.Directory, opts Options, logger *util.Logger, m *metrics.Collector) *Session {
	addr := conn.RemoteAddr().String()
	s := &Session{
		conn:         conn,
		dir:          dir,
		opts:         opts,
		logger:       logger.WithFields(util.Fields{"remote": addr}),
		metrics:      m,
		lastActivity: time.Now(),
	}
	s.reader = newLineReader(conn, opts.MaxLineLen, addr)
	s.reader.arm = s.armRead
	s.reader.touch = s.touch
	log := s.logger
	s.out = newOutbox(conn, opts.OutboxSize, opts.WriteTimeout, m, func(err error) {
		log.Verbose("write failed: %v", err)
		s.Kick("write failed")
	})
	if opts.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
	}
	return s
}

// Run logs the client in and serves commands until the client quits,
// idles out, breaks the protocol, loses its transport, or ctx is
// cancelled.  Teardown is complete when Run returns.  Ordinary
// endings (quit, hang-up, kick) return nil.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Kick("server shutdown") })
	defer stop()

	s.setState(LoggingIn)
	err := s.login()
	if err == nil {
		err = s.loop()
	}
	s.close(err)

	switch {
	case err == nil, ncerr.Is(err, ncerr.ErrQuit), ncerr.Is(err, io.EOF),
		ncerr.Is(err, ncerr.ErrSessionClosed), ncerr.IsClosed(err):
		return nil
	}
	return err
}

// ── chat.Member ──────────────────────────────────────────────────────

// Name returns the display name, empty before login.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Room returns the room the session occupies.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// SetRoom is called by the Directory as the last step of a room switch.
func (s *Session) SetRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// Deliver queues line for the client without blocking.
func (s *Session) Deliver(line string) bool {
	if s.done.Load() {
		return false
	}
	return s.out.enqueue(line)
}

// Kick interrupts the session's read so it tears down.  The first
// reason wins.
func (s *Session) Kick(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kickReason == "" {
		s.kickReason = reason
	}
	s.conn.SetReadDeadline(time.Now()) //nolint:errcheck
}

// ── accessors ────────────────────────────────────────────────────────

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// LastActivity returns when the client last sent data.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("state %s", st)
}

// ── I/O ──────────────────────────────────────────────────────────────

// send queues one line for this client.
func (s *Session) send(line string) {
	if !s.out.enqueue(line) {
		s.metrics.Dropped()
		s.logger.Verbose("reply dropped: outbox full")
	}
}

func (s *Session) sendf(format string, args ...interface{}) {
	s.send(fmt.Sprintf(format, args...))
}

// armRead runs before every raw read.  Holding mu orders it against
// Kick: either the kick is seen here, or its deadline lands after ours.
func (s *Session) armRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kickReason != "" {
		return fmt.Errorf("%w: %s", ncerr.ErrSessionClosed, s.kickReason)
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
}

func (s *Session) touch(n int) {
	s.metrics.BytesReceived(int64(n))
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) kicked() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kickReason
}

// readLine returns the next non-blank line.  A read deadline expiry is
// either a kick or the idle timeout.
func (s *Session) readLine() (string, error) {
	for {
		line, err := s.reader.next()
		if err == nil {
			if isBlank(line) {
				continue
			}
			return line, nil
		}
		if !ncerr.IsTimeout(err) {
			return "", err
		}
		if reason := s.kicked(); reason != "" {
			return "", fmt.Errorf("%w: %s", ncerr.ErrSessionClosed, reason)
		}
		s.metrics.IdleKick()
		s.logger.Warn("idle for %s, disconnecting", s.opts.IdleTimeout)
		s.sendf("Disconnected after %s of inactivity.", s.opts.IdleTimeout)
		return "", ncerr.ErrIdleTimeout
	}
}

func isBlank(line string) bool {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' {
			return false
		}
	}
	return true
}

// ── lifecycle ────────────────────────────────────────────────────────

// close runs teardown exactly once: release the name and room, flush
// what is queued, then release the transport.
func (s *Session) close(cause error) {
	s.teardown.Do(func() {
		s.done.Store(true)
		if !ncerr.Is(cause, ncerr.ErrLoginExhausted) {
			s.setState(Closing)
		}
		if s.registered {
			s.dir.Unregister(s.Name())
			s.registered = false
		}
		if !s.out.close(s.opts.WriteTimeout + time.Second) {
			s.logger.Verbose("outbox not drained before close")
		}
		s.conn.Close()
		s.reader.release()
		s.setState(Closed)

		switch {
		case cause == nil, ncerr.Is(cause, ncerr.ErrQuit):
			s.logger.Verbose("session closed")
		case ncerr.Is(cause, io.EOF), ncerr.IsClosed(cause):
			s.logger.Verbose("client disconnected")
		default:
			s.logger.Verbose("session closed: %v", cause)
		}
	})
}
