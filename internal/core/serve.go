package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatd/internal/capability"
	"chatd/internal/chat"
	ncerr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/internal/retry"
	"chatd/internal/transport"
	"chatd/util"
)

// ServeMode runs the broker: it accepts clients on every listener and
// runs the capability on each one in its own goroutine.
type ServeMode struct {
	Listeners   []transport.Listener
	Capability  capability.Capability
	Directory   *chat.Directory
	Metrics     *metrics.Collector
	Logger      *util.Logger
	GracePeriod time.Duration

	// Backoff paces retries of temporary accept errors.  Defaults to
	// retry.AcceptBackoff.
	Backoff *retry.Backoff
	// Breaker is the per-listener circuit policy.  Defaults to
	// retry.AcceptBreakerConfig.
	Breaker *retry.BreakerConfig
}

// Run serves until ctx is cancelled or a listener fails.  On the way
// out every client is told the server is shutting down and its session
// is kicked; Run waits up to GracePeriod for the sessions to finish.
func (m *ServeMode) Run(ctx context.Context) error {
	if len(m.Listeners) == 0 {
		return fmt.Errorf("serve: no listeners configured")
	}
	if m.Backoff == nil {
		m.Backoff = retry.AcceptBackoff()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Sessions get their own context so they outlive the accept loops
	// long enough to hear the shutdown notice.
	sessCtx, kickAll := context.WithCancel(context.Background())
	defer kickAll()

	var (
		sessions sync.WaitGroup
		loops    sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for _, ln := range m.Listeners {
		m.Logger.Info("listening on %s (%s)", ln.Addr(), ln.Name())
		loops.Add(1)
		go func(ln transport.Listener) {
			defer loops.Done()
			if err := m.acceptLoop(ctx, sessCtx, ln, &sessions); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				cancel()
			}
		}(ln)
	}

	<-ctx.Done()
	for _, ln := range m.Listeners {
		ln.Close()
	}
	loops.Wait()

	m.shutdown(kickAll, &sessions)
	return firstErr
}

func (m *ServeMode) acceptLoop(ctx, sessCtx context.Context, ln transport.Listener, sessions *sync.WaitGroup) error {
	breaker := m.newBreaker(ln)
	failures := 0
	for {
		var conn transport.Conn
		err := breaker.Execute(func() error {
			c, err := ln.Accept(ctx)
			conn = c
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, retry.ErrCircuitOpen) {
				m.Logger.Debug("accept on %s: circuit %s after %d failures; waiting %s",
					ln.Addr(), breaker.CurrentState(), breaker.Failures(), breaker.RetryIn().Round(time.Millisecond))
				if pause(ctx, breaker.RetryIn()) != nil {
					return nil
				}
				continue
			}
			if ncerr.IsRetryable(err) {
				failures++
				m.Logger.Verbose("accept on %s: %v; retrying", ln.Addr(), err)
				if m.Backoff.Wait(ctx, failures) != nil {
					return nil
				}
				continue
			}
			return fmt.Errorf("accept on %s (%s): %w", ln.Addr(), ln.Name(), err)
		}
		failures = 0

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			m.serveConn(sessCtx, ln.Name(), conn)
		}()
	}
}

// newBreaker builds the circuit for one listener, logging transitions.
func (m *ServeMode) newBreaker(ln transport.Listener) *retry.Breaker {
	cfg := retry.AcceptBreakerConfig()
	if m.Breaker != nil {
		c := *m.Breaker
		cfg = &c
	}
	hook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to retry.State) {
		if to == retry.StateOpen {
			m.Logger.Warn("accept on %s keeps failing; pausing %s", ln.Addr(), cfg.Cooldown)
		} else {
			m.Logger.Verbose("accept circuit on %s: %s -> %s", ln.Addr(), from, to)
		}
		if hook != nil {
			hook(from, to)
		}
	}
	return retry.NewBreaker(cfg)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *ServeMode) serveConn(ctx context.Context, via string, conn transport.Conn) {
	m.Metrics.ConnectionOpened()
	defer m.Metrics.ConnectionClosed()

	log := m.Logger.WithFields(util.Fields{"remote": conn.RemoteAddr().String(), "via": via})
	log.Verbose("connection accepted")

	err := m.Capability.Handle(ctx, conn)
	switch {
	case err == nil:
	case ncerr.Is(err, ncerr.ErrIdleTimeout), ncerr.Is(err, ncerr.ErrLoginExhausted):
		log.Verbose("session ended: %v", err)
	default:
		m.Metrics.RecordError(err.Error())
		log.Warn("session ended: %v", err)
	}
}

func (m *ServeMode) shutdown(kickAll context.CancelFunc, sessions *sync.WaitGroup) {
	users := m.Directory.Count()
	m.Logger.Info("shutting down, disconnecting %d users", users)
	m.Directory.Broadcast("Server is shutting down.")
	m.Directory.Shutdown("server shutdown")
	kickAll()

	done := make(chan struct{})
	go func() {
		sessions.Wait()
		close(done)
	}()
	grace := m.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		m.Logger.Warn("sessions still running after %s grace period", grace)
	}
	m.Logger.Verbose("final stats:\n%s", m.Metrics.JSON())
}
