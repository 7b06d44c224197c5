package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker is
// refusing calls.
var ErrCircuitOpen = errors.New("circuit open")

// State is the position of a [Breaker].
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen refuses calls until the cooldown has elapsed.
	StateOpen
	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BreakerConfig configures a [Breaker].
type BreakerConfig struct {
	// Threshold is the run of consecutive failures that opens the
	// breaker (default 16).
	Threshold int
	// Cooldown is how long the breaker stays open (default 2s).
	Cooldown time.Duration
	// Probes is the run of half-open successes that closes it again
	// (default 1).
	Probes int
	// OnStateChange runs under the breaker's lock on every transition.
	OnStateChange func(from, to State)
}

// AcceptBreakerConfig is the policy for listeners: an accept loop that
// keeps failing sits out a short cooldown instead of spinning.
func AcceptBreakerConfig() *BreakerConfig {
	return &BreakerConfig{Threshold: 16, Cooldown: 2 * time.Second, Probes: 1}
}

// Breaker stops calling an operation that keeps failing.  It is safe
// for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	threshold int
	cooldown  time.Duration
	probes    int
	onChange  func(from, to State)
}

// NewBreaker returns a closed Breaker.  A nil cfg uses
// [AcceptBreakerConfig].
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = AcceptBreakerConfig()
	}
	b := &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
		onChange:  cfg.OnStateChange,
	}
	if b.threshold <= 0 {
		b.threshold = 16
	}
	if b.cooldown <= 0 {
		b.cooldown = 2 * time.Second
	}
	if b.probes <= 0 {
		b.probes = 1
	}
	return b
}

// Execute calls fn unless the breaker is open, in which case it returns
// an error wrapping [ErrCircuitOpen] without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if wait := b.admit(); wait > 0 {
		return fmt.Errorf("%w: retry in %v", ErrCircuitOpen, wait.Round(time.Millisecond))
	}
	err := fn()
	b.record(err)
	return err
}

// RetryIn returns how long the breaker will keep refusing calls; zero
// when it is not open.
func (b *Breaker) RetryIn() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining()
}

// CurrentState returns the breaker's position.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// ── internal (callers hold b.mu unless noted) ────────────────────────

func (b *Breaker) remaining() time.Duration {
	if b.state != StateOpen {
		return 0
	}
	if left := b.cooldown - time.Since(b.openedAt); left > 0 {
		return left
	}
	return 0
}

// admit takes the lock itself.
func (b *Breaker) admit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	if left := b.remaining(); left > 0 {
		return left
	}
	b.successes = 0
	b.moveTo(StateHalfOpen)
	return 0
}

// record takes the lock itself.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			b.openedAt = time.Now()
			b.moveTo(StateOpen)
		}
		return
	}

	b.successes++
	switch b.state {
	case StateHalfOpen:
		if b.successes >= b.probes {
			b.failures = 0
			b.moveTo(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
