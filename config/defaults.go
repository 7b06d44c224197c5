package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, dotenv files, and environment variable loading.

const (
	// DefaultPort is the plain-TCP chat port (0x1337).
	DefaultPort = 4919

	// DefaultIdleTimeout is how long a session may stay silent before
	// it is disconnected.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultLoginAttempts is how many bad or taken names a client may
	// submit before the connection is closed.
	DefaultLoginAttempts = 5

	// DefaultMaxNameLen bounds user names.
	DefaultMaxNameLen = 30

	// DefaultMaxRoomLen bounds room names.
	DefaultMaxRoomLen = 30

	// DefaultMaxLineLen is the longest line accepted before the
	// session is torn down for a protocol violation.
	DefaultMaxLineLen = 1024

	// DefaultOutboxSize is how many lines may queue for one client
	// before further deliveries to it are dropped.
	DefaultOutboxSize = 64

	// DefaultWriteTimeout bounds a single write to a client.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultRate and DefaultBurst shape per-session flood control.
	DefaultRate  = 5.0
	DefaultBurst = 10

	// DefaultConnTimeout is the thin client's dial timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for sessions to
	// finish their teardown.
	DefaultGracePeriod = 5 * time.Second
)
