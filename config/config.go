// Package config defines the runtime configuration for chatd: which
// listeners to open, session limits, and process-level switches.
package config

import (
	"fmt"
	"strings"
	"time"

	ncerr "chatd/internal/errors"
	"chatd/util"
)

// Config holds every tuneable for a chatd process.
type Config struct {
	// ── Listeners ────────────────────────────────────────────────────
	Host           string   // bind host ("" = all interfaces)
	Port           int      // plain TCP chat port
	SSHPort        int      // 0 = SSH listener disabled
	SSHHostKey     string   // PEM private key; ephemeral when empty
	HTTPPort       int      // 0 = WebSocket/stats listener disabled
	AllowedOrigins []string // WebSocket origin allow-list ("*" = any)

	// ── Sessions ─────────────────────────────────────────────────────
	IdleTimeout   time.Duration
	LoginAttempts int
	MaxNameLen    int
	MaxRoomLen    int
	MaxLineLen    int
	OutboxSize    int
	WriteTimeout  time.Duration
	Rate          float64 // lines per second; 0 disables flood control
	Burst         int

	// ── Client ───────────────────────────────────────────────────────
	Connect string // host:port; selects the thin client

	// ── Process ──────────────────────────────────────────────────────
	EnvFile     string
	Profile     string // "", "cpu" or "mem"
	GracePeriod time.Duration
	Verbose     int
	DryRun      bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Port:          DefaultPort,
		IdleTimeout:   DefaultIdleTimeout,
		LoginAttempts: DefaultLoginAttempts,
		MaxNameLen:    DefaultMaxNameLen,
		MaxRoomLen:    DefaultMaxRoomLen,
		MaxLineLen:    DefaultMaxLineLen,
		OutboxSize:    DefaultOutboxSize,
		WriteTimeout:  DefaultWriteTimeout,
		Rate:          DefaultRate,
		Burst:         DefaultBurst,
		GracePeriod:   DefaultGracePeriod,
		Verbose:       1,
	}
}

// ClientMode reports whether the process runs the thin client rather
// than the broker.
func (c *Config) ClientMode() bool { return c.Connect != "" }

// ParseOrigins splits a comma-separated origin list, dropping blanks.
func ParseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ClientMode() {
		if _, _, err := util.SplitAddr(c.Connect); err != nil {
			return &ncerr.ConfigError{
				Field: "connect", Value: c.Connect,
				Message: err.Error(),
				Hint:    "use host:port, e.g. --connect chat.example.com:4919",
			}
		}
		return nil
	}

	if err := checkPort("port", c.Port, false); err != nil {
		return err
	}
	if err := checkPort("ssh-port", c.SSHPort, true); err != nil {
		return err
	}
	if err := checkPort("http-port", c.HTTPPort, true); err != nil {
		return err
	}
	if c.SSHPort != 0 && (c.SSHPort == c.Port || c.SSHPort == c.HTTPPort) {
		return &ncerr.ConfigError{
			Field: "ssh-port", Value: c.SSHPort,
			Message: "collides with another listener",
		}
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.Port {
		return &ncerr.ConfigError{
			Field: "http-port", Value: c.HTTPPort,
			Message: "collides with the chat port",
		}
	}

	if c.IdleTimeout <= 0 {
		return &ncerr.ConfigError{
			Field: "idle-timeout", Value: c.IdleTimeout,
			Message: "must be positive",
			Hint:    "durations look like 90s or 5m",
		}
	}
	if c.LoginAttempts < 1 {
		return &ncerr.ConfigError{
			Field: "login-attempts", Value: c.LoginAttempts,
			Message: "must be at least 1",
		}
	}
	if c.MaxNameLen < 1 || c.MaxNameLen > 64 {
		return &ncerr.ConfigError{
			Field: "max-name", Value: c.MaxNameLen,
			Message: "out of range 1-64",
		}
	}
	if c.MaxRoomLen < 1 || c.MaxRoomLen > 64 {
		return &ncerr.ConfigError{
			Field: "max-room", Value: c.MaxRoomLen,
			Message: "out of range 1-64",
		}
	}
	if c.MaxLineLen < 64 || c.MaxLineLen > 65536 {
		return &ncerr.ConfigError{
			Field: "max-line", Value: c.MaxLineLen,
			Message: "out of range 64-65536",
		}
	}
	if c.OutboxSize < 1 {
		return &ncerr.ConfigError{
			Field: "outbox", Value: c.OutboxSize,
			Message: "must be at least 1",
		}
	}
	if c.Rate < 0 {
		return &ncerr.ConfigError{
			Field: "rate", Value: c.Rate,
			Message: "must not be negative",
			Hint:    "use --rate 0 to disable flood control",
		}
	}
	if c.Rate > 0 && c.Burst < 1 {
		return &ncerr.ConfigError{
			Field: "burst", Value: c.Burst,
			Message: "must be at least 1 when --rate is set",
		}
	}
	switch c.Profile {
	case "", "cpu", "mem":
	default:
		return &ncerr.ConfigError{
			Field: "profile", Value: c.Profile,
			Message: "unknown profile",
			Hint:    "use cpu or mem",
		}
	}
	return nil
}

func checkPort(field string, port int, optional bool) error {
	if optional && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return &ncerr.ConfigError{
			Field: field, Value: port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the chat port defaults to %d", DefaultPort),
		}
	}
	return nil
}
