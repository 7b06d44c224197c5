package config

// loader.go - configuration loading from the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables, including an optional dotenv file
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the CHATD_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("90s", "5m") or a bare number of seconds.

// LoadEnvFile reads KEY=VALUE pairs from path into the process
// environment.  Variables that are already set are left untouched, so
// the real environment wins over the file.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// parseable env vars override the existing value.  explicit reports
// whether the CLI flag of the given name was set by the user; those
// fields are skipped so flags take precedence.  A nil explicit
// overrides everything.
func LoadFromEnv(cfg *Config, explicit func(flag string) bool) {
	skip := func(flag string) bool { return explicit != nil && explicit(flag) }

	if v := os.Getenv("CHATD_HOST"); v != "" && !skip("host") {
		cfg.Host = v
	}
	if v := envInt("CHATD_PORT"); v > 0 && !skip("port") {
		cfg.Port = v
	}
	if v := envInt("CHATD_SSH_PORT"); v > 0 && !skip("ssh-port") {
		cfg.SSHPort = v
	}
	if v := os.Getenv("CHATD_SSH_HOST_KEY"); v != "" && !skip("ssh-host-key") {
		cfg.SSHHostKey = v
	}
	if v := envInt("CHATD_HTTP_PORT"); v > 0 && !skip("http-port") {
		cfg.HTTPPort = v
	}
	if v := os.Getenv("CHATD_ALLOWED_ORIGINS"); v != "" && !skip("allowed-origins") {
		cfg.AllowedOrigins = ParseOrigins(v)
	}

	// Sessions
	if v := envDuration("CHATD_IDLE_TIMEOUT"); v > 0 && !skip("idle-timeout") {
		cfg.IdleTimeout = v
	}
	if v := envInt("CHATD_LOGIN_ATTEMPTS"); v > 0 && !skip("login-attempts") {
		cfg.LoginAttempts = v
	}
	if v := envInt("CHATD_MAX_NAME"); v > 0 && !skip("max-name") {
		cfg.MaxNameLen = v
	}
	if v := envInt("CHATD_MAX_ROOM"); v > 0 && !skip("max-room") {
		cfg.MaxRoomLen = v
	}
	if v := envInt("CHATD_MAX_LINE"); v > 0 && !skip("max-line") {
		cfg.MaxLineLen = v
	}
	if v := envInt("CHATD_OUTBOX"); v > 0 && !skip("outbox") {
		cfg.OutboxSize = v
	}
	if v := envDuration("CHATD_WRITE_TIMEOUT"); v > 0 && !skip("write-timeout") {
		cfg.WriteTimeout = v
	}
	if v, ok := envFloat("CHATD_RATE"); ok && !skip("rate") {
		cfg.Rate = v
	}
	if v := envInt("CHATD_BURST"); v > 0 && !skip("burst") {
		cfg.Burst = v
	}

	// Client
	if v := os.Getenv("CHATD_CONNECT"); v != "" && !skip("connect") {
		cfg.Connect = v
	}

	// Process
	if v := os.Getenv("CHATD_PROFILE"); v != "" && !skip("profile") {
		cfg.Profile = v
	}
	if v := envDuration("CHATD_GRACE_PERIOD"); v > 0 && !skip("grace-period") {
		cfg.GracePeriod = v
	}
	if v := envInt("CHATD_VERBOSE"); v > 0 && !skip("verbose") {
		cfg.Verbose = v
	}
	if envBool("CHATD_DRY_RUN") && !skip("dry-run") {
		cfg.DryRun = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
