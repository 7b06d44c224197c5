package config

import (
	"strings"
	"testing"
	"time"

	ncerr "chatd/internal/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Port != 4919 {
		t.Errorf("Port = %d, want 4919", cfg.Port)
	}
	if cfg.ClientMode() {
		t.Error("default config should run the broker")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string // expected ConfigError field, "" for valid
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Port = 0 }, "port"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port"},
		{"ssh disabled", func(c *Config) { c.SSHPort = 0 }, ""},
		{"ssh enabled", func(c *Config) { c.SSHPort = 2222 }, ""},
		{"ssh out of range", func(c *Config) { c.SSHPort = -1 }, "ssh-port"},
		{"ssh collides", func(c *Config) { c.SSHPort = c.Port }, "ssh-port"},
		{"http collides", func(c *Config) { c.HTTPPort = c.Port }, "http-port"},
		{"ssh collides http", func(c *Config) { c.SSHPort, c.HTTPPort = 8080, 8080 }, "ssh-port"},
		{"idle zero", func(c *Config) { c.IdleTimeout = 0 }, "idle-timeout"},
		{"idle short", func(c *Config) { c.IdleTimeout = time.Second }, ""},
		{"no login attempts", func(c *Config) { c.LoginAttempts = 0 }, "login-attempts"},
		{"name too long", func(c *Config) { c.MaxNameLen = 65 }, "max-name"},
		{"room zero", func(c *Config) { c.MaxRoomLen = 0 }, "max-room"},
		{"line tiny", func(c *Config) { c.MaxLineLen = 10 }, "max-line"},
		{"outbox zero", func(c *Config) { c.OutboxSize = 0 }, "outbox"},
		{"rate negative", func(c *Config) { c.Rate = -1 }, "rate"},
		{"rate without burst", func(c *Config) { c.Burst = 0 }, "burst"},
		{"rate off no burst", func(c *Config) { c.Rate, c.Burst = 0, 0 }, ""},
		{"profile cpu", func(c *Config) { c.Profile = "cpu" }, ""},
		{"profile bogus", func(c *Config) { c.Profile = "gpu" }, "profile"},
		{"client ok", func(c *Config) { c.Connect = "chat.example.com:4919" }, ""},
		{"client ignores server limits", func(c *Config) { c.Connect = "localhost:4919"; c.Port = 0 }, ""},
		{"client bad addr", func(c *Config) { c.Connect = "localhost:99999" }, "connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *ncerr.ConfigError
			if !ncerr.As(err, &ce) {
				t.Fatalf("want ConfigError for %s, got %v", tt.field, err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestValidate_HintMentionsDefaultPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "4919") {
		t.Errorf("hint should mention the default port, got %v", err)
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"*", []string{"*"}},
		{"https://a.example,https://b.example", []string{"https://a.example", "https://b.example"}},
		{" https://a.example , ,", []string{"https://a.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseOrigins(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
