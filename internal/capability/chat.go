package capability

import (
	"context"

	"chatd/config"
	"chatd/internal/chat"
	"chatd/internal/metrics"
	"chatd/internal/session"
	"chatd/internal/transport"
	"chatd/util"
)

// Chat serves one chat client against the shared Directory.
type Chat struct {
	Directory *chat.Directory
	Options   session.Options
	Logger    *util.Logger
	Metrics   *metrics.Collector
}

// NewChat builds the chat capability from the broker configuration.
func NewChat(cfg *config.Config, dir *chat.Directory, logger *util.Logger, m *metrics.Collector) *Chat {
	return &Chat{
		Directory: dir,
		Options:   SessionOptions(cfg),
		Logger:    logger,
		Metrics:   m,
	}
}

// SessionOptions extracts the per-session limits from cfg.
func SessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		IdleTimeout:   cfg.IdleTimeout,
		LoginAttempts: cfg.LoginAttempts,
		MaxNameLen:    cfg.MaxNameLen,
		MaxRoomLen:    cfg.MaxRoomLen,
		MaxLineLen:    cfg.MaxLineLen,
		OutboxSize:    cfg.OutboxSize,
		WriteTimeout:  cfg.WriteTimeout,
		Rate:          cfg.Rate,
		Burst:         cfg.Burst,
	}
}

// Handle runs a session until the client leaves.
func (c *Chat) Handle(ctx context.Context, conn transport.Conn) error {
	return session.New(conn, c.Directory, c.Options, c.Logger, c.Metrics).Run(ctx)
}
