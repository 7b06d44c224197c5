package core

import (
	"fmt"

	"chatd/config"
	"chatd/internal/capability"
	"chatd/internal/chat"
	"chatd/internal/metrics"
	"chatd/internal/retry"
	"chatd/internal/transport"
	"chatd/util"
)

// Build constructs the appropriate Mode from the given configuration.
// Serving opens every configured listener immediately so that bind
// errors surface before Run.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.ClientMode() {
		return buildConnect(cfg, logger), nil
	}
	return buildServe(cfg, logger)
}

func buildConnect(cfg *config.Config, logger *util.Logger) Mode {
	return &ConnectMode{
		Dialer:  &transport.TCPDialer{Timeout: config.DefaultConnTimeout},
		Address: cfg.Connect,
		Backoff: retry.DefaultBackoff(),
		Logger:  logger,
	}
}

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	m := metrics.New()
	dir := chat.NewDirectory(logger, m)

	listeners, err := buildListeners(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	return &ServeMode{
		Listeners:   listeners,
		Capability:  capability.NewChat(cfg, dir, logger, m),
		Directory:   dir,
		Metrics:     m,
		Logger:      logger,
		GracePeriod: cfg.GracePeriod,
		Backoff:     retry.AcceptBackoff(),
	}, nil
}

// buildListeners opens the TCP listener plus the optional SSH and
// WebSocket ones.  On failure every listener already opened is closed.
func buildListeners(cfg *config.Config, logger *util.Logger, m *metrics.Collector) ([]transport.Listener, error) {
	var out []transport.Listener
	fail := func(err error) ([]transport.Listener, error) {
		for _, ln := range out {
			ln.Close()
		}
		return nil, err
	}

	tcp, err := transport.ListenTCP(util.FormatAddr(cfg.Host, cfg.Port))
	if err != nil {
		return fail(fmt.Errorf("chat listener: %w", err))
	}
	out = append(out, tcp)

	if cfg.SSHPort != 0 {
		ssh, err := transport.ListenSSH(util.FormatAddr(cfg.Host, cfg.SSHPort), cfg.SSHHostKey, logger)
		if err != nil {
			return fail(fmt.Errorf("ssh listener: %w", err))
		}
		out = append(out, ssh)
	}

	if cfg.HTTPPort != 0 {
		ws, err := transport.ListenWebSocket(util.FormatAddr(cfg.Host, cfg.HTTPPort), transport.WebSocketOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			Stats:          m.JSON,
			MaxLineLen:     cfg.MaxLineLen,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("http listener: %w", err))
		}
		out = append(out, ws)
	}
	return out, nil
}
