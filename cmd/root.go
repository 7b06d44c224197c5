// Package cmd wires up the CLI flags and dispatches to the chatd core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/profile"
	flag "github.com/spf13/pflag"

	"chatd/config"
	"chatd/internal/core"
	"chatd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X chatd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --help, --version and --dry-run output.  Tests swap it.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the broker or the thin client.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	fs := flag.NewFlagSet("chatd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── listeners ────────────────────────────────────────────────
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind address (all interfaces if empty)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Chat port (plain TCP)")
	fs.IntVar(&cfg.SSHPort, "ssh-port", 0, "Serve chat over SSH on this port (0 = off)")
	fs.StringVar(&cfg.SSHHostKey, "ssh-host-key", "", "SSH host key file (ephemeral if empty)")
	fs.IntVar(&cfg.HTTPPort, "http-port", 0, "Serve WebSocket chat and /stats on this port (0 = off)")
	var origins string
	fs.StringVar(&origins, "allowed-origins", "", "Comma-separated WebSocket origins (* = any)")

	// ── sessions ─────────────────────────────────────────────────
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Disconnect clients idle for this long")
	fs.IntVar(&cfg.LoginAttempts, "login-attempts", cfg.LoginAttempts, "Name attempts before disconnect")
	fs.IntVar(&cfg.MaxNameLen, "max-name", cfg.MaxNameLen, "Maximum user name length")
	fs.IntVar(&cfg.MaxRoomLen, "max-room", cfg.MaxRoomLen, "Maximum room name length")
	fs.IntVar(&cfg.MaxLineLen, "max-line", cfg.MaxLineLen, "Maximum input line length in bytes")
	fs.IntVar(&cfg.OutboxSize, "outbox", cfg.OutboxSize, "Lines queued per client before dropping")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Disconnect clients that stop reading for this long")
	fs.Float64Var(&cfg.Rate, "rate", cfg.Rate, "Lines per second per client (0 = unlimited)")
	fs.IntVar(&cfg.Burst, "burst", cfg.Burst, "Flood control burst size")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Connect, "connect", "c", "", "Connect to a broker at host:port instead of serving")

	// ── process ──────────────────────────────────────────────────
	fs.StringVar(&cfg.EnvFile, "env-file", "", "Load CHATD_* variables from a dotenv file")
	fs.StringVar(&cfg.Profile, "profile", "", "Write a cpu or mem profile to the working directory")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Time to let sessions finish on shutdown")
	var verbosity int
	var quiet bool
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Log errors only")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "chatd %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}
	if fs.Changed("verbose") {
		cfg.Verbose = 1 + verbosity
	}
	if fs.Changed("allowed-origins") {
		cfg.AllowedOrigins = config.ParseOrigins(origins)
	}

	// ── environment ──────────────────────────────────────────────
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	config.LoadFromEnv(cfg, fs.Changed)
	if quiet {
		cfg.Verbose = 0
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		printConfig(cfg)
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// startProfile begins the requested profile and returns its stop func.
func startProfile(kind string) func() {
	var mode func(*profile.Profile)
	switch kind {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	default:
		return nil
	}
	p := profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook)
	return p.Stop
}

func printConfig(cfg *config.Config) {
	if cfg.ClientMode() {
		fmt.Fprintf(stdout, "mode: client\nconnect: %s\n", cfg.Connect)
		return
	}
	fmt.Fprintf(stdout, "mode: serve\nchat: %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	if cfg.SSHPort != 0 {
		fmt.Fprintf(stdout, "ssh: %s\n", util.FormatAddr(cfg.Host, cfg.SSHPort))
	}
	if cfg.HTTPPort != 0 {
		fmt.Fprintf(stdout, "http: %s\n", util.FormatAddr(cfg.Host, cfg.HTTPPort))
		if len(cfg.AllowedOrigins) > 0 {
			fmt.Fprintf(stdout, "allowed origins: %s\n", strings.Join(cfg.AllowedOrigins, ", "))
		}
	}
	fmt.Fprintf(stdout, "idle timeout: %s\nlogin attempts: %d\nmax name: %d\nmax room: %d\nmax line: %d\n",
		cfg.IdleTimeout, cfg.LoginAttempts, cfg.MaxNameLen, cfg.MaxRoomLen, cfg.MaxLineLen)
	if cfg.Rate > 0 {
		fmt.Fprintf(stdout, "flood control: %g lines/s, burst %d\n", cfg.Rate, cfg.Burst)
	} else {
		fmt.Fprintln(stdout, "flood control: off")
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `chatd - Multi-user Text Chat Broker v%s

Usage:
  chatd [options]                             Serve on port %d
  chatd -c <host:port>                        Connect as a client

Options:
`, version, config.DefaultPort)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	fmt.Fprintf(stdout, `
Environment:
  Every option except --env-file can also be set as CHATD_<NAME>,
  e.g. CHATD_PORT=5000 or CHATD_IDLE_TIMEOUT=2m.  Flags win.

Examples:
  chatd                                       Serve on :%d
  chatd --ssh-port 2222 --http-port 8080      Also serve SSH and WebSocket
  chatd -c chat.example.com:%d                Join a broker
  telnet localhost %d                         Any line-based client works
`, config.DefaultPort, config.DefaultPort, config.DefaultPort)
}
