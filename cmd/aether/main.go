// Command aether mirrors an Aether campaign: it keeps a local projection of
// the character sheet in sync with the campaign server and issues host or
// player commands from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/aether/internal/app"
	"github.com/MrWong99/aether/internal/config"
	"github.com/MrWong99/aether/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "aether.yaml", "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	name := "run"
	args := flag.Args()
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}

	// Offline commands need no configuration.
	switch name {
	case "replay":
		return replay(args)
	case "help", "-h", "--help":
		usage()
		return exitOK
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aether: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aether: %v\n", err)
		}
		return exitError
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if name == "run" {
		return serve(ctx, *configPath, cfg, level)
	}
	return oneShot(ctx, cfg, level, name, args)
}

// serve runs the mirror daemon until a signal arrives or the stream gives up.
func serve(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar) int {
	slog.Info("aether starting",
		"version", version,
		"config", configPath,
		"base_url", cfg.Remote.BaseURL,
		"role", cfg.Remote.Role,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		ServerURL:        cfg.Remote.BaseURL,
		Role:             string(cfg.Remote.Role),
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
		Registry:         reg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitError
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithLogLevel(level),
		app.WithPrometheusRegistry(reg),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(configPath, application.ApplyConfig,
		config.WithErrorHandler(func(err error) {
			slog.Warn("config reload rejected, keeping previous config", "err", err)
		}),
	)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		wctx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go func() { _ = watcher.Run(wctx) }()
	}

	slog.Info("mirror ready, press Ctrl+C to shut down")

	code := exitOK
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = exitError
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitError
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	journal := cfg.Journal.Name
	if journal == "" {
		journal = "(disabled)"
	}
	listen := cfg.Server.ListenAddr
	if !cfg.StatusServerEnabled() {
		listen = "(disabled)"
	}
	reconnect := "off"
	if cfg.Stream.ReconnectEnabled() {
		reconnect = fmt.Sprintf("on, %d retries", cfg.Stream.MaxRetries)
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Aether: startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Server", cfg.Remote.BaseURL)
	printRow("Role", string(cfg.Remote.Role))
	printRow("Reconnect", reconnect)
	printRow("Journal", journal)
	printRow("Status addr", listen)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: aether [-config FILE] [COMMAND] [ARGS]

Commands:
  run                           keep the projection in sync (default)
%s  export [FILE]                 download the campaign (stdout when no file)
  import FILE                   replace the campaign on the server
  replay SNAPSHOT [JOURNAL]     rebuild a projection offline and print it

Flags:
`, commandHelp())
	flag.PrintDefaults()
}
