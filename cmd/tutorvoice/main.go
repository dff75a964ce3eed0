// Command tutorvoice is a voice tutor: it holds a live spoken conversation
// with a Gemini model, or reads a text aloud while highlighting each word.
//
// Usage:
//
//	tutorvoice [-config config.yaml] [-env .env] [live]
//	tutorvoice [-config config.yaml] say "Read **this** sentence aloud."
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/tutorvoice/internal/app"
	"github.com/MrWong99/tutorvoice/internal/config"
	"github.com/MrWong99/tutorvoice/internal/console"
	"github.com/MrWong99/tutorvoice/internal/health"
	"github.com/MrWong99/tutorvoice/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFiles := flag.String("env", ".env", "comma-separated dotenv files loaded before the config")
	flag.Usage = usage
	flag.Parse()

	command, text, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutorvoice: %v\n", err)
		usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadEnv(strings.Split(*envFiles, ",")...); err != nil {
		fmt.Fprintf(os.Stderr, "tutorvoice: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tutorvoice: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tutorvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("tutorvoice starting",
		"version", version,
		"command", command,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	built, err := buildProviders(cfg, reg, command == commandLive, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := console.New(os.Stdout)
	application, err := app.New(ctx, cfg, built.providers,
		app.WithMetrics(metrics),
		app.WithPrinter(printer),
		app.WithLogLevel(&level),
		app.WithReadiness(built.checks...),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		application.ApplyConfig(cfg, watcher.Current())
		go reloadOnHangup(ctx, watcher)
	}

	// ── HTTP: health and metrics ──────────────────────────────────────────────
	srv := newServer(cfg.Server.ListenAddr, application, tel, metrics)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	// ── Run ───────────────────────────────────────────────────────────────────
	code := 0
	switch command {
	case commandLive:
		if err := application.Run(ctx); err != nil {
			slog.Error("conversation error", "err", err)
			code = 1
		}
	case commandSay:
		if err := application.Say(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("read aloud error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Commands ──────────────────────────────────────────────────────────────────

const (
	commandLive = "live"
	commandSay  = "say"
)

// parseCommand returns the command and, for say, the text to read.
func parseCommand(args []string) (command, text string, err error) {
	if len(args) == 0 {
		return commandLive, "", nil
	}
	switch args[0] {
	case commandLive:
		if len(args) > 1 {
			return "", "", fmt.Errorf("live takes no arguments")
		}
		return commandLive, "", nil
	case commandSay:
		text = strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return "", "", fmt.Errorf("say needs the text to read")
		}
		return commandSay, text, nil
	default:
		return "", "", fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage:\n  tutorvoice [flags] [live]\n  tutorvoice [flags] say TEXT\n\nFlags:\n")
	flag.PrintDefaults()
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

func newServer(addr string, application *app.App, tel *observe.Telemetry, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	health.New(application.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", tel.MetricsHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if w.Reload() {
				slog.Info("config reloaded on SIGHUP")
			} else {
				slog.Info("SIGHUP: config unchanged or invalid")
			}
		}
	}
}
