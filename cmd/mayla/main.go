// Command mayla runs the Mayla voice assistant: wake-word listening, the
// realtime conversation session, and the admin HTTP endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/maylavoice/mayla/internal/app"
	"github.com/maylavoice/mayla/internal/config"
	"github.com/maylavoice/mayla/internal/observe"
)

// version is stamped via -ldflags at release build time.
var version = "dev"

// micChunkBytes is 100ms of 16 kHz mono PCM16, the chunk size read from the
// capture pipe.
const micChunkBytes = 3200

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioMode := flag.String("audio", "off", `audio transport: "pipe" (PCM16 on stdin/stdout) or "off"`)
	flag.Parse()

	if *audioMode != "pipe" && *audioMode != "off" {
		fmt.Fprintf(os.Stderr, "mayla: unknown -audio mode %q\n", *audioMode)
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level var lets a config reload retune verbosity without restart.
	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	// ── Load configuration + start the reload watcher ─────────────────────────
	var appRef atomic.Pointer[app.App]
	onReload := func(diff config.ConfigDiff, cfg *config.Config) {
		if diff.LogLevelChanged {
			levelVar.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level updated", "level", diff.NewLogLevel)
		}
		if a := appRef.Load(); a != nil {
			a.ApplyReload(diff, cfg)
		}
	}

	watcher, err := config.NewWatcher(*configPath, onReload)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mayla: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mayla: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	levelVar.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("mayla starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "mayla",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audio transport ───────────────────────────────────────────────────────
	var opts []app.Option
	if *audioMode == "pipe" {
		opts = append(opts,
			app.WithMicrophone(startMicPipe(ctx, os.Stdin)),
			app.WithPlayback(newPlaybackPipe(os.Stdout)),
		)
		slog.Info("audio transport active", "mode", "pipe", "chunk_bytes", micChunkBytes)
	} else {
		printStartupSummary(cfg)
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	appRef.Store(application)

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		switch {
		case errors.Is(err, app.ErrShutdownRequested):
			slog.Info("shutdown phrase accepted, stopping")
		case errors.Is(err, context.Canceled):
			// Signal-driven exit.
		default:
			slog.Error("run error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Audio pipes ───────────────────────────────────────────────────────────────

// startMicPipe reads fixed-size PCM16 chunks from r until EOF or ctx is done.
// Pair it with e.g. `arecord -f S16_LE -r 16000 -c 1 -t raw | mayla -audio pipe`.
func startMicPipe(ctx context.Context, r io.Reader) <-chan []byte {
	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		for {
			buf := make([]byte, micChunkBytes)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				select {
				case ch <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					slog.Warn("microphone pipe read error", "err", err)
				}
				return
			}
		}
	}()
	return ch
}

// newPlaybackPipe returns a playback sink writing raw PCM16 to w. Write
// failures are logged once; playback is best-effort.
func newPlaybackPipe(w io.Writer) func(pcm []byte) {
	var mu sync.Mutex
	var warnOnce sync.Once
	return func(pcm []byte) {
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(pcm); err != nil {
			warnOnce.Do(func() {
				slog.Warn("playback pipe write error", "err", err)
			})
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Mayla — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Backend", cfg.Backend.BaseURL)
	if cfg.Wake.Enabled {
		printField("Wake phrases", fmt.Sprintf("%d configured", len(cfg.Wake.Phrases)))
		printField("Recognizer", orDefault(cfg.STT.Model, "deepgram default"))
	} else {
		printField("Wake phrases", "(disabled)")
	}
	printField("Realtime model", orDefault(cfg.Realtime.Model, "(default)"))
	if cfg.Archive.PostgresDSN != "" {
		printField("Archive", "postgres")
	} else {
		printField("Archive", "(disabled)")
	}
	printField("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
