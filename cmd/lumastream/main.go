// Command lumastream runs a live multimodal session against a remote
// streaming agent, capturing local audio and video and playing the agent's
// replies through the local speaker.
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

	"github.com/lumastream/lumastream/internal/app"
	"github.com/lumastream/lumastream/internal/config"
	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/internal/playback"
	"github.com/lumastream/lumastream/pkg/device"
	ffmpegdev "github.com/lumastream/lumastream/pkg/device/ffmpeg"
	"github.com/lumastream/lumastream/pkg/live"
	geminilive "github.com/lumastream/lumastream/pkg/live/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lumastream: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lumastream: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lumastream starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "lumastream",
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

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, reg, logger,
		app.WithSinkFactory(speakerFactory(cfg)),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if !diff.Any() {
			return
		}
		slog.Info("configuration changed",
			"log_level", diff.LogLevelChanged,
			"session", diff.SessionChanged,
			"live", diff.LiveChanged,
			"devices", diff.DevicesChanged,
		)
		if diff.LogLevelChanged {
			slog.SetDefault(newLogger(diff.NewLogLevel))
		}
		// Session, transport, and device changes take effect the next time a
		// session starts.
		application.UpdateConfig(new)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the device and transport factories that ship
// with lumastream into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterDevices("ffmpeg", func(cfg *config.Config) (device.Provider, error) {
		return &ffmpegdev.Provider{
			Microphone: ffmpegdev.MicrophoneConfig{
				Format:     cfg.Audio.Input.Format,
				Input:      cfg.Audio.Input.Device,
				SampleRate: cfg.Audio.Input.SampleRate,
				Channels:   cfg.Audio.Input.Channels,
			},
			Camera: ffmpegdev.CameraConfig{
				Format: cfg.Video.Format,
				Input:  cfg.Video.Device,
				FPS:    cfg.Video.FPS,
			},
		}, nil
	})

	reg.RegisterTransport("gemini", func(cfg *config.Config) (live.Transport, error) {
		apiKey := cfg.Live.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini transport: no API key in live.api_key or GEMINI_API_KEY")
		}
		var opts []geminilive.Option
		if cfg.Live.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.Live.Model))
		}
		if cfg.Live.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(cfg.Live.BaseURL))
		}
		return geminilive.New(apiKey, opts...), nil
	})
}

// speakerFactory builds a fresh ffplay-backed sink for each session.
func speakerFactory(cfg *config.Config) app.SinkFactory {
	return func() (playback.Sink, error) {
		return ffmpegdev.NewSpeaker(ffmpegdev.SpeakerConfig{
			SampleRate: cfg.Audio.Output.SampleRate,
		})
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
