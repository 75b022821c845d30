// Command voxline runs the realtime voice assistant and its dashboard.
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
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/controller"
	"github.com/voxline/voxline/internal/health"
	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/resilience"
	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/internal/web"
	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/provider/s2s"
	"github.com/voxline/voxline/pkg/provider/s2s/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "override the dashboard listen address")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxline: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("voxline starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.Setup(ctx, observe.Config{
		ServiceName:    "voxline",
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
	metrics := observe.DefaultMetrics()

	// ── Agent provider ────────────────────────────────────────────────────────
	var opts []openai.Option
	if cfg.Provider.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Provider.Model))
	}
	if cfg.Provider.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Provider.BaseURL))
	}
	provider := resilience.NewGuardedProvider(
		openai.New(cfg.Provider.APIKey, opts...),
		resilience.GuardedProviderConfig{Name: "openai"},
	)

	// ── Controller + dashboard ────────────────────────────────────────────────
	ctrl := controller.New(newRunner(cfg, provider, metrics), controller.WithMetrics(metrics))

	probes := health.New(
		health.APIKey(cfg.Provider.APIKey),
		health.AudioHost(probeAudioHost),
	)

	printStartupSummary(cfg)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           web.New(ctrl, probes, metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("🌐 Serving realtime assistant UI", "addr", "http://"+cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	ctrl.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newRunner returns the controller's session factory. Each run gets a fresh
// capture queue, playback buffer, and device so no state leaks between
// sessions.
func newRunner(cfg *config.Config, provider s2s.Provider, metrics *observe.Metrics) controller.Runner {
	return func(stop *session.StopSignal, logf audio.Logf, running func()) error {
		queue := audio.NewCaptureQueue(audio.DefaultQueueDepth)
		playback := audio.NewPlaybackBuffer(cfg.Audio.PlaybackCapacity(), logf)
		device := audio.NewDeviceIO(audio.DeviceConfig{
			SampleRate:     cfg.Audio.SampleRate,
			BlockSize:      cfg.Audio.Blocksize,
			InputChannels:  cfg.Audio.InputChannels,
			OutputChannels: cfg.Audio.OutputChannels,
			InputDevice:    cfg.Audio.InputDevice,
			OutputDevice:   cfg.Audio.OutputDevice,
		}, queue, playback, logf)

		sess := session.New(session.Config{
			Device:   device,
			Queue:    queue,
			Playback: playback,
			Provider: provider,
			Agent: s2s.SessionConfig{
				Voice:             cfg.Voice.Voice,
				Instructions:      cfg.Voice.Instructions,
				InterruptResponse: cfg.Voice.Interrupt(),
			},
			Stop:    stop,
			Logf:    logf,
			Metrics: metrics,
		})

		go func() {
			select {
			case <-sess.Connected():
				running()
			case <-stop.Done():
			}
		}()

		return sess.Run(context.Background())
	}
}

// probeAudioHost verifies the audio host API can be initialised.
func probeAudioHost() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Voxline — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Sample rate     : %-19d ║\n", cfg.Audio.SampleRate)
	fmt.Printf("║  Block size      : %-19d ║\n", cfg.Audio.Blocksize)
	fmt.Printf("║  Channels in/out : %d/%-17d ║\n", cfg.Audio.InputChannels, cfg.Audio.OutputChannels)
	fmt.Printf("║  Buffer seconds  : %-19d ║\n", cfg.Audio.MaxBufferSeconds)
	fmt.Printf("║  Voice           : %-19s ║\n", cfg.Voice.Voice)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}
