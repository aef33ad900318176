// Command voxctl is the always-listening voice command service.
//
// By default it loads the YAML configuration, builds the recognition engine,
// audio backend and action dispatcher named there, serves health, metrics
// and voice control endpoints, and runs voice input until interrupted.
//
// With -agent it instead runs the gesture agent: a WebSocket endpoint that
// receives actions sent by a voxctl instance configured with the "bridge"
// dispatcher.
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

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/app"
	"github.com/MrWong99/voxctl/internal/config"
	"github.com/MrWong99/voxctl/internal/health"
	"github.com/MrWong99/voxctl/internal/observe"
	"github.com/MrWong99/voxctl/internal/voice"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/audio/malgo"
	"github.com/MrWong99/voxctl/pkg/audio/portaudio"
	"github.com/MrWong99/voxctl/pkg/audio/wavfile"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
	"github.com/MrWong99/voxctl/pkg/provider/stt/sherpa"
	"github.com/MrWong99/voxctl/pkg/provider/stt/whisper"
)

// shutdownTimeout bounds graceful teardown after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	agentAddr := flag.String("agent", "", "run as gesture agent listening on this address (e.g. 127.0.0.1:7071)")
	flag.Parse()

	if *agentAddr != "" {
		return runAgent(*agentAddr)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxctl: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxctl: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voxctl starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxctl"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tel.MeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg, metrics)
	slog.Debug("engines available", "names", reg.Engines())

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	svc, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics), app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise input service", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, svc.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg.Server.ListenAddr, svc, tel, metrics)
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
		g.Go(func() error { return reloadOnHangup(gctx, watcher) })
	}

	g.Go(func() error {
		var err error
		if cfg.Server.AutoStart {
			err = svc.Run(gctx)
		} else {
			err = svc.Serve(gctx)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	slog.Info("voxctl ready, press Ctrl+C to shut down", "auto_start", cfg.Server.AutoStart)

	exit := 0
	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutting down")
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// reloadOnHangup forces a config reload on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, w *config.Watcher) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config reload on SIGHUP rejected", "err", err)
			}
		}
	}
}

// newServer builds the HTTP server for health, metrics and voice control.
func newServer(addr string, svc *app.App, tel *observe.Provider, metrics *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	health.New([]health.Probe{
		health.StateProbe("voice", func() string { return svc.State().String() }, voice.StateOn.String()),
	}).Register(mux)
	mux.Handle("GET /metrics", tel.MetricsHandler())
	svc.RegisterControl(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltins wires every built-in engine, audio backend and dispatcher
// into reg.
func registerBuiltins(reg *config.Registry, metrics *observe.Metrics) {
	// ── Engines ───────────────────────────────────────────────────────────────

	reg.RegisterEngine("sherpa", func(c config.EngineConfig) (stt.Loader, error) {
		return sherpa.NewLoader(c.STTConfig()), nil
	})

	reg.RegisterEngine("whisper-native", func(c config.EngineConfig) (stt.Loader, error) {
		return whisper.NewLoader(c.STTConfig(), whisperOptions(c)...), nil
	})

	reg.RegisterEngine("whisper", func(c config.EngineConfig) (stt.Loader, error) {
		return whisper.NewServerLoader(c.ServerURL, c.STTConfig(), whisperOptions(c)...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.AudioConfig) (audio.Opener, error) {
		return portaudio.New(), nil
	})
	reg.RegisterAudio("malgo", func(config.AudioConfig) (audio.Opener, error) {
		return malgo.New(), nil
	})
	reg.RegisterAudio("wav", func(config.AudioConfig) (audio.Opener, error) {
		return wavfile.New(), nil
	})

	// ── Dispatchers ───────────────────────────────────────────────────────────

	reg.RegisterDispatcher(config.DispatcherChannel, func(config.ActionsConfig) (action.Dispatcher, error) {
		return action.NewChannel(action.WithChannelMetrics(metrics)), nil
	})
	reg.RegisterDispatcher(config.DispatcherBridge, func(c config.ActionsConfig) (action.Dispatcher, error) {
		return action.NewBridge(c.BridgeURL,
			action.WithBridgeTimeout(c.BridgeTimeout),
			action.WithBridgeMetrics(metrics),
		)
	})
	reg.RegisterDispatcher(config.DispatcherNone, func(config.ActionsConfig) (action.Dispatcher, error) {
		return action.Discard, nil
	})
}

// whisperOptions maps engine options onto whisper segmentation settings.
func whisperOptions(c config.EngineConfig) []whisper.Option {
	var opts []whisper.Option
	if ms := c.IntOption("silence_threshold_ms", 0); ms > 0 {
		opts = append(opts, whisper.WithSilenceThresholdMs(ms))
	}
	if ms := c.IntOption("max_buffer_ms", 0); ms > 0 {
		opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
	}
	if rms := c.FloatOption("rms_threshold", 0); rms > 0 {
		opts = append(opts, whisper.WithRMSThreshold(rms))
	}
	return opts
}

// buildProviders instantiates the collaborators named in cfg using the
// registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{Gesture: logGesture}

	loader, err := reg.CreateEngine(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("create engine %q: %w", cfg.Engine.Name, err)
	}
	ps.Loader = loader
	slog.Info("provider created", "kind", "engine", "name", cfg.Engine.Name)

	opener, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	ps.Audio = opener
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend)

	d, err := reg.CreateDispatcher(cfg.Actions)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher %q: %w", cfg.Actions.Dispatcher, err)
	}
	ps.Dispatcher = d
	slog.Info("provider created", "kind", "dispatcher", "name", cfg.Actions.Dispatcher)

	switch {
	case cfg.Permission == config.PermissionGranted:
		ps.Permission = voice.Granted
	case cfg.Audio.Backend == "portaudio":
		ps.Permission = portaudio.PermissionChecker{}
	default:
		ps.Permission = voice.Granted
	}
	return ps, nil
}

// ── Gesture agent ─────────────────────────────────────────────────────────────

// logGesture is the gesture performer of this build: it reports the action.
// Injecting input events is platform specific and left to the agent host.
func logGesture(ctx context.Context, a action.ActionType) error {
	observe.Logger(ctx).Info("gesture", "action", a.String())
	return nil
}

// runAgent serves the bridge endpoint until interrupted.
func runAgent(addr string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/", action.NewBridgeHandler(logGesture))
	health.New(nil).Register(mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("gesture agent listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("gesture agent error", "err", err)
		return 1
	}
	return 0
}
