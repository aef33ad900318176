// Package app wires the voxctl subsystems into a running input service.
//
// The App struct owns the full lifecycle: New connects the lifecycle bus, the
// voice coordinator, the command router and the action dispatcher; Start and
// Stop switch voice input on and off; Run executes the service until its
// context ends; Shutdown tears everything down in order.
//
// For testing, inject mock implementations through [Providers] and the
// functional options (WithBus, WithMetrics, etc.).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/command"
	"github.com/MrWong99/voxctl/internal/config"
	"github.com/MrWong99/voxctl/internal/eventbus"
	"github.com/MrWong99/voxctl/internal/observe"
	"github.com/MrWong99/voxctl/internal/voice"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Providers holds the collaborators built from the config registry by
// main.go. Loader and Audio are required.
type Providers struct {
	Loader     stt.Loader
	Audio      audio.Opener
	Dispatcher action.Dispatcher

	// Permission gates every Start. Nil means always granted.
	Permission voice.PermissionChecker

	// Gesture performs actions delivered through an in-process
	// [action.Channel]. Ignored for other dispatchers.
	Gesture action.GestureFunc
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	bus      *eventbus.Bus
	voice    *voice.Coordinator
	router   *command.Router
	mirror   *StateMirror
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	onText   func(string)

	// closers are called in order during Shutdown.
	closers []func() error

	receiverOnce sync.Once

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithBus injects the lifecycle bus instead of creating a private one.
func WithBus(b *eventbus.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithMetrics injects the metric instruments. Defaults to
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands New the level variable of the process logger so config
// reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithTextObserver registers fn to receive every recognized text after it has
// been routed. fn runs on the recognition worker and must not block.
func WithTextObserver(fn func(string)) Option {
	return func(a *App) { a.onText = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring the subsystems together. Nothing is acquired
// until Start.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.bus == nil {
		a.bus = eventbus.New()
		a.closers = append(a.closers, func() error { a.bus.Close(); return nil })
	}

	matcher, err := command.NewMatcher(cfg.Commands.Commands(), cfg.Commands.MatcherOptions()...)
	if err != nil {
		return nil, fmt.Errorf("app: build command matcher: %w", err)
	}
	a.router = command.NewRouter(matcher, providers.Dispatcher)

	a.voice, err = voice.New(voice.Config{
		Loader:     providers.Loader,
		Opener:     providers.Audio,
		Permission: providers.Permission,
		Bus:        a.bus,
		Metrics:    a.metrics,
		OnEndpoint: a.router.EndUtterance,
		Audio:      cfg.Audio.AudioParams(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: create voice coordinator: %w", err)
	}

	a.mirror = NewStateMirror(ctx, a.bus)
	a.closers = append([]func() error{a.mirror.Close}, a.closers...)

	if c, ok := providers.Dispatcher.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	slog.Info("input service ready",
		"engine", cfg.Engine.Name,
		"audio", cfg.Audio.Backend,
		"dispatcher", cfg.Actions.Dispatcher,
		"commands", matcher.Len(),
	)
	return a, nil
}

// Bus returns the lifecycle event bus.
func (a *App) Bus() *eventbus.Bus { return a.bus }

// State returns the voice input state.
func (a *App) State() voice.ServiceState { return a.voice.State() }

// Mirror returns the bus-driven ON/OFF mirror.
func (a *App) Mirror() *StateMirror { return a.mirror }

// Router returns the command router.
func (a *App) Router() *command.Router { return a.router }

// ─── Start / Stop ────────────────────────────────────────────────────────────

// Start turns voice input on. Starting while already running is a no-op that
// returns nil; other errors are returned as reported by the coordinator.
func (a *App) Start(ctx context.Context) error {
	err := a.voice.Start(ctx, a.handleText)
	if errors.Is(err, voice.ErrAlreadyRunning) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("app: start voice input: %w", err)
	}
	return nil
}

// Stop turns voice input off. Stopping while off is a no-op.
func (a *App) Stop(ctx context.Context) error {
	if err := a.voice.Stop(ctx); err != nil {
		return fmt.Errorf("app: stop voice input: %w", err)
	}
	return nil
}

// handleText runs on the recognition worker for every new transcript.
func (a *App) handleText(text string) {
	slog.Info("recognized", "text", text)
	a.router.HandleText(text)
	if a.onText != nil {
		a.onText(text)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts voice input and blocks until ctx is cancelled, then stops it.
//
// When the dispatcher is an in-process [action.Channel] and a gesture
// performer is configured, Run also drives the receiving side. Run returns
// ctx.Err() after a clean stop.
func (a *App) Run(ctx context.Context) error {
	recvCtx, stopReceiver := context.WithCancel(ctx)
	defer stopReceiver()
	var wg sync.WaitGroup
	a.startReceiver(recvCtx, &wg)

	if err := a.Start(ctx); err != nil {
		stopReceiver()
		wg.Wait()
		return err
	}

	slog.Info("input service running")
	<-ctx.Done()

	stopErr := a.Stop(context.WithoutCancel(ctx))
	wg.Wait()
	if stopErr != nil {
		return stopErr
	}
	return ctx.Err()
}

// Serve is Run without the initial Start: voice input stays OFF until
// something calls Start (for example the control endpoint).
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	a.startReceiver(ctx, &wg)

	slog.Info("input service waiting for start")
	<-ctx.Done()

	stopErr := a.Stop(context.WithoutCancel(ctx))
	wg.Wait()
	if stopErr != nil {
		return stopErr
	}
	return ctx.Err()
}

// startReceiver launches the channel receiver at most once per App.
func (a *App) startReceiver(ctx context.Context, wg *sync.WaitGroup) {
	ch, ok := a.providers.Dispatcher.(*action.Channel)
	if !ok || a.providers.Gesture == nil {
		return
	}
	a.receiverOnce.Do(func() {
		rcv := action.NewReceiver(ch, a.providers.Gesture)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rcv.Run(ctx); err != nil {
				slog.Error("action receiver stopped", "err", err)
			}
		}()
	})
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a config change: the log
// level and the command bindings. Changes to anything else are logged and
// take effect on the next process start.
func (a *App) ApplyConfig(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Changed() {
		return
	}
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", string(diff.NewLogLevel))
	}
	if diff.CommandsChanged {
		m, err := command.NewMatcher(new.Commands.Commands(), new.Commands.MatcherOptions()...)
		if err != nil {
			slog.Error("command reload rejected", "err", err)
		} else {
			a.router.SetMatcher(m)
			slog.Info("commands reloaded", "commands", m.Len())
		}
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", diff.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
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

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops voice input (ServiceStop is still published) and then tears
// down the remaining subsystems. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.Stop(ctx); err != nil {
			slog.Warn("stop during shutdown", "err", err)
		}
		if err := a.voice.Flush(ctx); err != nil {
			slog.Warn("lifecycle events not flushed", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
