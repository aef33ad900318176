package app_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/app"
	"github.com/MrWong99/voxctl/internal/config"
	"github.com/MrWong99/voxctl/internal/eventbus"
	"github.com/MrWong99/voxctl/internal/voice"
	"github.com/MrWong99/voxctl/pkg/audio"
	audiomock "github.com/MrWong99/voxctl/pkg/audio/mock"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxctl/pkg/provider/stt/mock"
)

// testConfig returns a minimal valid config binding "swipe up" to SWIPE_UP.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Audio:  config.AudioConfig{Backend: "wav", File: "test.wav"},
		Engine: config.EngineConfig{Name: "test"},
		Commands: config.CommandsConfig{
			Bindings: []config.CommandBinding{
				{Action: "SWIPE_UP", Phrases: []string{"swipe up"}},
			},
		},
		Actions: config.ActionsConfig{Dispatcher: config.DispatcherChannel},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// speechFrames is three loud frames followed by silence.
func speechFrames() [][]int16 {
	var out [][]int16
	for range 3 {
		f := make([]int16, 1600)
		for i := range f {
			f[i] = 1000
		}
		out = append(out, f)
	}
	for range 5 {
		out = append(out, make([]int16, 1600))
	}
	return out
}

// saySwipeUp recognizes "swipe up" while frames are loud and reports an
// endpoint on the first silent chunk after speech.
func saySwipeUp() func([]float32) (string, bool) {
	var heard bool
	return func(chunk []float32) (string, bool) {
		if chunk[0] != 0 {
			heard = true
			return "swipe up", false
		}
		if heard {
			heard = false
			return "swipe up", true
		}
		return "", false
	}
}

// dispatchRecorder is an action.Dispatcher that records every action.
type dispatchRecorder struct {
	mu      sync.Mutex
	actions []action.ActionType
	ch      chan struct{}
}

func newDispatchRecorder() *dispatchRecorder {
	return &dispatchRecorder{ch: make(chan struct{}, 64)}
}

func (d *dispatchRecorder) Dispatch(a action.ActionType) {
	d.mu.Lock()
	d.actions = append(d.actions, a)
	d.mu.Unlock()
	d.ch <- struct{}{}
}

func (d *dispatchRecorder) got() []action.ActionType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]action.ActionType(nil), d.actions...)
}

// testProviders returns providers whose engine says "swipe up" once per
// session.
func testProviders(d action.Dispatcher) (*app.Providers, *sttmock.Loader) {
	loader := &sttmock.Loader{}
	loader.NewEngine = func() stt.Engine {
		e := &sttmock.Engine{}
		e.NewStreamFunc = func() stt.Stream { return &sttmock.Stream{Recognize: saySwipeUp()} }
		return e
	}
	opener := &audiomock.Opener{NewSource: func() audio.Source {
		return &audiomock.Source{Frames: speechFrames()}
	}}
	return &app.Providers{Loader: loader, Audio: opener, Dispatcher: d}, loader
}

func newApp(t *testing.T, p *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testConfig(), p, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func waitMirror(t *testing.T, a *app.App, on bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Mirror().WaitFor(ctx, on); err != nil {
		t.Fatalf("mirror did not reach on=%v: %v", on, err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Error("New with nil providers should fail")
	}
	if _, err := app.New(context.Background(), nil, &app.Providers{}); err == nil {
		t.Error("New with nil config should fail")
	}
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Error("New without loader and opener should fail")
	}
}

func TestStartStop_MirrorFollowsLifecycle(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	a := newApp(t, p)
	ctx := context.Background()

	if a.Mirror().On() {
		t.Fatal("mirror should start OFF")
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.State() != voice.StateOn {
		t.Errorf("State() = %v, want ON", a.State())
	}
	waitMirror(t, a, true)
	if a.Mirror().Session() == "" {
		t.Error("mirror should carry the session id while ON")
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitMirror(t, a, false)
	if a.Mirror().Session() != "" {
		t.Error("mirror session should clear on stop")
	}
}

func TestStart_AlreadyRunningIsNoop(t *testing.T) {
	t.Parallel()

	p, loader := testProviders(nil)
	a := newApp(t, p)
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("second Start: %v, want nil", err)
	}
	if got := loader.Loads(); got != 1 {
		t.Errorf("engine loads = %d, want 1", got)
	}
}

func TestStart_PermissionDeniedIsReported(t *testing.T) {
	t.Parallel()

	p, loader := testProviders(nil)
	p.Permission = voice.PermissionFunc(func(context.Context) error { return errors.New("no mic") })
	a := newApp(t, p)

	err := a.Start(context.Background())
	if !errors.Is(err, voice.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	if got := loader.Loads(); got != 0 {
		t.Errorf("engine loads = %d, want 0", got)
	}
	if a.State() != voice.StateOff {
		t.Errorf("State() = %v, want OFF", a.State())
	}
}

func TestSpokenCommand_DispatchedOncePerUtterance(t *testing.T) {
	t.Parallel()

	d := newDispatchRecorder()
	p, _ := testProviders(d)

	var (
		mu    sync.Mutex
		texts []string
	)
	a := newApp(t, p, app.WithTextObserver(func(s string) {
		mu.Lock()
		texts = append(texts, s)
		mu.Unlock()
	}))
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-d.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no action dispatched")
	}
	// Let the rest of the scripted frames drain.
	time.Sleep(100 * time.Millisecond)
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := d.got(); len(got) != 1 || got[0] != action.SwipeUp {
		t.Errorf("dispatched = %v, want [SWIPE_UP]", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 || texts[0] != "swipe up" {
		t.Errorf("texts = %q, want [\"swipe up\"]", texts)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	a := newApp(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitMirror(t, a, true)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if a.State() != voice.StateOff {
		t.Errorf("State() after Run = %v, want OFF", a.State())
	}
}

func TestRun_DrivesChannelReceiver(t *testing.T) {
	t.Parallel()

	ch := action.NewChannel()
	p, _ := testProviders(ch)
	// Pace the source so the receiver is attached before speech arrives.
	p.Audio = &audiomock.Opener{NewSource: func() audio.Source {
		return &audiomock.Source{Frames: speechFrames(), ReadDelay: 20 * time.Millisecond}
	}}
	performed := make(chan action.ActionType, 4)
	p.Gesture = func(_ context.Context, a action.ActionType) error {
		performed <- a
		return nil
	}
	a := newApp(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	select {
	case got := <-performed:
		if got != action.SwipeUp {
			t.Errorf("gesture = %v, want SWIPE_UP", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gesture not performed")
	}
}

func TestRun_ReturnsStartErrorWithReceiver(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(action.NewChannel())
	p.Gesture = func(context.Context, action.ActionType) error { return nil }
	p.Permission = voice.PermissionFunc(func(context.Context) error { return errors.New("no mic") })
	a := newApp(t, p)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, voice.ErrPermissionDenied) {
			t.Errorf("Run() = %v, want ErrPermissionDenied", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Start failed (state=%v)", a.State())
	}
}

func TestShutdown_PublishesStopAndClosesBus(t *testing.T) {
	t.Parallel()

	p, loader := testProviders(nil)
	a, err := app.New(context.Background(), testConfig(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stops := make(chan struct{}, 1)
	a.Bus().Subscribe(context.Background(), func(_ context.Context, ev eventbus.Event) {
		if ev.Kind == eventbus.ServiceStop {
			stops <- struct{}{}
		}
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case <-stops:
	case <-time.After(5 * time.Second):
		t.Fatal("ServiceStop not published during shutdown")
	}
	if err := a.Bus().Emit(context.Background(), eventbus.NewEvent(eventbus.ServiceStart, "")); !errors.Is(err, eventbus.ErrClosed) {
		t.Errorf("Emit after Shutdown = %v, want ErrClosed", err)
	}
	if loader.Loads() != 1 {
		t.Errorf("engine loads = %d, want 1", loader.Loads())
	}

	// Second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestShutdown_InjectedBusStaysOpen(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	defer bus.Close()
	p, _ := testProviders(nil)
	a, err := app.New(context.Background(), testConfig(), p, app.WithBus(bus))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := bus.Emit(context.Background(), eventbus.NewEvent(eventbus.ServiceStop, "")); err != nil {
		t.Errorf("Emit on injected bus after Shutdown = %v, want nil", err)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	a, err := app.New(context.Background(), testConfig(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
}

func TestApplyConfig_HotReload(t *testing.T) {
	t.Parallel()

	old := testConfig()
	old.Commands.Bindings = nil
	p, _ := testProviders(nil)
	level := new(slog.LevelVar)
	a, err := app.New(context.Background(), old, p, app.WithLogLevel(level))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if _, ok := a.Router().HandleText("swipe up"); ok {
		t.Fatal("no commands configured, nothing should match")
	}
	a.Router().EndUtterance()

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	a.ApplyConfig(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if got, ok := a.Router().HandleText("swipe up"); !ok || got != action.SwipeUp {
		t.Errorf("HandleText after reload = %v, %v; want SWIPE_UP, true", got, ok)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		t.Run(string(tc.in), func(t *testing.T) {
			t.Parallel()
			if got := app.SlogLevel(tc.in); got != tc.want {
				t.Errorf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
