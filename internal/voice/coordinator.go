// Package voice runs always-listening speech recognition with a race-free
// lifecycle.
//
// A [Coordinator] owns the start/stop protocol: it checks permission, loads
// the recognition engine, opens the audio source, spawns the pipeline worker
// and publishes lifecycle events, releasing everything in reverse order on
// Stop. Start and Stop are serialized, so any interleaving of calls from any
// goroutine leaves the service in a consistent state.
//
// The worker reads 100 ms frames, feeds them to the engine, drains decoding,
// flushes endpoints (with tail padding where the model needs it), suppresses
// duplicate results and forwards text to the caller's callback.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/voxctl/internal/eventbus"
	"github.com/MrWong99/voxctl/internal/observe"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Config holds the Coordinator's collaborators.
type Config struct {
	// Loader initializes the recognition engine on every Start. Required.
	Loader stt.Loader

	// Opener acquires the microphone on every Start. Required.
	Opener audio.Opener

	// Permission gates Start. Nil means always granted.
	Permission PermissionChecker

	// Bus receives ServiceStart and ServiceStop, in lifecycle order but
	// asynchronously: Start and Stop return before subscribers saw the
	// event. Use Flush to wait. Nil disables publishing.
	Bus *eventbus.Bus

	// Metrics records pipeline and lifecycle metrics. Nil uses
	// observe.DefaultMetrics.
	Metrics *observe.Metrics

	// OnEndpoint, if set, is called from the worker after every endpoint,
	// once the stream has been reset for the next utterance.
	OnEndpoint func()

	// Audio is passed to Opener. Zero fields fall back to the fixed 16 kHz
	// mono 100 ms contract.
	Audio audio.Config
}

// session holds everything acquired by one successful Start.
type session struct {
	id      string
	engine  stt.Engine
	source  audio.Source
	done    chan struct{}
	started time.Time
}

// Coordinator starts and stops voice input.
type Coordinator struct {
	cfg     Config
	metrics *observe.Metrics
	events  *publisher

	// mu serializes Start and Stop.
	mu      sync.Mutex
	state   StateHolder
	running atomic.Bool
	sess    *session
	sessID  atomic.Pointer[string]
}

// New returns a Coordinator in the OFF state.
func New(cfg Config) (*Coordinator, error) {
	var errs []error
	if cfg.Loader == nil {
		errs = append(errs, errors.New("voice: Loader is required"))
	}
	if cfg.Opener == nil {
		errs = append(errs, errors.New("voice: Opener is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Permission == nil {
		cfg.Permission = Granted
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = audio.Channels
	}
	if cfg.Audio.FrameDuration <= 0 {
		cfg.Audio.FrameDuration = audio.FrameDuration
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Coordinator{cfg: cfg, metrics: m, events: newPublisher(cfg.Bus)}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() ServiceState { return c.state.Load() }

// Session returns the ID of the running session, or "" while not ON.
func (c *Coordinator) Session() string {
	if id := c.sessID.Load(); id != nil {
		return *id
	}
	return ""
}

// Running reports whether voice input is ON.
func (c *Coordinator) Running() bool { return c.state.Load() == StateOn }

// Start acquires the engine and microphone and begins streaming recognized
// text to onText, which is called from the worker goroutine.
//
// If voice input is not OFF, Start returns ErrAlreadyRunning and changes
// nothing. On any failure everything acquired so far is released in reverse
// order and the state returns to OFF; the returned error wraps
// ErrPermissionDenied or ErrEngineInitFailed where applicable.
func (c *Coordinator) Start(ctx context.Context, onText func(string)) error {
	ctx, span := observe.StartSpan(ctx, "voice.Start")
	defer span.End()
	log := observe.Logger(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.state.Load(); st != StateOff {
		log.Warn("voice input already running, start ignored", "state", st.String())
		c.metrics.RecordSessionStart(ctx, "already_running")
		return ErrAlreadyRunning
	}
	if err := c.state.transition(StateLoading); err != nil {
		return err
	}

	id := uuid.NewString()
	span.SetAttributes(attribute.String("session_id", id))
	ctx = observe.WithSession(ctx, id)
	log = observe.Logger(ctx)
	log.Info("starting voice input")

	sess, err := c.acquire(ctx, log, id, onText)
	if err != nil {
		c.abort(log)
		c.metrics.RecordSessionStart(ctx, startStatus(err))
		log.Error("voice input start failed", "err", err)
		return err
	}

	if err := c.state.transition(StateOn); err != nil {
		// Cannot fail: mu is held and the state is LOADING.
		log.Error("voice: state", "err", err)
	}
	c.sess = sess
	c.sessID.Store(&sess.id)
	c.metrics.RecordSessionStart(ctx, "ok")
	c.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("voice input started")
	c.events.enqueue(ctx, log, eventbus.NewEvent(eventbus.ServiceStart, id))
	return nil
}

// acquire performs the ordered acquisition steps and spawns the worker.
func (c *Coordinator) acquire(ctx context.Context, log *slog.Logger, id string, onText func(string)) (*session, error) {
	if err := c.cfg.Permission.CheckMicrophone(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	loadStart := time.Now()
	eng, err := c.cfg.Loader.Load(ctx)
	c.metrics.EngineLoadDuration.Record(ctx, time.Since(loadStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineInitFailed, err)
	}

	src, err := c.cfg.Opener.Open(ctx, c.cfg.Audio)
	if err != nil {
		closeLogged(log, "engine", eng.Close)
		return nil, fmt.Errorf("voice: open audio source: %w", err)
	}

	stream, err := eng.NewStream()
	if err != nil {
		closeLogged(log, "audio source", src.Close)
		closeLogged(log, "engine", eng.Close)
		return nil, fmt.Errorf("voice: create recognition stream: %w", err)
	}

	if onText == nil {
		onText = func(string) {}
	}
	w := &worker{
		src:          src,
		stream:       stream,
		seg:          NewSegmenter(eng.NeedsTailPadding(), c.cfg.Audio.SampleRate),
		sink:         func(tr Transcript) { onText(tr.Text) },
		onEndpoint:   c.cfg.OnEndpoint,
		metrics:      c.metrics,
		running:      &c.running,
		frameSamples: c.cfg.Audio.FrameSamples(),
		sampleRate:   c.cfg.Audio.SampleRate,
		log:          log,
	}

	done := make(chan struct{})
	c.running.Store(true)
	go func() {
		defer close(done)
		w.run()
	}()

	return &session{
		id:      id,
		engine:  eng,
		source:  src,
		done:    done,
		started: time.Now(),
	}, nil
}

// abort returns a failed Start to OFF.
func (c *Coordinator) abort(log *slog.Logger) {
	if err := c.state.transition(StateOff); err != nil {
		log.Error("voice: state", "err", err)
	}
}

// Stop halts the worker, waits for it to exit and then releases the audio
// source and the engine, in that order. Stopping while OFF is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "voice.Stop")
	defer span.End()
	log := observe.Logger(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.sess
	if sess == nil {
		log.Info("voice input not running, stop ignored")
		return nil
	}
	ctx = observe.WithSession(ctx, sess.id)
	log = observe.Logger(ctx)

	c.running.Store(false)
	<-sess.done

	var errs []error
	if err := sess.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("voice: close audio source: %w", err))
	}
	if err := sess.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("voice: close engine: %w", err))
	}

	c.sess = nil
	c.sessID.Store(nil)
	if err := c.state.transition(StateOff); err != nil {
		log.Error("voice: state", "err", err)
	}
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.metrics.SessionStops.Add(ctx, 1)
	c.metrics.SessionDuration.Record(ctx, time.Since(sess.started).Seconds())
	log.Info("voice input stopped")
	c.events.enqueue(ctx, log, eventbus.NewEvent(eventbus.ServiceStop, sess.id))

	return errors.Join(errs...)
}

// Flush blocks until every lifecycle event published so far was handed to
// the bus subscribers, or ctx ends. It must not be called from a bus handler.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.events.flush(ctx)
}

// startStatus maps a Start error to its metric label.
func startStatus(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrEngineInitFailed):
		return "engine_init_failed"
	default:
		return "error"
	}
}

func closeLogged(log *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("voice: release after failed start", "resource", what, "err", err)
	}
}
