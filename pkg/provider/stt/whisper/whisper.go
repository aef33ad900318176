// Package whisper adapts whisper.cpp, a batch transcription engine, to the
// incremental [stt.Engine] contract.
//
// Audio handed to a Stream is gated by an energy voice-activity detector.
// Speech is buffered until the detector reports the end of the segment (or
// the buffer reaches its maximum duration); the closed segment makes the
// stream ready, and the next Decode transcribes it in one pass. A segment
// closed by trailing silence also marks an endpoint.
//
// Two transcription backends are available:
//
//   - [NewLoader] runs whisper.cpp in-process through the CGO bindings.
//   - [NewServerLoader] posts each segment to a running whisper-server
//     (POST /inference).
//
// Usage:
//
//	loader := whisper.NewServerLoader("http://localhost:8080", stt.Config{Language: "en"},
//	    whisper.WithSilenceThresholdMs(500),
//	)
//	eng, err := loader.Load(ctx)
//	stream, err := eng.NewStream()
package whisper

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxctl/pkg/provider/stt"
	"github.com/MrWong99/voxctl/pkg/provider/vad"
	"github.com/MrWong99/voxctl/pkg/provider/vad/energy"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which audio is considered silent. The maximum possible value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000

	// inferenceTimeout bounds a single transcription call.
	inferenceTimeout = 30 * time.Second
)

// transcriber turns one closed speech segment into text.
type transcriber interface {
	transcribe(ctx context.Context, samples []float32) (string, error)
}

// options holds settings shared by both loaders.
type options struct {
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
	vad                 vad.Engine
	httpClient          *http.Client
}

func defaultOptions() options {
	return options{
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		vad:                 energy.New(),
		httpClient:          &http.Client{Timeout: inferenceTimeout},
	}
}

// Option is a functional option for configuring a loader.
type Option func(*options)

// WithRMSThreshold sets the RMS level (16-bit PCM units) that counts as
// speech. Defaults to 300.
func WithRMSThreshold(rms float64) Option {
	return func(o *options) { o.rmsThreshold = rms }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (in
// milliseconds) that closes a speech segment and marks an endpoint. Shorter
// values produce more responsive transcription at the cost of potentially
// splitting utterances. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(o *options) { o.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum duration of audio (in milliseconds)
// that may accumulate before a segment is closed regardless of silence. Such
// a forced close is decoded without marking an endpoint. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(o *options) { o.maxBufferDurationMs = ms }
}

// WithVAD replaces the energy detector used for segmentation.
func WithVAD(e vad.Engine) Option {
	return func(o *options) { o.vad = e }
}

// WithHTTPClient sets the client used by the whisper-server backend.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Compile-time assertions.
var (
	_ stt.Engine = (*Engine)(nil)
	_ stt.Stream = (*stream)(nil)
)

// Engine hands out VAD-segmented streams over a shared transcriber.
type Engine struct {
	tr         transcriber
	opts       options
	sampleRate int
	release    func() error

	mu     sync.Mutex
	closed bool
}

func newEngine(tr transcriber, cfg stt.Config, opts options, release func() error) *Engine {
	return &Engine{
		tr:         tr,
		opts:       opts,
		sampleRate: cfg.WithDefaults().SampleRate,
		release:    release,
	}
}

// NewStream opens a VAD session and returns a fresh stream.
func (e *Engine) NewStream() (stt.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, stt.ErrClosed
	}
	sess, err := e.opts.vad.NewSession(vad.Config{
		SampleRate:      e.sampleRate,
		SpeechThreshold: e.opts.rmsThreshold,
		HangoverMs:      e.opts.silenceThresholdMs,
	})
	if err != nil {
		return nil, err
	}
	return &stream{
		tr:         e.tr,
		vad:        sess,
		sampleRate: e.sampleRate,
		maxSamples: e.sampleRate * e.opts.maxBufferDurationMs / 1000,
	}, nil
}

// NeedsTailPadding is false: segments close on detected silence.
func (e *Engine) NeedsTailPadding() bool { return false }

// Close releases the transcription backend.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.release != nil {
		return e.release()
	}
	return nil
}

// segment is a closed chunk of speech waiting for Decode.
type segment struct {
	samples []float32
	// final is set when trailing silence closed the segment.
	final bool
}

// stream buffers speech between VAD boundaries. All methods run on the
// pipeline worker goroutine.
type stream struct {
	tr         transcriber
	vad        vad.SessionHandle
	sampleRate int
	maxSamples int

	open     []float32
	inSpeech bool
	closed   []segment

	text     string
	endpoint bool
	once     sync.Once
}

func (s *stream) AcceptWaveform(sampleRate int, samples []float32) {
	if sampleRate > 0 && sampleRate != s.sampleRate {
		slog.Warn("whisper: sample rate mismatch", "got", sampleRate, "want", s.sampleRate)
	}
	ev, err := s.vad.ProcessFrame(floatToPCM16(samples))
	if err != nil {
		slog.Warn("whisper: vad failed, frame dropped", "err", err)
		return
	}

	switch ev.Kind {
	case vad.SpeechStart:
		s.inSpeech = true
		s.open = append(s.open, samples...)
	case vad.SpeechContinue:
		if s.inSpeech {
			s.open = append(s.open, samples...)
		}
	case vad.SpeechEnd:
		s.open = append(s.open, samples...)
		s.inSpeech = false
		s.closeSegment(true)
	case vad.Silence:
	}

	if s.maxSamples > 0 && len(s.open) >= s.maxSamples {
		s.closeSegment(false)
	}
}

func (s *stream) closeSegment(final bool) {
	if len(s.open) == 0 {
		return
	}
	s.closed = append(s.closed, segment{samples: s.open, final: final})
	s.open = nil
}

func (s *stream) IsReady() bool { return len(s.closed) > 0 }

// Decode transcribes the oldest closed segment. Text of forced segments
// accumulates until the endpoint.
func (s *stream) Decode() {
	if len(s.closed) == 0 {
		return
	}
	seg := s.closed[0]
	s.closed = s.closed[1:]

	ctx, cancel := context.WithTimeout(context.Background(), inferenceTimeout)
	defer cancel()
	text, err := s.tr.transcribe(ctx, seg.samples)
	if err != nil {
		slog.Error("whisper inference failed", "err", err)
	}
	if text = strings.TrimSpace(text); text != "" {
		if s.text != "" {
			s.text += " "
		}
		s.text += text
	}
	if seg.final {
		s.endpoint = true
	}
}

func (s *stream) IsEndpoint() bool { return s.endpoint }
func (s *stream) Text() string     { return s.text }

func (s *stream) Reset() {
	s.text = ""
	s.endpoint = false
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.vad.Close()
		s.open = nil
		s.closed = nil
	})
	return err
}
