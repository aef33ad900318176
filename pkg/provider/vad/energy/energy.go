// Package energy implements [vad.Engine] with a root-mean-square level
// detector. A frame whose RMS reaches SpeechThreshold starts (or continues) a
// speech segment; the segment ends once the level stays below
// SilenceThreshold for HangoverMs.
package energy

import (
	"fmt"
	"sync"

	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/vad"
)

const (
	// DefaultSpeechThreshold is the RMS level (16-bit PCM units) that counts
	// as speech. Quiet room noise is typically 50-200; normal speech 1000+.
	DefaultSpeechThreshold = 300.0

	// DefaultHangoverMs is the silence duration that closes a segment.
	DefaultHangoverMs = 500
)

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates energy-based VAD sessions. It holds no state and is safe
// for concurrent use.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg, applies defaults and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs < 0 {
		return nil, fmt.Errorf("energy: frame size must not be negative, got %d", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = cfg.SpeechThreshold
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.1f exceeds speech threshold %.1f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.HangoverMs <= 0 {
		cfg.HangoverMs = DefaultHangoverMs
	}
	return &session{cfg: cfg, frameSamples: cfg.FrameSamples()}, nil
}

// session tracks one stream's speech state.
type session struct {
	cfg          vad.Config
	frameSamples int

	mu        sync.Mutex
	inSpeech  bool
	silenceMs int
	closed    bool
}

// ProcessFrame classifies frame and advances the segment state machine.
func (s *session) ProcessFrame(frame []int16) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, fmt.Errorf("energy: session is closed")
	}
	if s.frameSamples > 0 && len(frame) != s.frameSamples {
		return vad.Event{}, fmt.Errorf("%w: got %d samples, want %d", vad.ErrFrameSize, len(frame), s.frameSamples)
	}

	level := audio.RMS(frame)
	prob := min(level/s.cfg.SpeechThreshold, 1)
	frameMs := int(audio.DurationOf(len(frame), s.cfg.SampleRate).Milliseconds())

	switch {
	case level >= s.cfg.SpeechThreshold:
		s.silenceMs = 0
		if !s.inSpeech {
			s.inSpeech = true
			return vad.Event{Kind: vad.SpeechStart, Score: prob}, nil
		}
		return vad.Event{Kind: vad.SpeechContinue, Score: prob}, nil

	case !s.inSpeech:
		return vad.Event{Kind: vad.Silence, Score: prob}, nil

	case level < s.cfg.SilenceThreshold:
		s.silenceMs += frameMs
		if s.silenceMs >= s.cfg.HangoverMs {
			s.inSpeech = false
			s.silenceMs = 0
			return vad.Event{Kind: vad.SpeechEnd, Score: prob}, nil
		}
		return vad.Event{Kind: vad.SpeechContinue, Score: prob}, nil

	default:
		// Between the thresholds: hold the current segment open.
		return vad.Event{Kind: vad.SpeechContinue, Score: prob}, nil
	}
}

// Reset returns the session to the silent state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.silenceMs = 0
}

// Close marks the session closed.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
