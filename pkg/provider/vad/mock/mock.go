// Package mock scripts VAD decisions for tests of code that segments audio
// with a [vad.Engine].
package mock

import (
	"sync"

	"github.com/MrWong99/voxctl/pkg/provider/vad"
)

// Engine hands out Session, or a fresh all-silence session when Session is
// nil, and records each requested config.
type Engine struct {
	Session *Session
	Err     error

	mu      sync.Mutex
	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Session == nil {
		return &Session{}, nil
	}
	return e.Session, nil
}

// Configs returns the configs passed to NewSession so far.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session answers frame i with Script[i] and with Then once the script runs
// out. Then defaults to [vad.Silence].
type Session struct {
	Script []vad.Kind
	Then   vad.Kind
	Err    error

	mu     sync.Mutex
	frames int
	resets int
	closed bool
}

var _ vad.SessionHandle = (*Session)(nil)

func (s *Session) ProcessFrame(frame []int16) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return vad.Event{}, s.Err
	}
	k := s.Then
	if s.frames < len(s.Script) {
		k = s.Script[s.frames]
	}
	s.frames++
	var score float64
	if k.InSpeech() {
		score = 1
	}
	return vad.Event{Kind: k, Score: score}, nil
}

// Reset rewinds the script.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = 0
	s.resets++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns how many frames were processed since the last Reset.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
