// Package mock provides test doubles for the stt package interfaces.
//
// Use Loader to control engine initialization, Engine to hand out scripted
// Streams, and Stream to simulate incremental decoding. Every mock can share
// a CallLog so tests can assert on the relative order of lifecycle calls
// across collaborators.
//
// Example:
//
//	log := &mock.CallLog{}
//	stream := &mock.Stream{Log: log, Recognize: func(chunk []float32) (string, bool) {
//	    return "hello", false
//	}}
//	eng := &mock.Engine{Log: log, Stream: stream}
//	loader := &mock.Loader{Log: log, Engine: eng}
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// CallLog is an ordered, concurrency-safe record of calls across mocks.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// Record appends name to the log. A nil CallLog ignores the call.
func (l *CallLog) Record(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, name)
}

// Entries returns a copy of the recorded calls.
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// ─── Loader ───────────────────────────────────────────────────────────────────

// Loader is a mock implementation of stt.Loader.
type Loader struct {
	mu sync.Mutex

	// Engine is returned by Load. If nil and NewEngine is nil, a fresh
	// default Engine is returned.
	Engine stt.Engine

	// NewEngine, if set, builds the Engine for every Load. Takes precedence
	// over Engine.
	NewEngine func() stt.Engine

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// LoadDelay is slept before Load returns.
	LoadDelay time.Duration

	// Log receives "engine.Load".
	Log *CallLog

	// LoadCount is the number of Load calls.
	LoadCount int
}

// Load implements stt.Loader.
func (l *Loader) Load(_ context.Context) (stt.Engine, error) {
	l.mu.Lock()
	l.LoadCount++
	delay := l.LoadDelay
	log := l.Log
	l.mu.Unlock()

	log.Record("engine.Load")
	time.Sleep(delay)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LoadErr != nil {
		return nil, l.LoadErr
	}
	if l.NewEngine != nil {
		return l.NewEngine(), nil
	}
	if l.Engine != nil {
		return l.Engine, nil
	}
	return &Engine{Log: l.Log}, nil
}

// Loads returns the number of Load calls. Thread-safe.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.LoadCount
}

var _ stt.Loader = (*Loader)(nil)

// ─── Engine ───────────────────────────────────────────────────────────────────

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Stream is returned by NewStream. If nil, NewStreamFunc is used, and if
	// that is nil too a fresh default Stream is returned.
	Stream stt.Stream

	// NewStreamFunc, if set and Stream is nil, builds each stream.
	NewStreamFunc func() stt.Stream

	// NewStreamErr, if non-nil, is returned by NewStream.
	NewStreamErr error

	// TailPadding is returned by NeedsTailPadding.
	TailPadding bool

	// CloseErr is returned by Close.
	CloseErr error

	// Log receives "engine.NewStream" and "engine.Close".
	Log *CallLog

	// NewStreamCount and CloseCount record call counts.
	NewStreamCount int
	CloseCount     int

	// CallsAfterClose counts NewStream calls made after Close.
	CallsAfterClose int

	closed bool
}

// NewStream implements stt.Engine.
func (e *Engine) NewStream() (stt.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Log.Record("engine.NewStream")
	e.NewStreamCount++
	if e.closed {
		e.CallsAfterClose++
		return nil, stt.ErrClosed
	}
	if e.NewStreamErr != nil {
		return nil, e.NewStreamErr
	}
	if e.Stream != nil {
		return e.Stream, nil
	}
	if e.NewStreamFunc != nil {
		return e.NewStreamFunc(), nil
	}
	return &Stream{Log: e.Log}, nil
}

// NeedsTailPadding implements stt.Engine.
func (e *Engine) NeedsTailPadding() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.TailPadding
}

// Close implements stt.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Log.Record("engine.Close")
	e.CloseCount++
	e.closed = true
	return e.CloseErr
}

// Closed reports whether Close was called. Thread-safe.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Closes returns the number of Close calls. Thread-safe.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CloseCount
}

var _ stt.Engine = (*Engine)(nil)

// ─── Stream ───────────────────────────────────────────────────────────────────

// defaultChunk is how many samples one Decode consumes when ChunkSamples is
// unset: one 100 ms frame at 16 kHz.
const defaultChunk = 1600

// Stream is a mock implementation of stt.Stream.
//
// Accepted samples queue up; IsReady is true while at least ChunkSamples are
// queued. Each Decode consumes one chunk and passes it to Recognize, whose
// result replaces the current hypothesis and endpoint flag. Reset clears the
// hypothesis and endpoint flag but keeps queued samples.
type Stream struct {
	mu sync.Mutex

	// ChunkSamples is the number of samples consumed per Decode. Defaults to
	// 1600.
	ChunkSamples int

	// Recognize maps a decoded chunk to the new hypothesis and endpoint flag.
	// If nil, Decode only consumes samples.
	Recognize func(chunk []float32) (text string, endpoint bool)

	// Log receives "stream.Reset" and "stream.Close".
	Log *CallLog

	// --- Call records ---

	// AcceptCalls records the length of every AcceptWaveform call.
	AcceptCalls []int

	// SampleRates records the rate passed to every AcceptWaveform call.
	SampleRates []int

	DecodeCount     int
	IsReadyCount    int
	IsEndpointCount int
	TextCount       int
	ResetCount      int
	CloseCount      int

	// CallsAfterClose counts any call other than Close made after Close.
	CallsAfterClose int

	// MaxConcurrent is the highest number of goroutines observed inside a
	// Stream method at once.
	MaxConcurrent int

	pending  []float32
	text     string
	endpoint bool
	closed   bool
	inside   int
}

// enter records concurrency and post-close usage. Must hold s.mu.
func (s *Stream) enter() {
	if s.closed {
		s.CallsAfterClose++
	}
	s.inside++
	s.MaxConcurrent = max(s.MaxConcurrent, s.inside)
}

func (s *Stream) leave() { s.inside-- }

func (s *Stream) chunk() int {
	if s.ChunkSamples > 0 {
		return s.ChunkSamples
	}
	return defaultChunk
}

// AcceptWaveform implements stt.Stream.
func (s *Stream) AcceptWaveform(sampleRate int, samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter()
	defer s.leave()
	s.AcceptCalls = append(s.AcceptCalls, len(samples))
	s.SampleRates = append(s.SampleRates, sampleRate)
	s.pending = append(s.pending, samples...)
}

// IsReady implements stt.Stream.
func (s *Stream) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter()
	defer s.leave()
	s.IsReadyCount++
	return len(s.pending) >= s.chunk()
}

// Decode implements stt.Stream.
func (s *Stream) Decode() {
	s.mu.Lock()
	s.enter()
	s.DecodeCount++
	n := min(s.chunk(), len(s.pending))
	chunk := slices.Clone(s.pending[:n])
	s.pending = s.pending[n:]
	recognize := s.Recognize
	s.mu.Unlock()

	var (
		text     string
		endpoint bool
		set      bool
	)
	if recognize != nil {
		text, endpoint = recognize(chunk)
		set = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if set {
		s.text = text
		s.endpoint = endpoint
	}
	s.leave()
}

// IsEndpoint implements stt.Stream.
func (s *Stream) IsEndpoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter()
	defer s.leave()
	s.IsEndpointCount++
	return s.endpoint
}

// Text implements stt.Stream.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter()
	defer s.leave()
	s.TextCount++
	return s.text
}

// Reset implements stt.Stream.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter()
	defer s.leave()
	s.Log.Record("stream.Reset")
	s.ResetCount++
	s.text = ""
	s.endpoint = false
}

// Close implements stt.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log.Record("stream.Close")
	s.CloseCount++
	s.closed = true
	return nil
}

// SetHypothesis sets the current text and endpoint flag directly.
func (s *Stream) SetHypothesis(text string, endpoint bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.endpoint = endpoint
}

// Pending returns how many accepted samples have not been decoded yet.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Snapshot returns a copy of the call counters. Thread-safe.
func (s *Stream) Snapshot() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		AcceptCalls:     len(s.AcceptCalls),
		Decodes:         s.DecodeCount,
		Resets:          s.ResetCount,
		Closes:          s.CloseCount,
		CallsAfterClose: s.CallsAfterClose,
		MaxConcurrent:   s.MaxConcurrent,
	}
}

// StreamStats is a point-in-time copy of Stream call counters.
type StreamStats struct {
	AcceptCalls     int
	Decodes         int
	Resets          int
	Closes          int
	CallsAfterClose int
	MaxConcurrent   int
}

var _ stt.Stream = (*Stream)(nil)
