// Package stt defines the contract for incremental Speech-to-Text engines.
//
// An Engine wraps a loaded recognition model. It hands out Streams: stateful
// decoders that accept normalized float32 audio, decode incrementally while
// IsReady reports pending work, expose the current best hypothesis through
// Text, and signal utterance boundaries through IsEndpoint. Reset starts a
// new utterance on the same stream.
//
// A Stream is not safe for concurrent use. The voice pipeline confines each
// Stream to a single worker goroutine; AcceptWaveform, Decode and Reset never
// run concurrently on the same stream. The Engine must outlive every Stream
// it created.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a released Engine.
var ErrClosed = errors.New("stt: engine is closed")

// Stream is one incremental decoding session.
type Stream interface {
	// AcceptWaveform appends samples (normalized to [-1, 1)) captured at
	// sampleRate to the stream's input.
	AcceptWaveform(sampleRate int, samples []float32)

	// IsReady reports whether enough input is buffered for another Decode
	// step.
	IsReady() bool

	// Decode performs one decoding step. Callers loop while IsReady is true.
	Decode()

	// IsEndpoint reports whether the engine detected the end of an utterance.
	IsEndpoint() bool

	// Text returns the current best hypothesis for the active utterance. It
	// may be empty.
	Text() string

	// Reset clears the utterance state so decoding continues with a fresh
	// hypothesis.
	Reset()

	// Close releases the stream. Calling Close more than once is safe.
	Close() error
}

// Engine is a loaded recognition model.
type Engine interface {
	// NewStream creates a decoding stream bound to this engine.
	NewStream() (Stream, error)

	// NeedsTailPadding reports whether the model only flushes its final
	// tokens after trailing silence is fed at an endpoint.
	NeedsTailPadding() bool

	// Close releases the model. All streams must be closed first. Calling
	// Close more than once is safe.
	Close() error
}

// Loader initializes an Engine. Loading is typically slow (model files are
// read and graph sessions created), so it respects ctx only before work
// starts.
type Loader interface {
	Load(ctx context.Context) (Engine, error)
}

// LoaderFunc adapts a function to the [Loader] interface.
type LoaderFunc func(ctx context.Context) (Engine, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (Engine, error) { return f(ctx) }
