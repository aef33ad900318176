// Package audio defines the microphone abstraction consumed by the voice
// pipeline.
//
// The two primary abstractions are:
//
//   - [Opener] acquires a capture device and returns a [Source].
//   - [Source] is a blocking reader of fixed-size frames of mono 16-bit PCM.
//
// Implementations live in backend packages (audio/portaudio, audio/malgo,
// audio/wavfile). The interfaces are intentionally narrow so the pipeline
// worker stays decoupled from device details.
package audio

import (
	"context"
	"time"
)

const (
	// SampleRate is the fixed capture rate in Hz.
	SampleRate = 16000

	// Channels is the fixed capture channel count (mono).
	Channels = 1

	// FrameDuration is the nominal duration of one frame handed to the
	// recognizer.
	FrameDuration = 100 * time.Millisecond
)

// Config describes how the capture device should be opened.
type Config struct {
	// SampleRate in Hz. Must be [SampleRate].
	SampleRate int

	// Channels must be [Channels].
	Channels int

	// FrameDuration is the duration of one frame. Defaults to [FrameDuration].
	FrameDuration time.Duration

	// Device selects a backend-specific input device. Empty means the system
	// default.
	Device string

	// File is the path of a recording replayed by file-backed sources.
	File string

	// Realtime paces file-backed sources at capture speed.
	Realtime bool
}

// DefaultConfig returns the fixed capture contract: 16 kHz mono, 100 ms frames.
func DefaultConfig() Config {
	return Config{
		SampleRate:    SampleRate,
		Channels:      Channels,
		FrameDuration: FrameDuration,
	}
}

// FrameSamples returns the number of samples in one frame (1600 for the
// default contract).
func (c Config) FrameSamples() int {
	rate := c.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	d := c.FrameDuration
	if d <= 0 {
		d = FrameDuration
	}
	return int(int64(rate) * int64(d) / int64(time.Second))
}

// Source is an open capture device.
//
// Read blocks until up to len(buf) samples are available and returns the
// number of samples written. A zero or negative count means no data was
// available; callers skip such reads. Read is called from a single goroutine.
//
// Close stops capture and releases the device. It must only be called once no
// goroutine is inside Read. Calling Close more than once is safe.
type Source interface {
	Read(buf []int16) (int, error)
	Close() error
}

// Opener acquires capture devices.
type Opener interface {
	// Open starts capture with cfg and returns the live [Source]. The caller
	// owns the Source and must Close it.
	Open(ctx context.Context, cfg Config) (Source, error)
}

// OpenerFunc adapts a function to the [Opener] interface.
type OpenerFunc func(ctx context.Context, cfg Config) (Source, error)

// Open calls f(ctx, cfg).
func (f OpenerFunc) Open(ctx context.Context, cfg Config) (Source, error) {
	return f(ctx, cfg)
}
