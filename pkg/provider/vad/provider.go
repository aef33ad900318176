// Package vad segments PCM audio into speech and silence for recognition
// engines that have no endpointing of their own.
//
// Detection is per stream: each [SessionHandle] carries its own hysteresis
// and hangover state, and classifies frames synchronously.
package vad

import "errors"

// ErrFrameSize is returned by ProcessFrame when the frame length does not
// match the configured FrameSizeMs.
var ErrFrameSize = errors.New("vad: frame size does not match session config")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Zero
	// accepts frames of any length.
	FrameSizeMs int

	// SpeechThreshold is the level above which a frame is classified as
	// speech, in the engine's native scale. For the energy engine this is RMS
	// in 16-bit PCM units.
	SpeechThreshold float64

	// SilenceThreshold is the level below which a frame counts towards the end
	// of an active segment. Must be ≤ SpeechThreshold. Zero means equal to
	// SpeechThreshold.
	SilenceThreshold float64

	// HangoverMs is how long the level must stay below SilenceThreshold
	// before an active segment ends.
	HangoverMs int
}

// FrameSamples returns the number of samples one frame must contain, or zero
// when the session accepts any length.
func (c Config) FrameSamples() int {
	if c.FrameSizeMs <= 0 || c.SampleRate <= 0 {
		return 0
	}
	return c.SampleRate * c.FrameSizeMs / 1000
}

// SessionHandle is the detector state for one audio stream. It is used from
// a single goroutine.
type SessionHandle interface {
	// ProcessFrame classifies one frame of mono 16-bit PCM without blocking.
	ProcessFrame(frame []int16) (Event, error)
	// Reset forgets the open segment and hangover.
	Reset()
	// Close is idempotent.
	Close() error
}

// Engine opens sessions. It must be safe for concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
