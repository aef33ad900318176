package voice

import (
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Segmenter applies the decode and endpoint protocol to a stream.
type Segmenter struct {
	needsTailPadding bool
	sampleRate       int
	padding          []float32
}

// NewSegmenter returns a Segmenter for an engine with the given tail-padding
// capability. The padding buffer is allocated once.
func NewSegmenter(needsTailPadding bool, sampleRate int) *Segmenter {
	s := &Segmenter{needsTailPadding: needsTailPadding, sampleRate: sampleRate}
	if needsTailPadding {
		s.padding = audio.Silence(sampleRate, stt.TailPadding)
	}
	return s
}

// NeedsTailPadding reports whether Finalize pads at endpoints.
func (s *Segmenter) NeedsTailPadding() bool { return s.needsTailPadding }

// Drain decodes until the stream has no pending work and returns the number
// of decode steps. Readiness is always checked at least once.
func (s *Segmenter) Drain(stream stt.Stream) int {
	steps := 0
	for stream.IsReady() {
		stream.Decode()
		steps++
	}
	return steps
}

// Finalize returns the stream's current text. At an endpoint on a model that
// needs it, one chunk of silence is fed and drained first so the last tokens
// are flushed.
func (s *Segmenter) Finalize(stream stt.Stream, endpoint bool) string {
	text := stream.Text()
	if endpoint && s.needsTailPadding {
		stream.AcceptWaveform(s.sampleRate, s.padding)
		s.Drain(stream)
		text = stream.Text()
	}
	return text
}

// Reset starts a new utterance on the stream.
func (s *Segmenter) Reset(stream stt.Stream) { stream.Reset() }
