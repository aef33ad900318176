package vad

// Kind classifies one frame relative to the surrounding speech segment.
type Kind int

const (
	// Silence: no segment is open. The zero value.
	Silence Kind = iota
	// SpeechStart: the frame opens a segment.
	SpeechStart
	// SpeechContinue: the frame belongs to an open segment, including the
	// quiet frames of the hangover.
	SpeechContinue
	// SpeechEnd: the frame closes the open segment.
	SpeechEnd
)

var kindNames = [...]string{
	Silence:        "silence",
	SpeechStart:    "speech_start",
	SpeechContinue: "speech_continue",
	SpeechEnd:      "speech_end",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// InSpeech reports whether a frame of this kind carries segment audio.
func (k Kind) InSpeech() bool { return k != Silence }

// Event is the detection result for one frame.
type Event struct {
	Kind Kind

	// Score is the speech likelihood in [0, 1]. The energy engine reports the
	// frame level over SpeechThreshold, clamped to 1.
	Score float64
}
