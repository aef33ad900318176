package stt

import "time"

// Model families understood by engines that support several architectures.
const (
	ModelTransducer    = "transducer"
	ModelParaformer    = "paraformer"
	ModelZipformer2CTC = "zipformer2_ctc"
)

// Recognition defaults.
const (
	DefaultSampleRate     = 16000
	DefaultFeatureDim     = 80
	DefaultNumThreads     = 1
	DefaultProvider       = "cpu"
	DefaultDecodingMethod = "greedy_search"

	DefaultRule1MinTrailingSilence = 2.4
	DefaultRule2MinTrailingSilence = 1.2
	DefaultRule3MinUtteranceLength = 20.0
)

// TailPadding is the amount of silence fed at an endpoint to models that
// need it before their last tokens are emitted.
const TailPadding = 800 * time.Millisecond

// Config is supplied once when an engine is loaded and is immutable for the
// lifetime of that engine. Engines ignore fields that do not apply to them.
type Config struct {
	// ModelType selects the model family (see the Model* constants).
	ModelType string

	// ModelDir is a directory that relative model paths are resolved against.
	ModelDir string

	// Encoder, Decoder and Joiner are model component files. Joiner is only
	// used by transducers; CTC models only use Encoder.
	Encoder string
	Decoder string
	Joiner  string

	// Tokens is the token table file.
	Tokens string

	// Model is a single-file model path for engines that use one (whisper).
	Model string

	FeatureDim     int
	SampleRate     int
	NumThreads     int
	Provider       string
	DecodingMethod string

	// EnableEndpoint turns on engine-side endpoint detection.
	EnableEndpoint bool

	// Endpoint rules in seconds: trailing silence after no speech, trailing
	// silence after speech, and maximum utterance length.
	Rule1MinTrailingSilence float64
	Rule2MinTrailingSilence float64
	Rule3MinUtteranceLength float64

	// Language is a BCP-47 tag for engines that take one. Empty lets the
	// engine decide.
	Language string

	// Debug enables engine-side diagnostic output.
	Debug bool
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.FeatureDim <= 0 {
		c.FeatureDim = DefaultFeatureDim
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.NumThreads <= 0 {
		c.NumThreads = DefaultNumThreads
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.DecodingMethod == "" {
		c.DecodingMethod = DefaultDecodingMethod
	}
	if c.Rule1MinTrailingSilence <= 0 {
		c.Rule1MinTrailingSilence = DefaultRule1MinTrailingSilence
	}
	if c.Rule2MinTrailingSilence <= 0 {
		c.Rule2MinTrailingSilence = DefaultRule2MinTrailingSilence
	}
	if c.Rule3MinUtteranceLength <= 0 {
		c.Rule3MinUtteranceLength = DefaultRule3MinUtteranceLength
	}
	return c
}
