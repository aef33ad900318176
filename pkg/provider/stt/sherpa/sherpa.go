// Package sherpa implements [stt.Engine] on top of the sherpa-onnx streaming
// (online) recognizer. Transducer (zipformer), paraformer and zipformer2 CTC
// models are supported; the model family is selected by [stt.Config.ModelType].
//
// The native recognizer is loaded once per Engine and shared by every Stream
// it creates. Streams are not safe for concurrent use.
package sherpa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	sherpaonnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Compile-time interface assertions.
var (
	_ stt.Loader = (*Loader)(nil)
	_ stt.Engine = (*Engine)(nil)
	_ stt.Stream = (*stream)(nil)
)

// Loader builds sherpa-onnx engines from a fixed configuration.
type Loader struct {
	cfg stt.Config
}

// NewLoader returns a Loader for cfg. The configuration is validated when
// Load is called.
func NewLoader(cfg stt.Config) *Loader {
	return &Loader{cfg: cfg.WithDefaults()}
}

// Load validates the model files and creates the native recognizer.
func (l *Loader) Load(ctx context.Context) (stt.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sherpa: context already cancelled: %w", err)
	}
	rc, err := buildConfig(l.cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range modelFiles(rc) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("sherpa: model file: %w", err)
		}
	}

	rec := sherpaonnx.NewOnlineRecognizer(&rc)
	if rec == nil {
		return nil, fmt.Errorf("sherpa: create %s recognizer failed", l.cfg.ModelType)
	}
	slog.Debug("sherpa recognizer loaded",
		"model_type", l.cfg.ModelType,
		"provider", rc.ModelConfig.Provider,
		"threads", rc.ModelConfig.NumThreads,
	)
	return &Engine{
		rec:         rec,
		tailPadding: needsTailPadding(l.cfg.ModelType),
	}, nil
}

// Engine owns a native online recognizer.
type Engine struct {
	mu          sync.Mutex
	rec         *sherpaonnx.OnlineRecognizer
	tailPadding bool
}

// NewStream creates a decoding stream on the shared recognizer.
func (e *Engine) NewStream() (stt.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, stt.ErrClosed
	}
	s := sherpaonnx.NewOnlineStream(e.rec)
	if s == nil {
		return nil, errors.New("sherpa: create stream failed")
	}
	return &stream{rec: e.rec, s: s}, nil
}

// NeedsTailPadding reports true for the streaming paraformer family, which
// holds back its final tokens until trailing silence arrives.
func (e *Engine) NeedsTailPadding() bool { return e.tailPadding }

// Close deletes the native recognizer.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		sherpaonnx.DeleteOnlineRecognizer(e.rec)
		e.rec = nil
	}
	return nil
}

// stream adapts a native online stream to stt.Stream.
type stream struct {
	rec  *sherpaonnx.OnlineRecognizer
	s    *sherpaonnx.OnlineStream
	once sync.Once
}

func (s *stream) AcceptWaveform(sampleRate int, samples []float32) {
	s.s.AcceptWaveform(sampleRate, samples)
}

func (s *stream) IsReady() bool    { return s.rec.IsReady(s.s) }
func (s *stream) Decode()          { s.rec.Decode(s.s) }
func (s *stream) IsEndpoint() bool { return s.rec.IsEndpoint(s.s) }
func (s *stream) Reset()           { s.rec.Reset(s.s) }

func (s *stream) Text() string {
	res := s.rec.GetResult(s.s)
	if res == nil {
		return ""
	}
	return res.Text
}

func (s *stream) Close() error {
	s.once.Do(func() { sherpaonnx.DeleteOnlineStream(s.s) })
	return nil
}

// needsTailPadding reports whether modelType flushes late.
func needsTailPadding(modelType string) bool {
	return modelType == stt.ModelParaformer
}

// buildConfig maps cfg onto the native recognizer configuration. Relative
// model paths are resolved against cfg.ModelDir.
func buildConfig(cfg stt.Config) (sherpaonnx.OnlineRecognizerConfig, error) {
	cfg = cfg.WithDefaults()
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || cfg.ModelDir == "" {
			return p
		}
		return filepath.Join(cfg.ModelDir, p)
	}

	var rc sherpaonnx.OnlineRecognizerConfig
	rc.FeatConfig.SampleRate = cfg.SampleRate
	rc.FeatConfig.FeatureDim = cfg.FeatureDim
	rc.ModelConfig.Tokens = resolve(cfg.Tokens)
	rc.ModelConfig.NumThreads = cfg.NumThreads
	rc.ModelConfig.Provider = cfg.Provider
	if cfg.Debug {
		rc.ModelConfig.Debug = 1
	}
	rc.DecodingMethod = cfg.DecodingMethod
	if cfg.EnableEndpoint {
		rc.EnableEndpoint = 1
	}
	rc.Rule1MinTrailingSilence = float32(cfg.Rule1MinTrailingSilence)
	rc.Rule2MinTrailingSilence = float32(cfg.Rule2MinTrailingSilence)
	rc.Rule3MinUtteranceLength = float32(cfg.Rule3MinUtteranceLength)

	var errs []error
	require := func(field, v string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("sherpa: %s model requires %s", cfg.ModelType, field))
		}
	}
	require("tokens", cfg.Tokens)

	switch cfg.ModelType {
	case stt.ModelTransducer:
		require("encoder", cfg.Encoder)
		require("decoder", cfg.Decoder)
		require("joiner", cfg.Joiner)
		rc.ModelConfig.Transducer.Encoder = resolve(cfg.Encoder)
		rc.ModelConfig.Transducer.Decoder = resolve(cfg.Decoder)
		rc.ModelConfig.Transducer.Joiner = resolve(cfg.Joiner)
	case stt.ModelParaformer:
		require("encoder", cfg.Encoder)
		require("decoder", cfg.Decoder)
		rc.ModelConfig.Paraformer.Encoder = resolve(cfg.Encoder)
		rc.ModelConfig.Paraformer.Decoder = resolve(cfg.Decoder)
	case stt.ModelZipformer2CTC:
		require("encoder", cfg.Encoder)
		rc.ModelConfig.Zipformer2Ctc.Model = resolve(cfg.Encoder)
	default:
		errs = append(errs, fmt.Errorf("sherpa: unsupported model type %q", cfg.ModelType))
	}
	if err := errors.Join(errs...); err != nil {
		return sherpaonnx.OnlineRecognizerConfig{}, err
	}
	return rc, nil
}

// modelFiles lists the non-empty file paths referenced by rc.
func modelFiles(rc sherpaonnx.OnlineRecognizerConfig) []string {
	mc := rc.ModelConfig
	var out []string
	for _, p := range []string{
		mc.Tokens,
		mc.Transducer.Encoder, mc.Transducer.Decoder, mc.Transducer.Joiner,
		mc.Paraformer.Encoder, mc.Paraformer.Decoder,
		mc.Zipformer2Ctc.Model,
	} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
