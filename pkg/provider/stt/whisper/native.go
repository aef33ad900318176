// This file contains the in-process backend built on the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Compile-time assertion that Loader satisfies stt.Loader.
var _ stt.Loader = (*Loader)(nil)

// Loader loads a whisper.cpp model file into the process.
type Loader struct {
	cfg  stt.Config
	opts options
}

// NewLoader returns a Loader for the model named by cfg.Model (resolved
// against cfg.ModelDir when relative).
func NewLoader(cfg stt.Config, opts ...Option) *Loader {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Loader{cfg: cfg, opts: o}
}

// Load reads the model. The model is shared by every stream of the engine and
// released by Engine.Close.
func (l *Loader) Load(ctx context.Context) (stt.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	path := l.cfg.Model
	if path == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	if !filepath.IsAbs(path) && l.cfg.ModelDir != "" {
		path = filepath.Join(l.cfg.ModelDir, path)
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	lang := l.cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}
	tr := &nativeTranscriber{model: model, language: lang}
	return newEngine(tr, l.cfg, l.opts, model.Close), nil
}

// nativeTranscriber runs inference on a shared model.
type nativeTranscriber struct {
	model    whisperlib.Model
	language string
}

// transcribe runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (n *nativeTranscriber) transcribe(_ context.Context, samples []float32) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
