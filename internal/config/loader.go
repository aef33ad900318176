package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// ValidBackendNames lists the built-in backend names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = map[string][]string{
	"audio":  {"portaudio", "malgo", "wav"},
	"engine": {"sherpa", "whisper-native", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "portaudio"
	}
	if cfg.Actions.Dispatcher == "" {
		cfg.Actions.Dispatcher = DispatcherChannel
	}
	if cfg.Actions.BridgeTimeout <= 0 {
		cfg.Actions.BridgeTimeout = 2 * time.Second
	}
	if cfg.Permission == "" {
		cfg.Permission = PermissionDevice
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio: the capture contract is fixed.
	validateBackendName("audio", cfg.Audio.Backend)
	if r := cfg.Audio.SampleRate; r != 0 && r != audio.SampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; only %d Hz is accepted", r, audio.SampleRate))
	}
	if c := cfg.Audio.Channels; c != 0 && c != audio.Channels {
		errs = append(errs, fmt.Errorf("audio.channels %d is unsupported; capture is mono", c))
	}
	if ms := cfg.Audio.FrameMs; ms != 0 && ms != int(audio.FrameDuration/time.Millisecond) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is unsupported; frames are %d ms", ms, audio.FrameDuration/time.Millisecond))
	}
	if cfg.Audio.Backend == "wav" && cfg.Audio.File == "" {
		errs = append(errs, errors.New("audio.file is required when audio.backend is wav"))
	}

	// Engine
	validateBackendName("engine", cfg.Engine.Name)
	switch cfg.Engine.Name {
	case "":
		errs = append(errs, errors.New("engine.name is required"))
	case "sherpa":
		switch cfg.Engine.ModelType {
		case stt.ModelTransducer, stt.ModelParaformer, stt.ModelZipformer2CTC:
		case "":
			errs = append(errs, errors.New("engine.model_type is required for the sherpa engine"))
		default:
			errs = append(errs, fmt.Errorf("engine.model_type %q is invalid; valid values: transducer, paraformer, zipformer2_ctc", cfg.Engine.ModelType))
		}
		if cfg.Engine.Tokens == "" {
			errs = append(errs, errors.New("engine.tokens is required for the sherpa engine"))
		}
	case "whisper-native":
		if cfg.Engine.Model == "" {
			errs = append(errs, errors.New("engine.model is required for the whisper-native engine"))
		}
	case "whisper":
		if cfg.Engine.ServerURL == "" {
			errs = append(errs, errors.New("engine.server_url is required for the whisper engine"))
		}
	}
	if cfg.Engine.NumThreads < 0 {
		errs = append(errs, fmt.Errorf("engine.num_threads %d must not be negative", cfg.Engine.NumThreads))
	}

	// Commands
	errs = append(errs, validateThreshold("commands.phonetic_threshold", cfg.Commands.PhoneticThreshold)...)
	errs = append(errs, validateThreshold("commands.fuzzy_threshold", cfg.Commands.FuzzyThreshold)...)
	for i, b := range cfg.Commands.Bindings {
		prefix := fmt.Sprintf("commands.bindings[%d]", i)
		if _, err := action.Parse(b.Action); err != nil {
			errs = append(errs, fmt.Errorf("%s.action: %w", prefix, err))
		}
		if len(b.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("%s.phrases must not be empty", prefix))
		}
	}

	// Actions
	switch cfg.Actions.Dispatcher {
	case DispatcherChannel, DispatcherNone, "":
	case DispatcherBridge:
		if cfg.Actions.BridgeURL == "" {
			errs = append(errs, errors.New("actions.bridge_url is required when actions.dispatcher is bridge"))
		}
	default:
		errs = append(errs, fmt.Errorf("actions.dispatcher %q is invalid; valid values: channel, bridge, none", cfg.Actions.Dispatcher))
	}

	// Permission
	if cfg.Permission != "" && !cfg.Permission.IsValid() {
		errs = append(errs, fmt.Errorf("permission %q is invalid; valid values: device, granted", cfg.Permission))
	}

	return errors.Join(errs...)
}

func validateThreshold(field string, v float64) []error {
	if v < 0 || v > 1 {
		return []error{fmt.Errorf("%s %.2f is out of range [0, 1]", field, v)}
	}
	return nil
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name; may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
