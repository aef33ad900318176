// Package config provides the configuration schema, loader, hot-reload
// watcher and backend registry for voxctl.
package config

import (
	"time"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/command"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PermissionMode selects how microphone access is checked before Start.
type PermissionMode string

const (
	// PermissionDevice probes the capture backend for an input device.
	PermissionDevice PermissionMode = "device"

	// PermissionGranted skips the check.
	PermissionGranted PermissionMode = "granted"
)

// IsValid reports whether p is a recognised permission mode.
func (p PermissionMode) IsValid() bool {
	return p == PermissionDevice || p == PermissionGranted
}

// Dispatcher names accepted in actions.dispatcher.
const (
	DispatcherChannel = "channel"
	DispatcherBridge  = "bridge"
	DispatcherNone    = "none"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Audio      AudioConfig    `yaml:"audio"`
	Engine     EngineConfig   `yaml:"engine"`
	Commands   CommandsConfig `yaml:"commands"`
	Actions    ActionsConfig  `yaml:"actions"`
	Permission PermissionMode `yaml:"permission"`
}

// ServerConfig holds the metrics/health listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (e.g., ":9090"). Empty
	// disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// AutoStart starts voice input as soon as the process is up.
	AutoStart bool `yaml:"auto_start"`
}

// AudioConfig selects and configures the capture backend.
type AudioConfig struct {
	// Backend selects the registered opener: "portaudio", "malgo" or "wav".
	Backend string `yaml:"backend"`

	// Device selects an input device by name. Empty means the system default.
	Device string `yaml:"device"`

	// File is the recording replayed by the "wav" backend.
	File string `yaml:"file"`

	// Realtime paces the "wav" backend at capture speed.
	Realtime bool `yaml:"realtime"`

	// SampleRate, Channels and FrameMs may be set for documentation but must
	// match the fixed 16 kHz mono 100 ms contract.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	FrameMs    int `yaml:"frame_ms"`
}

// AudioParams converts c into the parameters passed to an [audio.Opener].
func (c AudioConfig) AudioParams() audio.Config {
	cfg := audio.DefaultConfig()
	cfg.Device = c.Device
	cfg.File = c.File
	cfg.Realtime = c.Realtime
	return cfg
}

// EngineConfig selects and configures the recognition engine.
type EngineConfig struct {
	// Name selects the registered engine: "sherpa", "whisper-native" or
	// "whisper".
	Name string `yaml:"name"`

	// ModelType is the sherpa model architecture: transducer, paraformer or
	// zipformer2_ctc.
	ModelType string `yaml:"model_type"`

	// ModelDir is prepended to relative model file paths.
	ModelDir string `yaml:"model_dir"`

	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`
	Joiner  string `yaml:"joiner"`
	Tokens  string `yaml:"tokens"`

	// Model is the single-file model (zipformer2_ctc or whisper ggml).
	Model string `yaml:"model"`

	NumThreads     int    `yaml:"num_threads"`
	Provider       string `yaml:"provider"`
	DecodingMethod string `yaml:"decoding_method"`

	// EnableEndpoint defaults to true when omitted.
	EnableEndpoint *bool   `yaml:"enable_endpoint"`
	Rule1          float64 `yaml:"rule1_min_trailing_silence"`
	Rule2          float64 `yaml:"rule2_min_trailing_silence"`
	Rule3          float64 `yaml:"rule3_min_utterance_length"`

	// Language is passed to whisper engines.
	Language string `yaml:"language"`

	// ServerURL is the whisper.cpp server base URL for the "whisper" engine.
	ServerURL string `yaml:"server_url"`

	// Options holds engine-specific values not covered above, such as
	// whisper's "silence_threshold_ms".
	Options map[string]any `yaml:"options"`
}

// STTConfig converts c into the engine-neutral recognition config.
func (c EngineConfig) STTConfig() stt.Config {
	enable := true
	if c.EnableEndpoint != nil {
		enable = *c.EnableEndpoint
	}
	return stt.Config{
		ModelType:      c.ModelType,
		ModelDir:       c.ModelDir,
		Encoder:        c.Encoder,
		Decoder:        c.Decoder,
		Joiner:         c.Joiner,
		Tokens:         c.Tokens,
		Model:          c.Model,
		NumThreads:     c.NumThreads,
		Provider:       c.Provider,
		DecodingMethod: c.DecodingMethod,
		EnableEndpoint: enable,
		Language:       c.Language,

		Rule1MinTrailingSilence: c.Rule1,
		Rule2MinTrailingSilence: c.Rule2,
		Rule3MinUtteranceLength: c.Rule3,
	}.WithDefaults()
}

// IntOption returns Options[key] as an int, or def when absent or not a
// number.
func (c EngineConfig) IntOption(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// FloatOption returns Options[key] as a float64, or def when absent or not a
// number.
func (c EngineConfig) FloatOption(key string, def float64) float64 {
	switch v := c.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// CommandsConfig binds spoken phrases to actions. Hot-reloadable.
type CommandsConfig struct {
	// PhoneticThreshold and FuzzyThreshold tune fuzzy matching; zero keeps
	// the matcher defaults.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`

	Bindings []CommandBinding `yaml:"bindings"`
}

// CommandBinding maps phrases to one action token.
type CommandBinding struct {
	Action  string   `yaml:"action"`
	Phrases []string `yaml:"phrases"`
}

// Commands converts the bindings into matcher commands. Call after
// [Validate].
func (c CommandsConfig) Commands() []command.Command {
	out := make([]command.Command, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		a, err := action.Parse(b.Action)
		if err != nil {
			continue
		}
		out = append(out, command.Command{Action: a, Phrases: b.Phrases})
	}
	return out
}

// MatcherOptions returns the threshold options configured in c.
func (c CommandsConfig) MatcherOptions() []command.Option {
	var opts []command.Option
	if c.PhoneticThreshold > 0 {
		opts = append(opts, command.WithPhoneticThreshold(c.PhoneticThreshold))
	}
	if c.FuzzyThreshold > 0 {
		opts = append(opts, command.WithFuzzyThreshold(c.FuzzyThreshold))
	}
	return opts
}

// ActionsConfig selects how matched actions are delivered.
type ActionsConfig struct {
	// Dispatcher is "channel" (in-process receiver), "bridge" (WebSocket to
	// a gesture agent) or "none". Defaults to "channel".
	Dispatcher string `yaml:"dispatcher"`

	// BridgeURL is the gesture agent's WebSocket URL. Required for "bridge".
	BridgeURL string `yaml:"bridge_url"`

	// BridgeTimeout bounds one delivery. Defaults to 2s.
	BridgeTimeout time.Duration `yaml:"bridge_timeout"`
}
