package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/config"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  auto_start: true

audio:
  backend: malgo
  device: USB Mic
  sample_rate: 16000
  channels: 1
  frame_ms: 100

engine:
  name: sherpa
  model_type: transducer
  model_dir: /models/zipformer-en
  encoder: encoder.onnx
  decoder: decoder.onnx
  joiner: joiner.onnx
  tokens: tokens.txt
  num_threads: 2
  enable_endpoint: true
  rule2_min_trailing_silence: 0.8

commands:
  fuzzy_threshold: 0.9
  bindings:
    - action: SWIPE_UP
      phrases: ["swipe up", "next"]

actions:
  dispatcher: bridge
  bridge_url: ws://127.0.0.1:7070/actions
  bridge_timeout: 500ms

permission: granted
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug || !cfg.Server.AutoStart {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio.Backend != "malgo" || cfg.Audio.Device != "USB Mic" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Engine.Name != "sherpa" || cfg.Engine.ModelType != stt.ModelTransducer {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if len(cfg.Commands.Bindings) != 1 || cfg.Commands.Bindings[0].Action != "SWIPE_UP" {
		t.Errorf("commands = %+v", cfg.Commands)
	}
	if cfg.Actions.Dispatcher != config.DispatcherBridge || cfg.Actions.BridgeTimeout != 500*time.Millisecond {
		t.Errorf("actions = %+v", cfg.Actions)
	}
	if cfg.Permission != config.PermissionGranted {
		t.Errorf("permission = %q", cfg.Permission)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, `
engine:
  name: whisper
  server_url: http://localhost:8081
`)
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.Backend != "portaudio" {
		t.Errorf("audio.backend = %q, want portaudio", cfg.Audio.Backend)
	}
	if cfg.Actions.Dispatcher != config.DispatcherChannel {
		t.Errorf("actions.dispatcher = %q, want channel", cfg.Actions.Dispatcher)
	}
	if cfg.Actions.BridgeTimeout != 2*time.Second {
		t.Errorf("actions.bridge_timeout = %v, want 2s", cfg.Actions.BridgeTimeout)
	}
	if cfg.Permission != config.PermissionDevice {
		t.Errorf("permission = %q, want device", cfg.Permission)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
engine:
  name: whisper
  server_url: http://localhost:8081
  temperature: 0.2
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_EmptyRequiresEngine(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "engine.name is required") {
		t.Fatalf("err = %v, want engine.name is required", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/voxctl.yaml")
	if err == nil {
		t.Fatal("expected error")
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	const whisper = "engine:\n  name: whisper\n  server_url: http://x\n"
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"invalid log level", whisper + "server:\n  log_level: loud\n", "server.log_level"},
		{"wrong sample rate", whisper + "audio:\n  sample_rate: 44100\n", "audio.sample_rate"},
		{"stereo", whisper + "audio:\n  channels: 2\n", "audio.channels"},
		{"wrong frame size", whisper + "audio:\n  frame_ms: 20\n", "audio.frame_ms"},
		{"wav without file", whisper + "audio:\n  backend: wav\n", "audio.file"},
		{"sherpa without model type", "engine:\n  name: sherpa\n  tokens: t.txt\n", "engine.model_type is required"},
		{"sherpa bad model type", "engine:\n  name: sherpa\n  model_type: rnn\n  tokens: t.txt\n", "engine.model_type \"rnn\""},
		{"sherpa without tokens", "engine:\n  name: sherpa\n  model_type: paraformer\n", "engine.tokens"},
		{"native whisper without model", "engine:\n  name: whisper-native\n", "engine.model"},
		{"whisper without url", "engine:\n  name: whisper\n", "engine.server_url"},
		{"negative threads", whisper + "  num_threads: -1\n", "engine.num_threads"},
		{"unknown action", whisper + "commands:\n  bindings:\n    - action: FLY\n      phrases: [fly]\n", "commands.bindings[0].action"},
		{"no phrases", whisper + "commands:\n  bindings:\n    - action: SWIPE_UP\n", "commands.bindings[0].phrases"},
		{"threshold range", whisper + "commands:\n  fuzzy_threshold: 1.5\n", "commands.fuzzy_threshold"},
		{"bridge without url", whisper + "actions:\n  dispatcher: bridge\n", "actions.bridge_url"},
		{"unknown dispatcher", whisper + "actions:\n  dispatcher: carrier-pigeon\n", "actions.dispatcher"},
		{"unknown permission", whisper + "permission: maybe\n", "permission"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_UnknownActionWrapsSentinel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Engine:   config.EngineConfig{Name: "whisper", ServerURL: "http://x"},
		Commands: config.CommandsConfig{Bindings: []config.CommandBinding{{Action: "FLY", Phrases: []string{"fly"}}}},
	}
	if err := config.Validate(cfg); !errors.Is(err, action.ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Audio:  config.AudioConfig{SampleRate: 8000},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "audio.sample_rate", "engine.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %q: %v", want, err)
		}
	}
}

// ── Conversions ──────────────────────────────────────────────────────────────

func TestEngineConfig_STTConfig(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, sampleYAML)
	got := cfg.Engine.STTConfig()

	if got.ModelType != stt.ModelTransducer || got.ModelDir != "/models/zipformer-en" || got.Encoder != "encoder.onnx" {
		t.Errorf("paths = %+v", got)
	}
	if got.NumThreads != 2 || !got.EnableEndpoint {
		t.Errorf("NumThreads=%d EnableEndpoint=%v", got.NumThreads, got.EnableEndpoint)
	}
	if got.Rule2MinTrailingSilence != 0.8 {
		t.Errorf("rule2 = %v, want 0.8", got.Rule2MinTrailingSilence)
	}
	if got.Rule1MinTrailingSilence != stt.DefaultRule1MinTrailingSilence {
		t.Errorf("rule1 = %v, want default", got.Rule1MinTrailingSilence)
	}
	if got.SampleRate != stt.DefaultSampleRate || got.Provider != stt.DefaultProvider {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestEngineConfig_EndpointDefaultsOn(t *testing.T) {
	t.Parallel()

	off := false
	if !(config.EngineConfig{}).STTConfig().EnableEndpoint {
		t.Error("omitted enable_endpoint should default to true")
	}
	if (config.EngineConfig{EnableEndpoint: &off}).STTConfig().EnableEndpoint {
		t.Error("explicit false ignored")
	}
}

func TestEngineConfig_Options(t *testing.T) {
	t.Parallel()

	c := config.EngineConfig{Options: map[string]any{"silence_threshold_ms": 700, "rms_threshold": 250.5, "bad": "x"}}
	if got := c.IntOption("silence_threshold_ms", 500); got != 700 {
		t.Errorf("IntOption = %d, want 700", got)
	}
	if got := c.FloatOption("rms_threshold", 300); got != 250.5 {
		t.Errorf("FloatOption = %v, want 250.5", got)
	}
	if got := c.IntOption("bad", 5); got != 5 {
		t.Errorf("IntOption(bad) = %d, want default", got)
	}
	if got := c.FloatOption("missing", 1.5); got != 1.5 {
		t.Errorf("FloatOption(missing) = %v, want default", got)
	}
}

func TestAudioConfig_AudioParams(t *testing.T) {
	t.Parallel()

	got := config.AudioConfig{Device: "mic", File: "a.wav", Realtime: true}.AudioParams()
	if got.SampleRate != audio.SampleRate || got.Channels != audio.Channels || got.FrameDuration != audio.FrameDuration {
		t.Errorf("contract = %+v", got)
	}
	if got.Device != "mic" || got.File != "a.wav" || !got.Realtime {
		t.Errorf("passthrough = %+v", got)
	}
}

func TestCommandsConfig_Commands(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, sampleYAML)
	cmds := cfg.Commands.Commands()
	if len(cmds) != 1 || cmds[0].Action != action.SwipeUp || len(cmds[0].Phrases) != 2 {
		t.Fatalf("commands = %+v", cmds)
	}
	if got := len(cfg.Commands.MatcherOptions()); got != 1 {
		t.Errorf("matcher options = %d, want 1", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateEngine(config.EngineConfig{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEngine err = %v", err)
	}
	if _, err := reg.CreateAudio(config.AudioConfig{Backend: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateAudio err = %v", err)
	}
	if _, err := reg.CreateDispatcher(config.ActionsConfig{Dispatcher: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateDispatcher err = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotEngine config.EngineConfig
	reg.RegisterEngine("stub", func(c config.EngineConfig) (stt.Loader, error) {
		gotEngine = c
		return stt.LoaderFunc(func(context.Context) (stt.Engine, error) { return nil, nil }), nil
	})
	reg.RegisterAudio("stub", func(config.AudioConfig) (audio.Opener, error) {
		return audio.OpenerFunc(func(context.Context, audio.Config) (audio.Source, error) { return nil, nil }), nil
	})
	reg.RegisterDispatcher("stub", func(config.ActionsConfig) (action.Dispatcher, error) {
		return action.Discard, nil
	})

	if l, err := reg.CreateEngine(config.EngineConfig{Name: "stub", Model: "m.bin"}); err != nil || l == nil {
		t.Fatalf("CreateEngine = %v, %v", l, err)
	}
	if gotEngine.Model != "m.bin" {
		t.Errorf("factory got %+v", gotEngine)
	}
	if o, err := reg.CreateAudio(config.AudioConfig{Backend: "stub"}); err != nil || o == nil {
		t.Fatalf("CreateAudio = %v, %v", o, err)
	}
	if d, err := reg.CreateDispatcher(config.ActionsConfig{Dispatcher: "stub"}); err != nil || d == nil {
		t.Fatalf("CreateDispatcher = %v, %v", d, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterEngine("bad", func(config.EngineConfig) (stt.Loader, error) { return nil, boom })
	if _, err := reg.CreateEngine(config.EngineConfig{Name: "bad"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestRegistry_EnginesListedInErrors(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	for _, name := range []string{"whisper", "sherpa"} {
		reg.RegisterEngine(name, func(config.EngineConfig) (stt.Loader, error) { return nil, nil })
	}
	if got := strings.Join(reg.Engines(), ","); got != "sherpa,whisper" {
		t.Errorf("Engines() = %q, want sorted sherpa,whisper", got)
	}
	_, err := reg.CreateEngine(config.EngineConfig{Name: "vosk"})
	if err == nil || !strings.Contains(err.Error(), "[sherpa whisper]") {
		t.Errorf("err = %v, want the registered names listed", err)
	}
}
