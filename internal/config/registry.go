package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods for a name no
// factory was registered under.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one named-constructor table of a [Registry].
type factories[C, T any] struct {
	kind string
	m    map[string]func(C) (T, error)
}

func newFactories[C, T any](kind string) factories[C, T] {
	return factories[C, T]{kind: kind, m: make(map[string]func(C) (T, error))}
}

func (f factories[C, T]) create(name string, cfg C) (T, error) {
	fn, ok := f.m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q (have %v)", ErrProviderNotRegistered, f.kind, name, f.names())
	}
	return fn(cfg)
}

func (f factories[C, T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps backend names from the config file to constructors.
// Registering a name again replaces the earlier factory. It is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	engines     factories[EngineConfig, stt.Loader]
	audio       factories[AudioConfig, audio.Opener]
	dispatchers factories[ActionsConfig, action.Dispatcher]
}

func NewRegistry() *Registry {
	return &Registry{
		engines:     newFactories[EngineConfig, stt.Loader]("engine"),
		audio:       newFactories[AudioConfig, audio.Opener]("audio backend"),
		dispatchers: newFactories[ActionsConfig, action.Dispatcher]("dispatcher"),
	}
}

func (r *Registry) RegisterEngine(name string, factory func(EngineConfig) (stt.Loader, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines.m[name] = factory
}

func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Opener, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = factory
}

func (r *Registry) RegisterDispatcher(name string, factory func(ActionsConfig) (action.Dispatcher, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers.m[name] = factory
}

// CreateEngine builds the loader registered under cfg.Name.
func (r *Registry) CreateEngine(cfg EngineConfig) (stt.Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines.create(cfg.Name, cfg)
}

// CreateAudio builds the opener registered under cfg.Backend.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Opener, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.create(cfg.Backend, cfg)
}

// CreateDispatcher builds the dispatcher registered under cfg.Dispatcher.
func (r *Registry) CreateDispatcher(cfg ActionsConfig) (action.Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatchers.create(cfg.Dispatcher, cfg)
}

// Engines lists the registered engine names in order.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines.names()
}
