package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tutorvoice/pkg/audio"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
	"github.com/MrWong99/tutorvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// OutputFactory opens a playback device for the given backend settings.
type OutputFactory func(AudioConfig) (audio.Output, error)

// InputFactory opens a capture device for the given backend settings.
type InputFactory func(AudioConfig) (audio.Input, error)

// Registry maps provider and backend names to their constructors. It is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]func(ProviderEntry) (live.Provider, error)
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
	output map[string]OutputFactory
	input  map[string]InputFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:   make(map[string]func(ProviderEntry) (live.Provider, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
		output: make(map[string]OutputFactory),
		input:  make(map[string]InputFactory),
	}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterOutput registers a playback backend under name.
func (r *Registry) RegisterOutput(name string, factory OutputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[name] = factory
}

// RegisterInput registers a capture backend under name.
func (r *Registry) RegisterInput(name string, factory InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateOutput opens the playback backend named by cfg.Backend.
func (r *Registry) CreateOutput(cfg AudioConfig) (audio.Output, error) {
	r.mu.RLock()
	factory, ok := r.output[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateInput opens the capture backend named by cfg.CaptureBackend.
func (r *Registry) CreateInput(cfg AudioConfig) (audio.Input, error) {
	r.mu.RLock()
	factory, ok := r.input[cfg.CaptureBackend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: input/%q", ErrProviderNotRegistered, cfg.CaptureBackend)
	}
	return factory(cfg)
}
