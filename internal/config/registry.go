package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested backend name.
var ErrNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions. Device
// backends produce a [device.Provider] from the audio/video sections;
// transport backends produce a [live.Transport] from the live section.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]func(*Config) (device.Provider, error)
	transports map[string]func(*Config) (live.Transport, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[string]func(*Config) (device.Provider, error)),
		transports: make(map[string]func(*Config) (live.Transport, error)),
	}
}

// RegisterDevices registers a device backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevices(name string, factory func(*Config) (device.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// RegisterTransport registers a transport factory under name.
func (r *Registry) RegisterTransport(name string, factory func(*Config) (live.Transport, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[name] = factory
}

// CreateDevices constructs the device backend selected by cfg.Audio.Backend,
// defaulting to "ffmpeg" when unset.
func (r *Registry) CreateDevices(cfg *Config) (device.Provider, error) {
	name := cfg.Audio.Backend
	if name == "" {
		name = "ffmpeg"
	}
	r.mu.RLock()
	factory, ok := r.devices[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device backend %q", ErrNotRegistered, name)
	}
	return factory(cfg)
}

// CreateTransport constructs the transport selected by cfg.Live.Transport,
// defaulting to "gemini" when unset.
func (r *Registry) CreateTransport(cfg *Config) (live.Transport, error) {
	name := cfg.Live.Transport
	if name == "" {
		name = "gemini"
	}
	r.mu.RLock()
	factory, ok := r.transports[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transport %q", ErrNotRegistered, name)
	}
	return factory(cfg)
}
