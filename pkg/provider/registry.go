package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/video-system/go-media-access/pkg/media"
)

// BackendConfig carries the settings a backend factory may use
type BackendConfig struct {
	// Devices seeds in-memory backends
	Devices []media.Device

	// FFmpegPath overrides ffmpeg discovery
	FFmpegPath string
	// InputFormat overrides the platform capture format (avfoundation, v4l2, dshow)
	InputFormat string

	// NDIGroups and NDIExtraIPs narrow NDI discovery (comma-separated)
	NDIGroups   string
	NDIExtraIPs string
}

// Factory builds a backend from config
type Factory func(cfg BackendConfig) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterBackend makes a backend available by name
func RegisterBackend(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewBackend builds the backend registered under name
func NewBackend(name string, cfg BackendConfig) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}

	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", name, err)
	}
	return b, nil
}

// Backends lists registered backend names
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
