// Package ndidev exposes NDI network sources as capture devices. Each
// source is listed once as a video device and once as an audio device,
// since NDI senders carry both.
package ndidev

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/ndi"
	"github.com/video-system/go-media-access/pkg/provider"
)

const idPrefix = "ndi:"

func init() {
	provider.RegisterBackend("ndi", func(cfg provider.BackendConfig) (provider.Backend, error) {
		finder, err := ndi.NewFinder(ndi.FinderConfig{
			ShowLocalSources: true,
			Groups:           cfg.NDIGroups,
			ExtraIPs:         cfg.NDIExtraIPs,
		})
		if err != nil {
			return nil, err
		}
		return New(finder), nil
	})
}

// DefaultAudioParameters describe NDI audio as delivered to consumers
var DefaultAudioParameters = media.AudioParameters{
	SampleRate:      48000,
	ChannelLayout:   media.ChannelLayoutStereo,
	FramesPerBuffer: 1600,
}

// Finder is the discovery side of the NDI SDK
type Finder interface {
	Sources(ctx context.Context) ([]ndi.Source, error)
	Close()
}

// Backend lists sources through a Finder
type Backend struct {
	finder Finder
	log    logging.LeveledLogger

	mu      sync.Mutex
	sources map[string]ndi.Source
	open    map[string]int
}

func New(finder Finder) *Backend {
	return &Backend{
		finder:  finder,
		log:     ilogging.NewLogger("ndi"),
		sources: make(map[string]ndi.Source),
		open:    make(map[string]int),
	}
}

func (b *Backend) Name() string {
	return "ndi"
}

func (b *Backend) Enumerate(ctx context.Context, t media.MediaType) ([]media.Device, error) {
	if t != media.DeviceAudioCapture && t != media.DeviceVideoCapture {
		return nil, nil
	}

	sources, err := b.finder.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover ndi sources: %w", err)
	}

	seen := make(map[string]ndi.Source, len(sources))
	devices := make([]media.Device, 0, len(sources))
	for _, src := range sources {
		id := idPrefix + src.Name
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = src
		devices = append(devices, media.Device{Type: t, ID: id, Name: src.Name})
	}

	b.mu.Lock()
	b.sources = seen
	b.mu.Unlock()

	b.log.Debugf("found %d NDI sources", len(devices))
	return devices, nil
}

func (b *Backend) Open(ctx context.Context, d media.Device) (media.AudioParameters, error) {
	if !b.known(d.ID) {
		// Sources announce themselves late; look again before giving up
		if _, err := b.Enumerate(ctx, d.Type); err != nil {
			return media.AudioParameters{}, err
		}
	}
	if !b.known(d.ID) {
		return media.AudioParameters{}, fmt.Errorf("%w: %s", provider.ErrDeviceNotFound, d.ID)
	}

	b.mu.Lock()
	b.open[d.ID]++
	b.mu.Unlock()

	if d.Type.IsAudio() {
		return DefaultAudioParameters, nil
	}
	return media.AudioParameters{}, nil
}

func (b *Backend) Close(ctx context.Context, d media.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open[d.ID] == 0 {
		return fmt.Errorf("%w: %s is not open", provider.ErrDeviceNotFound, d.ID)
	}
	b.open[d.ID]--
	if b.open[d.ID] == 0 {
		delete(b.open, d.ID)
	}
	return nil
}

// Shutdown releases the finder. Open sessions are not tracked past this.
func (b *Backend) Shutdown() {
	b.finder.Close()
}

func (b *Backend) known(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sources[id]
	return ok
}
