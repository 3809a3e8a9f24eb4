// Package ffmpegdev is a device backend that discovers capture devices by
// asking the ffmpeg binary. Opening a device only reserves it; frames are
// pulled by whoever consumes the session.
package ffmpegdev

import (
	"context"
	"fmt"
	"sync"

	"github.com/video-system/go-media-access/internal/ffmpeg"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/provider"
)

func init() {
	provider.RegisterBackend("ffmpeg", func(cfg provider.BackendConfig) (provider.Backend, error) {
		ff, err := ffmpeg.New(cfg.FFmpegPath)
		if err != nil {
			return nil, err
		}
		return New(ff, cfg.InputFormat), nil
	})
}

// DefaultAudioParameters are reported for opened audio devices; ffmpeg
// listings carry no format details.
var DefaultAudioParameters = media.AudioParameters{
	SampleRate:      48000,
	ChannelLayout:   media.ChannelLayoutStereo,
	FramesPerBuffer: 1024,
}

// Lister lists devices for an input format
type Lister interface {
	ListDevices(ctx context.Context, format string) ([]ffmpeg.Device, error)
}

// Backend enumerates through a Lister
type Backend struct {
	lister      Lister
	videoFormat string
	audioFormat string

	mu    sync.Mutex
	known map[media.MediaType]map[string]media.Device
	open  map[string]int
}

// New creates a backend. An empty format selects the platform default.
func New(lister Lister, format string) *Backend {
	video, audio := ffmpeg.CaptureFormats(format)
	return &Backend{
		lister:      lister,
		videoFormat: video,
		audioFormat: audio,
		known:       make(map[media.MediaType]map[string]media.Device),
		open:        make(map[string]int),
	}
}

func (b *Backend) Name() string {
	return "ffmpeg"
}

func (b *Backend) Enumerate(ctx context.Context, t media.MediaType) ([]media.Device, error) {
	var (
		format string
		kind   ffmpeg.DeviceKind
	)
	switch t {
	case media.DeviceAudioCapture:
		format, kind = b.audioFormat, ffmpeg.KindAudio
	case media.DeviceVideoCapture:
		format, kind = b.videoFormat, ffmpeg.KindVideo
	default:
		return nil, nil
	}

	listed, err := b.lister.ListDevices(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", t, err)
	}

	var devices []media.Device
	known := make(map[string]media.Device)
	for _, d := range listed {
		if d.Kind != kind {
			continue
		}
		dev := media.Device{Type: t, ID: format + ":" + d.ID, Name: d.Name}
		devices = append(devices, dev)
		known[dev.ID] = dev
	}

	b.mu.Lock()
	b.known[t] = known
	b.mu.Unlock()

	return devices, nil
}

func (b *Backend) Open(ctx context.Context, d media.Device) (media.AudioParameters, error) {
	b.mu.Lock()
	_, ok := b.known[d.Type][d.ID]
	b.mu.Unlock()

	if !ok {
		// Not seen yet, or seen before a replug; refresh once
		if _, err := b.Enumerate(ctx, d.Type); err != nil {
			return media.AudioParameters{}, err
		}
		b.mu.Lock()
		_, ok = b.known[d.Type][d.ID]
		b.mu.Unlock()
	}
	if !ok {
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
