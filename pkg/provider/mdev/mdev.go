// Package mdev is a device backend over the pion/mediadevices driver manager.
// Drivers register themselves with the manager on import; this package only
// lists and opens what is registered.
package mdev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/provider"
)

func init() {
	provider.RegisterBackend("mediadevices", func(provider.BackendConfig) (provider.Backend, error) {
		return New(), nil
	})
}

type handle struct {
	drv    driver.Driver
	refs   int
	params media.AudioParameters
}

// Backend opens mediadevices drivers, sharing one driver open across
// sessions of the same device.
type Backend struct {
	log logging.LeveledLogger

	mu   sync.Mutex
	open map[string]*handle
}

func New() *Backend {
	return &Backend{
		log:  ilogging.NewLogger("mdev"),
		open: make(map[string]*handle),
	}
}

func (b *Backend) Name() string {
	return "mediadevices"
}

func (b *Backend) Enumerate(ctx context.Context, t media.MediaType) ([]media.Device, error) {
	var kind mediadevices.MediaDeviceType
	switch t {
	case media.DeviceAudioCapture:
		kind = mediadevices.AudioInput
	case media.DeviceVideoCapture:
		kind = mediadevices.VideoInput
	default:
		return nil, nil
	}

	var devices []media.Device
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != kind {
			continue
		}
		devices = append(devices, media.Device{
			Type: t,
			ID:   info.DeviceID,
			Name: info.Label,
		})
	}
	return devices, nil
}

func (b *Backend) Open(ctx context.Context, d media.Device) (media.AudioParameters, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.open[d.ID]; ok {
		h.refs++
		return h.params, nil
	}

	drivers := driver.GetManager().Query(driver.FilterID(d.ID))
	if len(drivers) == 0 {
		return media.AudioParameters{}, fmt.Errorf("%w: %s", provider.ErrDeviceNotFound, d.ID)
	}
	drv := drivers[0]

	if drv.Status() == driver.StateClosed {
		if err := drv.Open(); err != nil {
			return media.AudioParameters{}, fmt.Errorf("open driver %s: %w", d.ID, err)
		}
	}

	h := &handle{drv: drv, refs: 1}
	if d.Type.IsAudio() {
		h.params = audioParameters(drv)
	}
	b.open[d.ID] = h

	b.log.Debugf("opened %s (%s)", d.ID, d.Name)
	return h.params, nil
}

func (b *Backend) Close(ctx context.Context, d media.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.open[d.ID]
	if !ok {
		return fmt.Errorf("%w: %s is not open", provider.ErrDeviceNotFound, d.ID)
	}

	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(b.open, d.ID)

	if err := h.drv.Close(); err != nil {
		return fmt.Errorf("close driver %s: %w", d.ID, err)
	}
	b.log.Debugf("closed %s", d.ID)
	return nil
}

// audioParameters picks the first advertised audio property set
func audioParameters(drv driver.Driver) media.AudioParameters {
	for _, p := range drv.Properties() {
		if p.Audio.SampleRate <= 0 {
			continue
		}

		params := media.AudioParameters{SampleRate: p.Audio.SampleRate}
		switch p.Audio.ChannelCount {
		case 1:
			params.ChannelLayout = media.ChannelLayoutMono
		case 2:
			params.ChannelLayout = media.ChannelLayoutStereo
		}
		if p.Audio.Latency > 0 {
			params.FramesPerBuffer = int(int64(p.Audio.SampleRate) * int64(p.Audio.Latency) / int64(time.Second))
		}
		return params
	}
	return media.AudioParameters{}
}
