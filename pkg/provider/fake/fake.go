// Package fake provides an in-memory device backend with hot-plug and
// failure injection, used by tests and the "fake" backend setting.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/provider"
)

func init() {
	provider.RegisterBackend("fake", func(cfg provider.BackendConfig) (provider.Backend, error) {
		return New(cfg.Devices...), nil
	})
}

// DefaultAudioParameters are reported for every opened audio device
var DefaultAudioParameters = media.AudioParameters{
	SampleRate:      48000,
	ChannelLayout:   media.ChannelLayoutStereo,
	FramesPerBuffer: 480,
}

// Backend is a deterministic in-memory backend
type Backend struct {
	mu         sync.Mutex
	devices    map[media.MediaType][]media.Device
	open       map[string]int
	openErrors map[string]error
	enumerates map[media.MediaType]int
	opens      int
	closes     int
	gate       chan struct{}
	openGate   chan struct{}
}

// New creates a backend seeded with devices
func New(devices ...media.Device) *Backend {
	b := &Backend{
		devices:    make(map[media.MediaType][]media.Device),
		open:       make(map[string]int),
		openErrors: make(map[string]error),
		enumerates: make(map[media.MediaType]int),
	}
	for _, d := range devices {
		b.devices[d.Type] = append(b.devices[d.Type], d)
	}
	return b
}

func (b *Backend) Name() string {
	return "fake"
}

// SetDevices replaces the device list of type t, simulating hot-plug
func (b *Backend) SetDevices(t media.MediaType, devices ...media.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := make([]media.Device, 0, len(devices))
	for _, d := range devices {
		d.Type = t
		list = append(list, d)
	}
	b.devices[t] = list
}

// FailOpen makes Open of deviceID return err. A nil err clears it.
func (b *Backend) FailOpen(deviceID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.openErrors, deviceID)
		return
	}
	b.openErrors[deviceID] = err
}

// Hold blocks Enumerate until the returned release func is called
func (b *Backend) Hold() (release func()) {
	return b.hold(&b.gate)
}

// HoldOpen blocks Open until the returned release func is called
func (b *Backend) HoldOpen() (release func()) {
	return b.hold(&b.openGate)
}

func (b *Backend) hold(slot *chan struct{}) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	*slot = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if *slot == gate {
				*slot = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) Enumerate(ctx context.Context, t media.MediaType) ([]media.Device, error) {
	b.mu.Lock()
	b.enumerates[t]++
	gate := b.gate
	b.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]media.Device(nil), b.devices[t]...), nil
}

func (b *Backend) Open(ctx context.Context, d media.Device) (media.AudioParameters, error) {
	b.mu.Lock()
	b.opens++
	gate := b.openGate
	b.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return media.AudioParameters{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.openErrors[d.ID]; ok {
		return media.AudioParameters{}, err
	}
	if !b.present(d) {
		return media.AudioParameters{}, fmt.Errorf("%w: %s", provider.ErrDeviceNotFound, d.ID)
	}

	b.open[d.ID]++
	if d.Type.IsAudio() {
		return DefaultAudioParameters, nil
	}
	return media.AudioParameters{}, nil
}

func (b *Backend) Close(ctx context.Context, d media.Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closes++
	if b.open[d.ID] == 0 {
		return fmt.Errorf("%w: %s is not open", provider.ErrDeviceNotFound, d.ID)
	}
	b.open[d.ID]--
	if b.open[d.ID] == 0 {
		delete(b.open, d.ID)
	}
	return nil
}

// EnumerateCalls returns how many times type t was enumerated
func (b *Backend) EnumerateCalls(t media.MediaType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enumerates[t]
}

// OpenCalls returns how many times Open was called
func (b *Backend) OpenCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// CloseCalls returns how many times Close was called
func (b *Backend) CloseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// OpenCount returns how many sessions hold deviceID
func (b *Backend) OpenCount(deviceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[deviceID]
}

func (b *Backend) present(d media.Device) bool {
	for _, have := range b.devices[d.Type] {
		if have.ID == d.ID {
			return true
		}
	}
	return false
}
