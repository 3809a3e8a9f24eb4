package ndidev

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/ndi"
	"github.com/video-system/go-media-access/pkg/provider"
)

type stubFinder struct {
	mu     sync.Mutex
	rounds [][]ndi.Source
	calls  int
	err    error
	closed bool
}

// Sources returns the next round, repeating the last one
func (s *stubFinder) Sources(ctx context.Context) ([]ndi.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rounds) == 0 {
		return nil, nil
	}
	round := s.rounds[0]
	if len(s.rounds) > 1 {
		s.rounds = s.rounds[1:]
	}
	return round, nil
}

func (s *stubFinder) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

var studio = ndi.Source{Name: "STUDIO (Camera 1)", Address: "10.0.0.5:5961"}

func TestEnumerateBothKinds(t *testing.T) {
	f := &stubFinder{rounds: [][]ndi.Source{{studio, studio}}}
	b := New(f)

	for _, mt := range []media.MediaType{media.DeviceVideoCapture, media.DeviceAudioCapture} {
		devices, err := b.Enumerate(context.Background(), mt)
		if err != nil {
			t.Fatalf("Enumerate(%s) failed: %v", mt, err)
		}
		if len(devices) != 1 {
			t.Fatalf("Enumerate(%s) = %+v, want one deduplicated source", mt, devices)
		}
		if devices[0].ID != "ndi:STUDIO (Camera 1)" || devices[0].Type != mt {
			t.Errorf("Unexpected device %+v", devices[0])
		}
	}

	devices, err := b.Enumerate(context.Background(), media.TabVideoCapture)
	if err != nil || devices != nil {
		t.Errorf("Virtual type enumerate = %v, %v", devices, err)
	}
}

func TestEnumerateError(t *testing.T) {
	b := New(&stubFinder{err: ndi.ErrNotAvailable})
	if _, err := b.Enumerate(context.Background(), media.DeviceVideoCapture); !errors.Is(err, ndi.ErrNotAvailable) {
		t.Errorf("Enumerate error = %v, want ErrNotAvailable", err)
	}
}

func TestOpenRefreshesLateSources(t *testing.T) {
	f := &stubFinder{rounds: [][]ndi.Source{nil, {studio}}}
	b := New(f)

	if devices, _ := b.Enumerate(context.Background(), media.DeviceAudioCapture); len(devices) != 0 {
		t.Fatalf("First round should be empty, got %+v", devices)
	}

	d := media.Device{Type: media.DeviceAudioCapture, ID: "ndi:STUDIO (Camera 1)"}
	params, err := b.Open(context.Background(), d)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if params != DefaultAudioParameters {
		t.Errorf("Params = %+v", params)
	}
	if f.calls != 2 {
		t.Errorf("Finder calls = %d, want 2", f.calls)
	}

	if err := b.Close(context.Background(), d); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := b.Close(context.Background(), d); !errors.Is(err, provider.ErrDeviceNotFound) {
		t.Errorf("Second close = %v, want ErrDeviceNotFound", err)
	}
}

func TestOpenUnknownSource(t *testing.T) {
	b := New(&stubFinder{rounds: [][]ndi.Source{{studio}}})

	_, err := b.Open(context.Background(), media.Device{Type: media.DeviceVideoCapture, ID: "ndi:gone"})
	if !errors.Is(err, provider.ErrDeviceNotFound) {
		t.Errorf("Open error = %v, want ErrDeviceNotFound", err)
	}
}

func TestShutdownClosesFinder(t *testing.T) {
	f := &stubFinder{}
	New(f).Shutdown()
	if !f.closed {
		t.Error("Finder not closed")
	}
}

func TestRegisteredBackendNeedsSDK(t *testing.T) {
	if ndi.IsAvailable() {
		t.Skip("NDI runtime present")
	}
	if _, err := provider.NewBackend("ndi", provider.BackendConfig{}); err == nil {
		t.Error("NewBackend succeeded without an NDI runtime")
	}
}
