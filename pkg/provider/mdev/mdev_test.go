package mdev

import (
	"context"
	"errors"
	"testing"

	_ "github.com/pion/mediadevices/pkg/driver/videotest"

	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/provider"
)

func TestEnumerateVideo(t *testing.T) {
	b := New()

	devices, err := b.Enumerate(context.Background(), media.DeviceVideoCapture)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(devices) == 0 {
		t.Fatal("Expected the test video driver to be listed")
	}
	for _, d := range devices {
		if d.Type != media.DeviceVideoCapture || d.ID == "" {
			t.Errorf("Unexpected device %+v", d)
		}
	}
}

func TestEnumerateUnsupportedType(t *testing.T) {
	devices, err := New().Enumerate(context.Background(), media.TabVideoCapture)
	if err != nil || devices != nil {
		t.Errorf("Expected nothing for tab capture, got %v, %v", devices, err)
	}
}

func TestOpenSharesDriver(t *testing.T) {
	b := New()
	ctx := context.Background()

	devices, err := b.Enumerate(ctx, media.DeviceVideoCapture)
	if err != nil || len(devices) == 0 {
		t.Skip("No video driver registered")
	}
	d := devices[0]

	if _, err := b.Open(ctx, d); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := b.Open(ctx, d); err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	if got := b.open[d.ID].refs; got != 2 {
		t.Errorf("refs = %d, want 2", got)
	}

	if err := b.Close(ctx, d); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(ctx, d); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if _, ok := b.open[d.ID]; ok {
		t.Error("Driver should be released after the last close")
	}

	if err := b.Close(ctx, d); !errors.Is(err, provider.ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestOpenUnknownDevice(t *testing.T) {
	_, err := New().Open(context.Background(), media.Device{Type: media.DeviceAudioCapture, ID: "missing"})
	if !errors.Is(err, provider.ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}
