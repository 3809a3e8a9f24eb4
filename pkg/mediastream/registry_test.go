package mediastream

import (
	"errors"
	"testing"

	"github.com/video-system/go-media-access/pkg/media"
)

func TestRegistryAddFindRemove(t *testing.T) {
	reg := NewRegistry()

	a := &DeviceRequest{Request: media.Request{Type: media.GenerateStream}}
	b := &DeviceRequest{Request: media.Request{Type: media.EnumerateDevices}}

	la := reg.Add(a)
	lb := reg.Add(b)
	if la == lb {
		t.Fatalf("Labels must be unique, got %q twice", la)
	}
	if len(la) != 36 {
		t.Errorf("Label %q is not a uuid", la)
	}

	if reg.Find(la) != a || reg.Find(lb) != b {
		t.Error("Find returned the wrong request")
	}
	if reg.Find("missing") != nil {
		t.Error("Find of an unknown label should be nil")
	}

	if got := reg.Labels(); len(got) != 2 || got[0] != la || got[1] != lb {
		t.Errorf("Labels() = %v, want insertion order", got)
	}

	if err := reg.Remove(la); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if reg.Find(la) != nil {
		t.Error("Removed label still found")
	}
	if err := reg.Remove(la); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Second Remove error = %v, want ErrRequestNotFound", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistryLabelCollision(t *testing.T) {
	reg := NewRegistry()
	labels := []string{"same", "same", "other"}
	reg.newLabel = func() string {
		l := labels[0]
		labels = labels[1:]
		return l
	}

	first := reg.Add(&DeviceRequest{})
	second := reg.Add(&DeviceRequest{})
	if first != "same" || second != "other" {
		t.Errorf("Labels = %q, %q, want same, other", first, second)
	}
}

func TestRegistryLabelsIsACopy(t *testing.T) {
	reg := NewRegistry()
	l := reg.Add(&DeviceRequest{})

	labels := reg.Labels()
	labels[0] = "mutated"
	if reg.Find(l) == nil || reg.Labels()[0] != l {
		t.Error("Mutating Labels() result changed the registry")
	}
}

func TestDeviceRequestDone(t *testing.T) {
	tests := []struct {
		name  string
		audio media.RequestState
		video media.RequestState
		done  bool
	}{
		{"both done", media.StateDone, media.StateDone, true},
		{"partial failure", media.StateError, media.StateDone, true},
		{"both failed", media.StateError, media.StateError, true},
		{"still opening", media.StateDone, media.StateOpening, false},
		{"pending", media.StatePendingApproval, media.StateDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newDeviceRequest(nil, media.Request{
				AudioType: media.DeviceAudioCapture,
				VideoType: media.DeviceVideoCapture,
			}, nil)
			r.states[media.DeviceAudioCapture] = tt.audio
			r.states[media.DeviceVideoCapture] = tt.video
			if got := r.done(); got != tt.done {
				t.Errorf("done() = %v, want %v", got, tt.done)
			}
		})
	}

	t.Run("unrequested kind is vacuously done", func(t *testing.T) {
		r := newDeviceRequest(nil, media.Request{VideoType: media.DeviceVideoCapture}, nil)
		r.states[media.DeviceVideoCapture] = media.StateDone
		if !r.done() {
			t.Error("Video-only request should be done")
		}
		if r.State(media.NoService) != media.StateNotRequested {
			t.Error("NoService state should be NotRequested")
		}
	})
}
