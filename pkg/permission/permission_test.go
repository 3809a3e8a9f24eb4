package permission

import (
	"testing"
	"time"

	"github.com/video-system/go-media-access/pkg/media"
)

var (
	mic1 = media.Device{Type: media.DeviceAudioCapture, ID: "mic-1", Name: "Mic 1"}
	mic2 = media.Device{Type: media.DeviceAudioCapture, ID: "mic-2", Name: "Mic 2"}
	cam1 = media.Device{Type: media.DeviceVideoCapture, ID: "cam-1", Name: "Cam 1"}
)

func waitDevices(t *testing.T, ch <-chan []media.Device) []media.Device {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for permission callback")
		return nil
	}
}

func TestSelectDevices(t *testing.T) {
	available := []media.Device{mic1, mic2, cam1}

	tests := []struct {
		name string
		req  media.Request
		want []string
	}{
		{
			name: "first of each type",
			req:  media.Request{AudioType: media.DeviceAudioCapture, VideoType: media.DeviceVideoCapture},
			want: []string{"mic-1", "cam-1"},
		},
		{
			name: "requested id",
			req:  media.Request{AudioType: media.DeviceAudioCapture, RequestedAudioDeviceID: "mic-2"},
			want: []string{"mic-2"},
		},
		{
			name: "requested id missing",
			req:  media.Request{AudioType: media.DeviceAudioCapture, RequestedAudioDeviceID: "mic-9"},
			want: nil,
		},
		{
			name: "video only",
			req:  media.Request{VideoType: media.DeviceVideoCapture},
			want: []string{"cam-1"},
		},
		{
			name: "desktop with loopback",
			req:  media.Request{AudioType: media.LoopbackAudioCapture, VideoType: media.DesktopVideoCapture},
			want: []string{DefaultLoopbackID, DefaultScreenID},
		},
		{
			name: "tab capture",
			req: media.Request{
				AudioType:          media.TabAudioCapture,
				VideoType:          media.TabVideoCapture,
				TabCaptureDeviceID: "web-contents-media-stream://1:2",
			},
			want: []string{"web-contents-media-stream://1:2", "web-contents-media-stream://1:2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectDevices(available, tt.req)
			if len(got) != len(tt.want) {
				t.Fatalf("Got %+v, want ids %v", got, tt.want)
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("Device %d = %q, want %q", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestFakeApprovesAndStops(t *testing.T) {
	f := NewFake()
	f.SetAvailableDevices([]media.Device{mic1, cam1})

	ch := make(chan []media.Device, 1)
	f.RequestAccess(media.Request{AudioType: media.DeviceAudioCapture}, func(d []media.Device) { ch <- d })

	got := waitDevices(t, ch)
	if len(got) != 1 || got[0].ID != "mic-1" {
		t.Errorf("Unexpected devices %+v", got)
	}

	stopped := 0
	f.OnStarted(func() { stopped++ })
	if n := f.Stop(); n != 1 || stopped != 1 {
		t.Errorf("Stop ran %d (%d) callbacks, want 1", n, stopped)
	}
	if n := f.Stop(); n != 0 {
		t.Error("Stop callbacks must run once")
	}
}

func TestFakeDeny(t *testing.T) {
	f := NewFake()
	f.SetAvailableDevices([]media.Device{mic1})
	f.SetDeny(true)

	ch := make(chan []media.Device, 1)
	f.RequestAccess(media.Request{AudioType: media.DeviceAudioCapture}, func(d []media.Device) { ch <- d })

	if got := waitDevices(t, ch); len(got) != 0 {
		t.Errorf("Denied request returned %+v", got)
	}
}

func TestAuthorityDecisions(t *testing.T) {
	a := NewAuthority(nil, Deny)
	a.Grant("https://allowed.example")

	request := func(origin string) []media.Device {
		s := a.NewSurface()
		s.(DeviceSetter).SetAvailableDevices([]media.Device{mic1})
		ch := make(chan []media.Device, 1)
		s.RequestAccess(media.Request{SecurityOrigin: origin, AudioType: media.DeviceAudioCapture},
			func(d []media.Device) { ch <- d })
		return waitDevices(t, ch)
	}

	if got := request("https://allowed.example"); len(got) != 1 {
		t.Errorf("Allowed origin got %+v", got)
	}
	if got := request("https://other.example"); len(got) != 0 {
		t.Errorf("Unknown origin should fall back to deny, got %+v", got)
	}
}

func TestAuthorityRevoke(t *testing.T) {
	a := NewAuthority(NewMemoryStore(), Allow)
	origin := "https://meet.example"

	s := a.NewSurface()
	ch := make(chan []media.Device, 1)
	s.RequestAccess(media.Request{SecurityOrigin: origin, VideoType: media.DesktopVideoCapture},
		func(d []media.Device) { ch <- d })
	waitDevices(t, ch)

	stopped := 0
	s.OnStarted(func() { stopped++ })

	released := a.NewSurface()
	released.RequestAccess(media.Request{SecurityOrigin: origin}, func([]media.Device) {})
	released.OnStarted(func() { t.Error("Released surface must not be stopped") })
	released.(Releaser).Release()

	if got := a.Running()[origin]; got != 1 {
		t.Errorf("Running = %d, want 1", got)
	}

	if n := a.Revoke(origin); n != 1 || stopped != 1 {
		t.Errorf("Revoke stopped %d (%d), want 1", n, stopped)
	}
	if d := a.Decide(origin); d != Deny {
		t.Errorf("Decision after revoke = %q", d)
	}
	if len(a.Running()) != 0 {
		t.Error("Revoke should clear running streams")
	}
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{"allow": Allow, "Grant": Allow, "deny": Deny, " block ": Deny} {
		got, err := ParseDecision(in)
		if err != nil || got != want {
			t.Errorf("ParseDecision(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Error("Expected error for unknown decision")
	}
}
