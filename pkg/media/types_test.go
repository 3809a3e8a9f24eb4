package media

import (
	"errors"
	"testing"
)

func TestMediaTypeClassification(t *testing.T) {
	tests := []struct {
		typ   MediaType
		audio bool
		video bool
	}{
		{NoService, false, false},
		{DeviceAudioCapture, true, false},
		{DeviceVideoCapture, false, true},
		{TabAudioCapture, true, false},
		{TabVideoCapture, false, true},
		{DesktopVideoCapture, false, true},
		{LoopbackAudioCapture, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.IsAudio(); got != tt.audio {
				t.Errorf("IsAudio() = %v, want %v", got, tt.audio)
			}
			if got := tt.typ.IsVideo(); got != tt.video {
				t.Errorf("IsVideo() = %v, want %v", got, tt.video)
			}
		})
	}
}

func TestParseMediaType(t *testing.T) {
	for typ := NoService; typ < NumMediaTypes; typ++ {
		got, err := ParseMediaType(typ.String())
		if err != nil {
			t.Errorf("ParseMediaType(%q) failed: %v", typ.String(), err)
			continue
		}
		if got != typ {
			t.Errorf("ParseMediaType(%q) = %v", typ.String(), got)
		}
	}

	if got, err := ParseMediaType(""); err != nil || got != NoService {
		t.Errorf("Empty name should be NoService, got %v, %v", got, err)
	}

	if _, err := ParseMediaType("hologram"); !errors.Is(err, ErrUnknownMediaType) {
		t.Errorf("Expected ErrUnknownMediaType, got %v", err)
	}
}

func TestRequestRequested(t *testing.T) {
	req := Request{AudioType: DeviceAudioCapture}

	if !req.Requested(DeviceAudioCapture) {
		t.Error("Audio should be requested")
	}
	if req.Requested(DeviceVideoCapture) {
		t.Error("Video should not be requested")
	}
	if req.Requested(NoService) {
		t.Error("NoService is never requested")
	}
}

func TestValidOrigin(t *testing.T) {
	tests := []struct {
		origin string
		valid  bool
	}{
		{"https://example.com", true},
		{"http://localhost:8080", true},
		{"file:///home/user/index.html", true},
		{"", false},
		{"example.com", false},
		{"://broken", false},
		{"https://", false},
	}

	for _, tt := range tests {
		if got := ValidOrigin(tt.origin); got != tt.valid {
			t.Errorf("ValidOrigin(%q) = %v, want %v", tt.origin, got, tt.valid)
		}
	}
}

func TestEqualDevices(t *testing.T) {
	a := []StreamDevice{
		{Device: Device{Type: DeviceAudioCapture, ID: "mic1", Name: "Mic"}},
		{Device: Device{Type: DeviceAudioCapture, ID: "mic2", Name: "Mic 2"}},
	}
	b := append([]StreamDevice(nil), a...)

	if !EqualDevices(a, b) {
		t.Error("Identical lists should be equal")
	}

	b[1].Device.Name = "Renamed"
	if EqualDevices(a, b) {
		t.Error("Lists with different names should differ")
	}

	if EqualDevices(a, a[:1]) {
		t.Error("Lists with different lengths should differ")
	}
}

func TestTabCaptureTarget(t *testing.T) {
	tests := []struct {
		id      string
		process int
		view    int
		ok      bool
	}{
		{AppendWebContentsDeviceScheme("12:34"), 12, 34, true},
		{AppendWebContentsDeviceScheme("0:0"), 0, 0, true},
		{"12:34", 0, 0, false},
		{AppendWebContentsDeviceScheme("12"), 0, 0, false},
		{AppendWebContentsDeviceScheme("a:b"), 0, 0, false},
		{AppendWebContentsDeviceScheme("-1:3"), 0, 0, false},
		{AppendWebContentsDeviceScheme(""), 0, 0, false},
	}

	for _, tt := range tests {
		p, v, ok := ExtractTabCaptureTarget(tt.id)
		if ok != tt.ok || p != tt.process || v != tt.view {
			t.Errorf("ExtractTabCaptureTarget(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.id, p, v, ok, tt.process, tt.view, tt.ok)
		}
	}

	if got := StripWebContentsDeviceScheme(AppendWebContentsDeviceScheme("5:6")); got != "5:6" {
		t.Errorf("Strip returned %q", got)
	}
}
