package mediastream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/video-system/go-media-access/pkg/media"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Devices.Backend != "fake" {
		t.Errorf("Devices.Backend = %q, want fake", cfg.Devices.Backend)
	}
	if cfg.Monitor.Interval != 2*time.Second || cfg.Monitor.MaxInterval != 10*time.Second {
		t.Errorf("Monitor intervals = %v, %v", cfg.Monitor.Interval, cfg.Monitor.MaxInterval)
	}
	if cfg.Permission.Mode != "fake" || cfg.Permission.Default != "deny" {
		t.Errorf("Permission = %+v", cfg.Permission)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FramesPerBuffer != 480 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MEDIA_PLATFORM_KEY", "secret")

	data := `
api:
  host: 127.0.0.1
  port: 9000
devices:
  backend: fake
  audio:
    - id: mic-1
      name: Desk Microphone
  video:
    - id: cam-1
      name: Webcam
monitor:
  enabled: true
  interval: 500ms
permission:
  mode: policy
  default: allow
  origins:
    https://blocked.example.com: deny
anonymization:
  salt: fixed
audio:
  sample_rate: 44100
logging:
  level: debug
  scopes:
    mediastream: trace
platform:
  enabled: true
  url: http://platform.local
  api_key: ${MEDIA_PLATFORM_KEY}
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.API.Host != "127.0.0.1" || cfg.API.Port != 9000 {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Platform.APIKey != "secret" {
		t.Errorf("APIKey = %q, environment not expanded", cfg.Platform.APIKey)
	}
	if cfg.Monitor.Interval != 500*time.Millisecond || cfg.Monitor.MaxInterval != 2500*time.Millisecond {
		t.Errorf("Monitor intervals = %v, %v", cfg.Monitor.Interval, cfg.Monitor.MaxInterval)
	}
	if cfg.Permission.Origins["https://blocked.example.com"] != "deny" {
		t.Errorf("Origins = %v", cfg.Permission.Origins)
	}
	if cfg.Logging.Scopes["mediastream"] != "trace" {
		t.Errorf("Scopes = %v", cfg.Logging.Scopes)
	}

	video := cfg.Devices.FakeDevices(media.DeviceVideoCapture)
	if len(video) != 1 || video[0].Type != media.DeviceVideoCapture || video[0].ID != "cam-1" {
		t.Errorf("FakeDevices(video) = %+v", video)
	}

	params := cfg.Audio.OutputParameters()
	if params.SampleRate != 44100 || params.FramesPerBuffer != 480 || params.ChannelLayout != media.ChannelLayoutStereo {
		t.Errorf("OutputParameters = %+v", params)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "api: [port"},
		{"bad permission mode", "permission:\n  mode: prompt\n"},
		{"platform without url", "platform:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.data)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing file should fail")
	}
}
