package mediastream

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-media-access/pkg/media"
)

// Config holds all daemon configuration
type Config struct {
	API           APIConfig           `yaml:"api"`
	Devices       DevicesConfig       `yaml:"devices"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Permission    PermissionConfig    `yaml:"permission"`
	Anonymization AnonymizationConfig `yaml:"anonymization"`
	Audio         AudioConfig         `yaml:"audio"`
	Logging       LoggingConfig       `yaml:"logging"`
	Platform      PlatformConfig      `yaml:"platform"`
}

// APIConfig configures the control API
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DevicesConfig selects the device backend
type DevicesConfig struct {
	Backend     string `yaml:"backend"`      // fake, mediadevices, ffmpeg, ndi
	FFmpegPath  string `yaml:"ffmpeg_path"`  // Empty searches PATH
	InputFormat string `yaml:"input_format"` // avfoundation, dshow, v4l2, alsa, pulse
	NDIGroups   string `yaml:"ndi_groups"`
	NDIExtraIPs string `yaml:"ndi_extra_ips"`

	// Devices served by the fake backend
	Audio []DeviceConfig `yaml:"audio"`
	Video []DeviceConfig `yaml:"video"`
}

// DeviceConfig describes one fake device
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MonitorConfig configures hot-plug polling
type MonitorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`     // Base poll interval (2s)
	MaxInterval time.Duration `yaml:"max_interval"` // Ceiling when devices are quiet (10s)
}

// PermissionConfig configures the permission surface
type PermissionConfig struct {
	Mode    string            `yaml:"mode"`    // fake, policy
	Default string            `yaml:"default"` // allow, deny
	Origins map[string]string `yaml:"origins"` // origin -> allow|deny
}

// AnonymizationConfig configures device id hashing
type AnonymizationConfig struct {
	Salt string `yaml:"salt"` // Random per run if empty
}

// AudioConfig holds the default output parameters used for tab audio
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// LoggingConfig sets log levels
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Scopes map[string]string `yaml:"scopes"`
}

// PlatformConfig configures optional platform integration
type PlatformConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	APIKey        string `yaml:"api_key"`
	AgentID       string `yaml:"agent_id"`
	HeartbeatSecs int    `yaml:"heartbeat_secs"`
}

// OutputParameters converts the audio section
func (c AudioConfig) OutputParameters() media.AudioParameters {
	return media.AudioParameters{
		SampleRate:      c.SampleRate,
		ChannelLayout:   media.ChannelLayoutStereo,
		FramesPerBuffer: c.FramesPerBuffer,
	}
}

// FakeDevices converts the configured fake devices of type t
func (c DevicesConfig) FakeDevices(t media.MediaType) []media.Device {
	list := c.Audio
	if t == media.DeviceVideoCapture {
		list = c.Video
	}

	devices := make([]media.Device, 0, len(list))
	for _, d := range list {
		devices = append(devices, media.Device{Type: t, ID: d.ID, Name: d.Name})
	}
	return devices
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults
func ParseConfig(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8090
	}
	if cfg.Devices.Backend == "" {
		cfg.Devices.Backend = "fake"
	}
	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 2 * time.Second
	}
	if cfg.Monitor.MaxInterval < cfg.Monitor.Interval {
		cfg.Monitor.MaxInterval = 5 * cfg.Monitor.Interval
	}
	if cfg.Permission.Mode == "" {
		cfg.Permission.Mode = "fake"
	}
	if cfg.Permission.Default == "" {
		cfg.Permission.Default = "deny"
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.FramesPerBuffer == 0 {
		cfg.Audio.FramesPerBuffer = 480
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Platform.HeartbeatSecs == 0 {
		cfg.Platform.HeartbeatSecs = 30
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Permission.Mode {
	case "fake", "policy":
	default:
		return fmt.Errorf("invalid permission mode %q", c.Permission.Mode)
	}
	if c.Platform.Enabled && c.Platform.URL == "" {
		return fmt.Errorf("platform enabled without url")
	}
	return nil
}
