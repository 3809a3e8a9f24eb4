package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownMediaType is returned when a media type name cannot be parsed
var ErrUnknownMediaType = errors.New("unknown media type")

// MediaType is a capture category
type MediaType int

const (
	NoService MediaType = iota
	DeviceAudioCapture
	DeviceVideoCapture
	TabAudioCapture
	TabVideoCapture
	DesktopVideoCapture
	LoopbackAudioCapture
	NumMediaTypes
)

var mediaTypeNames = [NumMediaTypes]string{
	NoService:            "none",
	DeviceAudioCapture:   "audio",
	DeviceVideoCapture:   "video",
	TabAudioCapture:      "tab_audio",
	TabVideoCapture:      "tab_video",
	DesktopVideoCapture:  "desktop_video",
	LoopbackAudioCapture: "loopback_audio",
}

func (t MediaType) String() string {
	if t < NoService || t >= NumMediaTypes {
		return "unknown"
	}
	return mediaTypeNames[t]
}

// IsAudio reports whether t carries audio
func (t MediaType) IsAudio() bool {
	return t == DeviceAudioCapture || t == TabAudioCapture || t == LoopbackAudioCapture
}

// IsVideo reports whether t carries video
func (t MediaType) IsVideo() bool {
	return t == DeviceVideoCapture || t == TabVideoCapture || t == DesktopVideoCapture
}

// ParseMediaType converts a config/API name to a MediaType. Empty means NoService.
func ParseMediaType(name string) (MediaType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NoService, nil
	}
	for i, n := range mediaTypeNames {
		if n == name {
			return MediaType(i), nil
		}
	}
	return NoService, fmt.Errorf("%w: %q", ErrUnknownMediaType, name)
}

// MarshalText implements encoding.TextMarshaler
func (t MediaType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *MediaType) UnmarshalText(text []byte) error {
	v, err := ParseMediaType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// RequestType is the kind of a device request
type RequestType int

const (
	GenerateStream RequestType = iota
	OpenDevice
	EnumerateDevices
	DeviceAccess
)

func (r RequestType) String() string {
	switch r {
	case GenerateStream:
		return "generate_stream"
	case OpenDevice:
		return "open_device"
	case EnumerateDevices:
		return "enumerate_devices"
	case DeviceAccess:
		return "device_access"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (r RequestType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// RequestState is the per-media-type progress of a request
type RequestState int

const (
	StateNotRequested RequestState = iota
	StateRequested
	StatePendingApproval
	StateOpening
	StateDone
	StateClosing
	StateError
)

func (s RequestState) String() string {
	switch s {
	case StateNotRequested:
		return "not_requested"
	case StateRequested:
		return "requested"
	case StatePendingApproval:
		return "pending_approval"
	case StateOpening:
		return "opening"
	case StateDone:
		return "done"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ChannelLayout describes audio channel arrangement
type ChannelLayout int

const (
	ChannelLayoutNone ChannelLayout = iota
	ChannelLayoutMono
	ChannelLayoutStereo
)

// AudioParameters are the negotiated parameters of an audio session
type AudioParameters struct {
	SampleRate      int           `json:"sample_rate,omitempty" yaml:"sample_rate"`
	ChannelLayout   ChannelLayout `json:"channel_layout,omitempty" yaml:"channel_layout"`
	FramesPerBuffer int           `json:"frames_per_buffer,omitempty" yaml:"frames_per_buffer"`
}

// Device describes one capture device of a given type
type Device struct {
	Type MediaType `json:"type"`
	ID   string    `json:"id"`
	Name string    `json:"name"`

	// Audio only
	Input         AudioParameters `json:"input,omitempty"`
	MatchedOutput AudioParameters `json:"matched_output,omitempty"`
}

// Equal reports content equality
func (d Device) Equal(other Device) bool {
	return d.Type == other.Type &&
		d.ID == other.ID &&
		d.Name == other.Name &&
		d.Input == other.Input
}

// StreamDevice is a device bound to a provider session
type StreamDevice struct {
	Device    Device `json:"device"`
	SessionID int    `json:"session_id"`
}

// Equal reports content equality
func (s StreamDevice) Equal(other StreamDevice) bool {
	return s.Device.Equal(other.Device) && s.SessionID == other.SessionID
}

// EqualDevices compares two lists element-wise
func EqualDevices(a, b []StreamDevice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Devices strips session information from a list
func Devices(list []StreamDevice) []Device {
	out := make([]Device, 0, len(list))
	for _, sd := range list {
		out = append(out, sd.Device)
	}
	return out
}

// StreamOptions is what a client asks for
type StreamOptions struct {
	AudioType     MediaType `json:"audio_type"`
	VideoType     MediaType `json:"video_type"`
	AudioDeviceID string    `json:"audio_device_id,omitempty"`
	VideoDeviceID string    `json:"video_device_id,omitempty"`
}

// Request is the immutable descriptor of a device request. The tab-capture
// fields are rewritten once during setup.
type Request struct {
	RenderProcessID int         `json:"render_process_id"`
	RenderViewID    int         `json:"render_view_id"`
	PageRequestID   int         `json:"page_request_id"`
	SecurityOrigin  string      `json:"security_origin"`
	Type            RequestType `json:"request_type"`

	RequestedAudioDeviceID string    `json:"requested_audio_device_id,omitempty"`
	RequestedVideoDeviceID string    `json:"requested_video_device_id,omitempty"`
	AudioType              MediaType `json:"audio_type"`
	VideoType              MediaType `json:"video_type"`

	TabCaptureDeviceID string `json:"tab_capture_device_id,omitempty"`
}

// Requested reports whether t is one of the request's media types
func (r Request) Requested(t MediaType) bool {
	return t != NoService && (r.AudioType == t || r.VideoType == t)
}

// ValidOrigin reports whether origin is a structurally valid absolute URL
func ValidOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != "" || u.Scheme == "file"
}
