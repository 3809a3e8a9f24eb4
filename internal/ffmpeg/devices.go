package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
)

// DeviceKind separates capture devices reported by ffmpeg
type DeviceKind string

const (
	KindAudio DeviceKind = "audio"
	KindVideo DeviceKind = "video"
)

// Device is a capture device as ffmpeg names it
type Device struct {
	Kind DeviceKind
	// ID is what the input format accepts as its -i argument
	ID   string
	Name string
}

// CaptureFormats returns the input formats used to list video and audio
// devices. An empty name selects the platform default.
func CaptureFormats(name string) (video, audio string) {
	if name == "" {
		switch runtime.GOOS {
		case "darwin":
			name = "avfoundation"
		case "windows":
			name = "dshow"
		default:
			name = "v4l2"
		}
	}

	switch name {
	case "avfoundation", "dshow":
		return name, name
	case "alsa", "pulse":
		return "v4l2", name
	default:
		return name, "alsa"
	}
}

// ListDevices asks ffmpeg for the capture devices of an input format
func (f *FFmpeg) ListDevices(ctx context.Context, format string) ([]Device, error) {
	var args []string
	switch format {
	case "avfoundation":
		args = []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "dshow":
		args = []string{"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	case "v4l2", "alsa", "pulse":
		args = []string{"-hide_banner", "-sources", format}
	default:
		return nil, fmt.Errorf("unsupported input format: %s", format)
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	// Listing always exits non-zero; the devices are in the output
	output, _ := cmd.CombinedOutput()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %s devices: %w", format, err)
	}

	return ParseDevices(format, string(output)), nil
}

var (
	avfoundationSection = regexp.MustCompile(`AVFoundation (video|audio) devices:`)
	avfoundationDevice  = regexp.MustCompile(`\] \[(\d+)\] (.+)$`)

	dshowSection = regexp.MustCompile(`DirectShow (video|audio) devices`)
	dshowTagged  = regexp.MustCompile(`\] +"(.+)" \((video|audio|none)\)\s*$`)
	dshowPlain   = regexp.MustCompile(`\] +"(.+)"\s*$`)

	sourceDevice = regexp.MustCompile(`^\s*\*?\s*(\S+) \[(.*)\]\s*$`)
)

// ParseDevices extracts devices from ffmpeg device listing output
func ParseDevices(format, output string) []Device {
	switch format {
	case "avfoundation":
		return parseAVFoundation(output)
	case "dshow":
		return parseDShow(output)
	case "v4l2":
		return parseSources(output, KindVideo)
	case "alsa", "pulse":
		return parseSources(output, KindAudio)
	}
	return nil
}

func parseAVFoundation(output string) []Device {
	var (
		devices []Device
		kind    DeviceKind
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if m := avfoundationSection.FindStringSubmatch(line); m != nil {
			kind = DeviceKind(m[1])
			continue
		}
		if kind == "" {
			continue
		}
		if m := avfoundationDevice.FindStringSubmatch(line); m != nil {
			devices = append(devices, Device{Kind: kind, ID: m[1], Name: strings.TrimSpace(m[2])})
		}
	}
	return devices
}

func parseDShow(output string) []Device {
	var (
		devices []Device
		kind    DeviceKind
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "Alternative name") {
			continue
		}
		if m := dshowSection.FindStringSubmatch(line); m != nil {
			kind = DeviceKind(m[1])
			continue
		}
		if m := dshowTagged.FindStringSubmatch(line); m != nil {
			if m[2] == "none" {
				continue
			}
			devices = append(devices, Device{Kind: DeviceKind(m[2]), ID: m[1], Name: m[1]})
			continue
		}
		if kind == "" {
			continue
		}
		if m := dshowPlain.FindStringSubmatch(line); m != nil {
			devices = append(devices, Device{Kind: kind, ID: m[1], Name: m[1]})
		}
	}
	return devices
}

func parseSources(output string, kind DeviceKind) []Device {
	var devices []Device

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := sourceDevice.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		if name == "" {
			name = m[1]
		}
		devices = append(devices, Device{Kind: kind, ID: m[1], Name: name})
	}
	return devices
}
