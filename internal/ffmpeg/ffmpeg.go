package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
}

// New creates a wrapper around binaryPath, or the ffmpeg found in PATH or
// common locations when binaryPath is empty.
func New(binaryPath string) (*FFmpeg, error) {
	if binaryPath == "" {
		path, err := findBinary("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		binaryPath = path
	} else if _, err := os.Stat(binaryPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	return &FFmpeg{binaryPath: binaryPath}, nil
}

// Path returns the binary in use
func (f *FFmpeg) Path() string {
	return f.binaryPath
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version runs "ffmpeg -version" and returns the release it reports,
// e.g. "6.1.1" or "n7.0-12-gabc".
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, f.binaryPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", f.binaryPath, err)
	}

	v, ok := ParseVersion(string(output))
	if !ok {
		return "", fmt.Errorf("unrecognized version output from %s", f.binaryPath)
	}
	return v, nil
}

// ParseVersion extracts the release from the banner line of -version output
func ParseVersion(output string) (string, bool) {
	const banner = "ffmpeg version "

	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), banner)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", false
		}
		return fields[0], true
	}
	return "", false
}
