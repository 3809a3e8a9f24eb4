// Package permission decides which devices a request may use. A Surface is
// the prompt shown for one request; its answer arrives asynchronously.
package permission

import (
	"github.com/video-system/go-media-access/pkg/media"
)

// Callback receives the approved devices. An empty list means denied.
type Callback func(devices []media.Device)

// Surface asks for access on behalf of one request. Callbacks may run on
// any goroutine.
type Surface interface {
	RequestAccess(req media.Request, cb Callback)
	// OnStarted hands over a function that stops the granted stream
	OnStarted(stop func())
}

// Factory creates one Surface per request
type Factory func() Surface

// DeviceSetter is implemented by surfaces that choose devices themselves
// and need the currently known devices.
type DeviceSetter interface {
	SetAvailableDevices(devices []media.Device)
}

// Releaser is implemented by surfaces that hold state past the request
type Releaser interface {
	Release()
}

// Virtual device ids for captures that have no enumerated device
const (
	DefaultScreenID   = "screen:0"
	DefaultLoopbackID = "loopback"
)

// SelectDevices picks at most one device per requested type: the requested
// id if given, else the first available device of that type. Tab, desktop
// and loopback captures are synthesized.
func SelectDevices(available []media.Device, req media.Request) []media.Device {
	var selected []media.Device
	if d, ok := pick(available, req, req.AudioType, req.RequestedAudioDeviceID); ok {
		selected = append(selected, d)
	}
	if d, ok := pick(available, req, req.VideoType, req.RequestedVideoDeviceID); ok {
		selected = append(selected, d)
	}
	return selected
}

func pick(available []media.Device, req media.Request, t media.MediaType, id string) (media.Device, bool) {
	switch t {
	case media.NoService:
		return media.Device{}, false
	case media.TabAudioCapture, media.TabVideoCapture:
		return media.Device{Type: t, ID: req.TabCaptureDeviceID, Name: "Tab"}, true
	case media.DesktopVideoCapture:
		if id == "" {
			id = DefaultScreenID
		}
		return media.Device{Type: t, ID: id, Name: "Screen"}, true
	case media.LoopbackAudioCapture:
		return media.Device{Type: t, ID: DefaultLoopbackID, Name: "System Audio"}, true
	}

	for _, d := range available {
		if d.Type == t && (id == "" || d.ID == id) {
			return d, true
		}
	}
	return media.Device{}, false
}
