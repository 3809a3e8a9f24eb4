package mediastream

import (
	"github.com/video-system/go-media-access/pkg/deviceid"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/permission"
)

// Requester receives the results of the requests it made. Calls are made on
// the control goroutine: they must not block and must not call back into
// the Manager synchronously. A callback only names a label after the entry
// point that created it has returned that label. The same holds for the
// AccessCallback of a device access request.
type Requester interface {
	StreamGenerated(label string, audio, video []media.StreamDevice)
	StreamGenerationFailed(label string)
	DeviceOpened(label string, device media.StreamDevice)
	DevicesEnumerated(label string, devices []media.StreamDevice)
	DeviceStopped(viewID int, label string, device media.StreamDevice)
}

// Observer follows device lists and request progress. Same calling rules
// as Requester.
type Observer interface {
	OnAudioCaptureDevicesChanged(devices []media.Device)
	OnVideoCaptureDevicesChanged(devices []media.Device)
	OnMediaRequestStateChanged(processID, viewID, pageRequestID int, device media.Device, state media.RequestState)
}

// AccessCallback ends a device access request. The surface is handed over
// so the caller can report the stream as started later.
type AccessCallback func(devices []media.Device, surface permission.Surface)

// DeviceRequest is one logical ask. It is only touched on the control
// goroutine.
type DeviceRequest struct {
	// Nil for device access requests
	Requester Requester
	Request   media.Request

	// Ids of the caller. Request.RenderProcessID and RenderViewID name the
	// captured tab for tab capture.
	RequestingProcessID int
	RequestingViewID    int

	ResourceContext *deviceid.ResourceContext

	// Opened devices, with source ids for physical devices
	Devices []media.StreamDevice

	Callback AccessCallback
	Surface  permission.Surface

	states    [media.NumMediaTypes]media.RequestState
	finalized bool
}

func newDeviceRequest(requester Requester, req media.Request, rc *deviceid.ResourceContext) *DeviceRequest {
	return &DeviceRequest{
		Requester:           requester,
		Request:             req,
		RequestingProcessID: req.RenderProcessID,
		RequestingViewID:    req.RenderViewID,
		ResourceContext:     rc,
	}
}

// State returns the progress of media type t
func (r *DeviceRequest) State(t media.MediaType) media.RequestState {
	if t <= media.NoService || t >= media.NumMediaTypes {
		return media.StateNotRequested
	}
	return r.states[t]
}

// States returns the progress of every requested type
func (r *DeviceRequest) States() map[media.MediaType]media.RequestState {
	out := make(map[media.MediaType]media.RequestState, 2)
	for t := media.NoService + 1; t < media.NumMediaTypes; t++ {
		if r.Request.Requested(t) {
			out[t] = r.states[t]
		}
	}
	return out
}

func (r *DeviceRequest) isTabCapture() bool {
	return r.Request.AudioType == media.TabAudioCapture || r.Request.VideoType == media.TabVideoCapture
}

// done reports whether every requested type reached Done or Error
func (r *DeviceRequest) done() bool {
	return kindDone(r, r.Request.AudioType) && kindDone(r, r.Request.VideoType)
}

func kindDone(r *DeviceRequest, t media.MediaType) bool {
	if t == media.NoService {
		return true
	}
	s := r.State(t)
	return s == media.StateDone || s == media.StateError
}

func (r *DeviceRequest) hasSession(t media.MediaType, sessionID int) bool {
	for _, d := range r.Devices {
		if d.Device.Type == t && d.SessionID == sessionID {
			return true
		}
	}
	return false
}
