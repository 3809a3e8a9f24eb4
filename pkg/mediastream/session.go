package mediastream

import (
	"fmt"

	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/permission"
)

func (m *Manager) opened(t media.MediaType, sessionID int, params media.AudioParameters) {
	m.log.Debugf("Opened({type = %s}, {session_id = %d})", t, sessionID)

	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r == nil {
			continue
		}

		for i := range r.Devices {
			sd := &r.Devices[i]
			if sd.Device.Type != t || sd.SessionID != sessionID {
				continue
			}

			state := r.State(t)
			if state == media.StateClosing {
				// Stopped while the provider was opening
				break
			}
			if state != media.StateOpening {
				panic(fmt.Sprintf("mediastream: session %d of %s opened while %s in %s", sessionID, t, state, label))
			}

			if t.IsAudio() && t != media.TabAudioCapture {
				sd.Device.Input = params
			}
			m.setState(r, t, media.StateDone)

			if r.done() {
				m.handleRequestDone(label, r)
			}
			break
		}
	}
}

// providerError fails the kind of every request still opening the session
func (m *Manager) providerError(t media.MediaType, sessionID int, err error) {
	m.log.Warnf("provider error {type = %s}, {session_id = %d}: %v", t, sessionID, err)

	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r == nil || r.State(t) != media.StateOpening || !r.hasSession(t, sessionID) {
			continue
		}

		r.Devices = removeSession(r.Devices, t, sessionID)
		m.setState(r, t, media.StateError)

		if r.done() {
			m.handleRequestDone(label, r)
		}
	}
}

func (m *Manager) handleRequestDone(label string, r *DeviceRequest) {
	if r.finalized {
		return
	}
	r.finalized = true
	m.log.Debugf("HandleRequestDone({label = %s})", label)

	if len(r.Devices) == 0 {
		m.finalizeRequestFailed(label, r)
		return
	}

	if r.Request.Type != media.OpenDevice && r.Request.Type != media.GenerateStream {
		m.log.Errorf("request %s of type %s cannot complete", label, r.Request.Type)
		return
	}

	// The stop hook is in place before the requester hears of the stream
	if r.Surface != nil {
		r.Surface.OnStarted(func() { m.StopMediaStreamFromBrowser(label) })
	}

	if r.Request.Type == media.OpenDevice {
		m.finalizeOpenDevice(label, r)
	} else {
		m.finalizeGenerateStream(label, r)
	}
}

func (m *Manager) finalizeGenerateStream(label string, r *DeviceRequest) {
	var audio, video []media.StreamDevice
	for _, sd := range r.Devices {
		if sd.Device.Type.IsAudio() {
			audio = append(audio, sd)
		} else if sd.Device.Type.IsVideo() {
			video = append(video, sd)
		}
	}
	m.log.Infof("stream %s generated with %d audio and %d video devices", label, len(audio), len(video))
	r.Requester.StreamGenerated(label, audio, video)
}

func (m *Manager) finalizeOpenDevice(label string, r *DeviceRequest) {
	r.Requester.DeviceOpened(label, r.Devices[0])
}

func (m *Manager) finalizeRequestFailed(label string, r *DeviceRequest) {
	m.log.Infof("request %s failed", label)

	if r.Requester != nil {
		r.Requester.StreamGenerationFailed(label)
	}
	if r.Request.Type == media.DeviceAccess {
		if r.Callback != nil {
			r.Callback(nil, r.Surface)
		}
		// Owned by the callback now
		r.Surface = nil
	}
	m.deleteRequest(label)
}

func (m *Manager) finalizeMediaAccessRequest(label string, r *DeviceRequest, devices []media.Device) {
	if r.Callback != nil {
		r.Callback(devices, r.Surface)
	}
	r.Surface = nil
	m.deleteRequest(label)
}

func (m *Manager) cancelRequest(label string) {
	r := m.requests.Find(label)
	if r == nil {
		m.log.Debugf("CancelRequest({label = %s}) request is gone", label)
		return
	}
	m.log.Debugf("CancelRequest({label = %s})", label)

	if r.Request.Type == media.EnumerateDevices {
		m.deleteRequest(label)
		return
	}

	for _, sd := range r.Devices {
		state := r.State(sd.Device.Type)
		if state != media.StateOpening && state != media.StateDone {
			continue
		}
		m.closeDevice(sd.Device.Type, sd.SessionID)
	}

	m.setAllStates(r, media.StateClosing)
	m.deleteRequest(label)
}

func (m *Manager) cancelAllRequests(processID int) int {
	n := 0
	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r == nil || r.RequestingProcessID != processID {
			continue
		}
		m.cancelRequest(label)
		n++
	}
	return n
}

func (m *Manager) stopStreamDevice(processID, viewID int, deviceID string) bool {
	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r == nil ||
			r.Request.Type != media.GenerateStream ||
			r.RequestingProcessID != processID ||
			r.RequestingViewID != viewID {
			continue
		}

		for _, sd := range r.Devices {
			if sd.Device.ID == deviceID {
				m.stopDevice(sd.Device.Type, sd.SessionID)
				return true
			}
		}
	}
	return false
}

// stopDevice drops the session from every request holding it and closes it
// once. Requests left without devices are forgotten.
func (m *Manager) stopDevice(t media.MediaType, sessionID int) {
	m.log.Debugf("StopDevice({type = %s}, {session_id = %d})", t, sessionID)

	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r == nil || !r.hasSession(t, sessionID) {
			continue
		}

		state := r.State(t)
		if state == media.StateOpening || state == media.StateDone {
			m.closeDevice(t, sessionID)
		}

		r.Devices = removeSession(r.Devices, t, sessionID)
		if len(r.Devices) == 0 {
			m.deleteRequest(label)
		}
	}
}

func (m *Manager) closeDevice(t media.MediaType, sessionID int) {
	m.log.Debugf("CloseDevice({type = %s}, {session_id = %d})", t, sessionID)

	m.providerFor(t).Close(sessionID)

	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r != nil && r.hasSession(t, sessionID) {
			m.setState(r, t, media.StateClosing)
		}
	}
}

func (m *Manager) stopMediaStreamFromBrowser(label string) {
	r := m.requests.Find(label)
	if r == nil {
		return
	}
	m.log.Infof("stream %s stopped by the permission surface", label)

	if r.Requester != nil {
		for _, sd := range r.Devices {
			r.Requester.DeviceStopped(r.RequestingViewID, label, sd)
		}
	}
	m.cancelRequest(label)
}

// deleteRequest forgets the request and releases its surface
func (m *Manager) deleteRequest(label string) {
	r := m.requests.Find(label)
	if r == nil {
		return
	}

	if releaser, ok := r.Surface.(permission.Releaser); ok {
		releaser.Release()
	}
	if err := m.requests.Remove(label); err != nil {
		m.log.Errorf("delete request: %v", err)
	}
}

func (m *Manager) setState(r *DeviceRequest, t media.MediaType, state media.RequestState) {
	if t <= media.NoService || t >= media.NumMediaTypes {
		return
	}
	r.states[t] = state

	if m.observer == nil || (!r.isTabCapture() && state != media.StateClosing) {
		return
	}

	// Tab capture ids carry a scheme prefix the observer does not expect
	device := media.Device{Type: t}
	if r.isTabCapture() {
		device.ID = media.StripWebContentsDeviceScheme(r.Request.TabCaptureDeviceID)
	}
	m.observer.OnMediaRequestStateChanged(r.Request.RenderProcessID, r.Request.RenderViewID,
		r.Request.PageRequestID, device, state)
}

func (m *Manager) setAllStates(r *DeviceRequest, state media.RequestState) {
	for t := media.NoService + 1; t < media.NumMediaTypes; t++ {
		if r.Request.Requested(t) {
			m.setState(r, t, state)
		}
	}
}

func removeSession(devices []media.StreamDevice, t media.MediaType, sessionID int) []media.StreamDevice {
	kept := make([]media.StreamDevice, 0, len(devices))
	for _, sd := range devices {
		if sd.Device.Type == t && sd.SessionID == sessionID {
			continue
		}
		kept = append(kept, sd)
	}
	return kept
}
