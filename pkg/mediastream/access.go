package mediastream

import (
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/permission"
)

// Tab audio has no enumerated device to report parameters
const (
	fallbackSampleRate = 44100
	maxInputSampleRate = 96000
)

func (m *Manager) setupRequest(label string) {
	r := m.requests.Find(label)
	if r == nil {
		// Cancelled before setup ran
		m.log.Debugf("SetupRequest({label = %s}) request is gone", label)
		return
	}
	m.log.Debugf("SetupRequest({label = %s})", label)

	if !media.ValidOrigin(r.Request.SecurityOrigin) {
		m.log.Errorf("invalid security origin %q for %s", r.Request.SecurityOrigin, label)
		m.finalizeRequestFailed(label, r)
		return
	}

	audioType, videoType := r.Request.AudioType, r.Request.VideoType
	if (audioType != media.NoService && !audioType.IsAudio()) ||
		(videoType != media.NoService && !videoType.IsVideo()) ||
		(audioType == media.NoService && videoType == media.NoService) {
		m.log.Errorf("invalid media types audio=%s video=%s for %s", audioType, videoType, label)
		m.finalizeRequestFailed(label, r)
		return
	}

	isTabCapture := r.isTabCapture()
	if isTabCapture && !m.setupTabCaptureRequest(r) {
		m.log.Errorf("invalid tab capture request %s", label)
		m.finalizeRequestFailed(label, r)
		return
	}

	isScreenCapture := videoType == media.DesktopVideoCapture
	if isScreenCapture && audioType != media.NoService && audioType != media.LoopbackAudioCapture {
		m.log.Errorf("invalid screen capture request %s", label)
		m.finalizeRequestFailed(label, r)
		return
	}
	if !isScreenCapture && audioType == media.LoopbackAudioCapture {
		m.log.Errorf("loopback audio without screen capture in %s", label)
		m.finalizeRequestFailed(label, r)
		return
	}

	if !isTabCapture && !isScreenCapture &&
		((audioType.IsAudio() && !m.audioCache.valid) || (videoType.IsVideo() && !m.videoCache.valid)) {
		// Resumes from devicesEnumerated
		m.startEnumeration(r)
		return
	}

	m.postRequestToUI(label, r)
}

// setupTabCaptureRequest points the request at the captured tab
func (m *Manager) setupTabCaptureRequest(r *DeviceRequest) bool {
	req := &r.Request

	target := req.RequestedVideoDeviceID
	if target == "" {
		target = req.RequestedAudioDeviceID
	}
	tabCaptureID := media.AppendWebContentsDeviceScheme(target)

	processID, viewID, ok := media.ExtractTabCaptureTarget(tabCaptureID)
	if !ok ||
		(req.AudioType != media.TabAudioCapture && req.AudioType != media.NoService) ||
		(req.VideoType != media.TabVideoCapture && req.VideoType != media.NoService) {
		return false
	}

	req.TabCaptureDeviceID = tabCaptureID
	req.RenderProcessID = processID
	req.RenderViewID = viewID
	m.log.Debugf("SetupTabCaptureRequest({tab_capture_device_id = %s}, {target = %d:%d})",
		tabCaptureID, processID, viewID)
	return true
}

func (m *Manager) postRequestToUI(label string, r *DeviceRequest) {
	m.log.Debugf("PostRequestToUI({label = %s})", label)

	m.translateRequestedSourceIDs(r)

	if t := r.Request.AudioType; t.IsAudio() {
		m.setState(r, t, media.StatePendingApproval)
	}
	if t := r.Request.VideoType; t.IsVideo() {
		m.setState(r, t, media.StatePendingApproval)
	}

	surface := m.surfaceFactory()
	if setter, ok := surface.(permission.DeviceSetter); ok {
		setter.SetAvailableDevices(m.availableDevices())
	}
	r.Surface = surface

	surface.RequestAccess(r.Request, func(devices []media.Device) {
		m.post("HandleAccessRequestResponse", func() {
			m.handleAccessRequestResponse(label, devices)
		})
	})
}

// translateRequestedSourceIDs swaps caller source ids for raw ids. An id
// that matches nothing is dropped and any device of the type may be picked.
func (m *Manager) translateRequestedSourceIDs(r *DeviceRequest) {
	req := &r.Request

	if req.AudioType == media.DeviceAudioCapture && req.RequestedAudioDeviceID != "" {
		id, ok := m.fromSource(media.DeviceAudioCapture, r, req.RequestedAudioDeviceID)
		if !ok {
			m.log.Warnf("requested audio device %s does not exist", req.RequestedAudioDeviceID)
		}
		req.RequestedAudioDeviceID = id
	}

	if req.VideoType == media.DeviceVideoCapture && req.RequestedVideoDeviceID != "" {
		id, ok := m.fromSource(media.DeviceVideoCapture, r, req.RequestedVideoDeviceID)
		if !ok {
			m.log.Warnf("requested video device %s does not exist", req.RequestedVideoDeviceID)
		}
		req.RequestedVideoDeviceID = id
	}
}

func (m *Manager) handleAccessRequestResponse(label string, devices []media.Device) {
	r := m.requests.Find(label)
	if r == nil {
		// Cancelled while the prompt was up
		m.log.Debugf("HandleAccessRequestResponse({label = %s}) request is gone", label)
		return
	}
	m.log.Debugf("HandleAccessRequestResponse({label = %s}, %d devices)", label, len(devices))

	if r.Request.Type == media.DeviceAccess {
		m.finalizeMediaAccessRequest(label, r, devices)
		return
	}

	if len(devices) == 0 {
		m.finalizeRequestFailed(label, r)
		return
	}

	foundAudio, foundVideo := false, false
	for _, d := range devices {
		if !r.Request.Requested(d.Type) {
			m.log.Warnf("permission surface returned unrequested %s device for %s", d.Type, label)
			continue
		}
		if (d.Type.IsAudio() && foundAudio) || (d.Type.IsVideo() && foundVideo) {
			m.log.Warnf("permission surface returned a second %s device for %s", d.Type, label)
			continue
		}

		if d.Type == media.TabAudioCapture || d.Type == media.TabVideoCapture {
			d.ID = r.Request.TabCaptureDeviceID
			if d.Type == media.TabAudioCapture {
				d.Input = m.tabAudioParameters()
			}
		}

		if d.Type.IsAudio() {
			foundAudio = true
		} else {
			foundVideo = true
		}

		// A device is opened once per caller view so that a single stop
		// revokes it from every stream using it.
		if r.Request.Type == media.GenerateStream {
			if existing, state, ok := m.findExistingRequestedDevice(r, d); ok {
				r.Devices = append(r.Devices, existing)
				m.setState(r, d.Type, state)
				m.log.Debugf("device already opened {label = %s}, {session_id = %d}", label, existing.SessionID)
				continue
			}
		}

		sessionID := m.providerFor(d.Type).Open(d)
		r.Devices = append(r.Devices, media.StreamDevice{Device: m.toSource(r, d), SessionID: sessionID})
		m.setState(r, d.Type, media.StateOpening)
		m.log.Debugf("opening device {label = %s}, {session_id = %d}", label, sessionID)
	}

	if t := r.Request.AudioType; !foundAudio && t.IsAudio() {
		m.setState(r, t, media.StateError)
	}
	if t := r.Request.VideoType; !foundVideo && t.IsVideo() {
		m.setState(r, t, media.StateError)
	}

	if r.done() {
		m.handleRequestDone(label, r)
	}
}

// findExistingRequestedDevice finds a live session of d opened by another
// GenerateStream request of the same caller view.
func (m *Manager) findExistingRequestedDevice(r *DeviceRequest, d media.Device) (media.StreamDevice, media.RequestState, bool) {
	sourceID := m.toSource(r, d).ID

	for _, label := range m.requests.Labels() {
		other := m.requests.Find(label)
		if other == r ||
			other.RequestingProcessID != r.RequestingProcessID ||
			other.RequestingViewID != r.RequestingViewID ||
			other.Request.Type != r.Request.Type {
			continue
		}

		for _, sd := range other.Devices {
			if sd.Device.ID != sourceID || sd.Device.Type != d.Type {
				continue
			}
			state := other.State(d.Type)
			if state != media.StateOpening && state != media.StateDone {
				continue
			}
			return sd, state, true
		}
	}
	return media.StreamDevice{}, media.StateNotRequested, false
}

func (m *Manager) tabAudioParameters() media.AudioParameters {
	rate := m.outputParams.SampleRate
	if rate <= 0 || rate > maxInputSampleRate {
		rate = fallbackSampleRate
	}
	return media.AudioParameters{
		SampleRate:      rate,
		ChannelLayout:   media.ChannelLayoutStereo,
		FramesPerBuffer: m.outputParams.FramesPerBuffer,
	}
}

// availableDevices lists the raw devices of every valid cache
func (m *Manager) availableDevices() []media.Device {
	var devices []media.Device
	for _, cache := range []*enumerationCache{&m.audioCache, &m.videoCache} {
		if cache.valid {
			devices = append(devices, media.Devices(cache.devices)...)
		}
	}
	return devices
}

// toSource replaces a physical device's raw id with the id exposed to the
// request's origin.
func (m *Manager) toSource(r *DeviceRequest, d media.Device) media.Device {
	if d.Type == media.DeviceAudioCapture || d.Type == media.DeviceVideoCapture {
		d.ID = r.ResourceContext.SourceID(r.Request.SecurityOrigin, d.ID)
	}
	return d
}

// fromSource resolves a source id against the valid cache of type t
func (m *Manager) fromSource(t media.MediaType, r *DeviceRequest, sourceID string) (string, bool) {
	cache := m.cacheFor(t)
	if !cache.valid {
		return "", false
	}

	ids := make([]string, 0, len(cache.devices))
	for _, sd := range cache.devices {
		ids = append(ids, sd.Device.ID)
	}
	return r.ResourceContext.Resolve(r.Request.SecurityOrigin, sourceID, ids)
}
