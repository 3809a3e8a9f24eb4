package mediastream

import (
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/monitor"
)

func (m *Manager) doEnumerateDevices(label string) {
	r := m.requests.Find(label)
	if r == nil {
		m.log.Debugf("DoEnumerateDevices({label = %s}) request is gone", label)
		return
	}

	t := r.Request.AudioType
	if t == media.NoService {
		t = r.Request.VideoType
	}

	cache := m.cacheFor(t)
	if !cache.valid {
		// Delivered from devicesEnumerated
		m.startEnumeration(r)
		return
	}

	m.setState(r, t, media.StateRequested)
	r.Devices = append([]media.StreamDevice(nil), cache.devices...)
	m.finalizeEnumerateDevices(label, r)
}

// startEnumeration marks the request's types as Requested and asks the
// providers for a device list unless one is already on its way.
func (m *Manager) startEnumeration(r *DeviceRequest) {
	m.startMonitoring()

	for t := media.NoService + 1; t < media.NumMediaTypes; t++ {
		if !r.Request.Requested(t) {
			continue
		}
		m.setState(r, t, media.StateRequested)
		if m.activeEnumeration[t] == 0 {
			m.activeEnumeration[t]++
			m.providerFor(t).EnumerateDevices(t)
		}
	}
}

func (m *Manager) devicesEnumerated(t media.MediaType, devices []media.StreamDevice) {
	if t != media.DeviceAudioCapture && t != media.DeviceVideoCapture {
		m.log.Errorf("device list for unexpected type %s", t)
		return
	}
	m.log.Debugf("DevicesEnumerated({type = %s}, %d devices)", t, len(devices))

	cache := m.cacheFor(t)
	changed := !cache.valid || !media.EqualDevices(devices, cache.devices)
	if changed {
		m.stopRemovedDevices(t, cache.devices, devices)
		cache.devices = append([]media.StreamDevice(nil), devices...)
		cache.valid = len(devices) > 0
	}

	if changed && m.monitoring {
		m.notifyDevicesChanged(t, devices)
	}

	// Only requests waiting on this list move on
	var waiting []string
	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r.State(t) != media.StateRequested || !r.Request.Requested(t) {
			continue
		}
		if r.Request.Type != media.EnumerateDevices {
			m.setState(r, t, media.StatePendingApproval)
		}
		waiting = append(waiting, label)
	}

	for _, label := range waiting {
		r := m.requests.Find(label)
		if r == nil {
			continue
		}

		if r.Request.Type == media.EnumerateDevices {
			if changed {
				r.Devices = append([]media.StreamDevice(nil), devices...)
				m.finalizeEnumerateDevices(label, r)
			}
			continue
		}

		if r.State(r.Request.AudioType) == media.StateRequested ||
			r.State(r.Request.VideoType) == media.StateRequested {
			continue
		}
		m.postRequestToUI(label, r)
	}

	m.activeEnumeration[t]--
	if m.activeEnumeration[t] < 0 {
		m.log.Errorf("unbalanced device list for %s", t)
		m.activeEnumeration[t] = 0
	}
}

func (m *Manager) finalizeEnumerateDevices(label string, r *DeviceRequest) {
	if !media.ValidOrigin(r.Request.SecurityOrigin) {
		r.Requester.DevicesEnumerated(label, nil)
		return
	}

	for i := range r.Devices {
		r.Devices[i].Device = m.toSource(r, r.Devices[i].Device)
	}
	r.Requester.DevicesEnumerated(label, append([]media.StreamDevice(nil), r.Devices...))
}

func (m *Manager) stopRemovedDevices(t media.MediaType, old, current []media.StreamDevice) {
	for _, o := range old {
		found := false
		for _, c := range current {
			if c.Device.ID == o.Device.ID {
				found = true
				break
			}
		}
		if !found {
			m.stopRemovedDevice(o.Device)
		}
	}
}

// stopRemovedDevice revokes an unplugged device from every stream using it.
// Each session is stopped once even when shared between requests.
func (m *Manager) stopRemovedDevice(d media.Device) {
	m.log.Infof("device %s (%s) removed", d.Name, d.Type)

	var sessions []int
	seen := make(map[int]bool)
	for _, label := range m.requests.Labels() {
		r := m.requests.Find(label)
		if r.Request.Type == media.EnumerateDevices {
			continue
		}

		sourceID := r.ResourceContext.SourceID(r.Request.SecurityOrigin, d.ID)
		for _, sd := range r.Devices {
			if sd.Device.Type != d.Type || sd.Device.ID != sourceID {
				continue
			}
			if r.Requester != nil {
				r.Requester.DeviceStopped(r.RequestingViewID, label, sd)
			}
			if !seen[sd.SessionID] {
				seen[sd.SessionID] = true
				sessions = append(sessions, sd.SessionID)
			}
		}
	}

	for _, sessionID := range sessions {
		m.stopDevice(d.Type, sessionID)
	}
}

func (m *Manager) notifyDevicesChanged(t media.MediaType, devices []media.StreamDevice) {
	if m.observer == nil {
		return
	}

	list := media.Devices(devices)
	if t == media.DeviceAudioCapture {
		m.observer.OnAudioCaptureDevicesChanged(list)
	} else {
		m.observer.OnVideoCaptureDevicesChanged(list)
	}
}

// startMonitoring subscribes to hot-plug and primes both caches
func (m *Manager) startMonitoring() {
	if m.monitoring || m.notifier == nil {
		return
	}
	m.monitoring = true
	m.notifier.AddObserver(m.devices)
	m.log.Debug("device monitoring started")

	for _, t := range []media.MediaType{media.DeviceAudioCapture, media.DeviceVideoCapture} {
		m.activeEnumeration[t]++
		m.providerFor(t).EnumerateDevices(t)
	}
}

func (m *Manager) stopMonitoring() {
	if !m.monitoring {
		return
	}
	m.notifier.RemoveObserver(m.devices)
	m.monitoring = false

	// Nothing keeps the caches fresh any more
	m.audioCache.valid = false
	m.videoCache.valid = false
	m.log.Debug("device monitoring stopped")
}

func (m *Manager) onDevicesChanged(dt monitor.DeviceType) {
	var t media.MediaType
	switch dt {
	case monitor.AudioCapture:
		t = media.DeviceAudioCapture
	case monitor.VideoCapture:
		t = media.DeviceVideoCapture
	default:
		return
	}

	m.log.Debugf("devices changed {type = %s}", t)
	m.activeEnumeration[t]++
	m.providerFor(t).EnumerateDevices(t)
}
