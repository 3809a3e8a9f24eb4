package mediastream

import (
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/monitor"
)

// providerListener moves provider events onto the control goroutine
type providerListener struct {
	m *Manager
}

func (l *providerListener) Opened(t media.MediaType, sessionID int, params media.AudioParameters) {
	l.m.post("Opened", func() { l.m.opened(t, sessionID, params) })
}

func (l *providerListener) Closed(t media.MediaType, sessionID int) {
	l.m.log.Debugf("Closed({type = %s}, {session_id = %d})", t, sessionID)
}

func (l *providerListener) DevicesEnumerated(t media.MediaType, devices []media.StreamDevice) {
	l.m.post("DevicesEnumerated", func() { l.m.devicesEnumerated(t, devices) })
}

func (l *providerListener) Error(t media.MediaType, sessionID int, err error) {
	l.m.post("Error", func() { l.m.providerError(t, sessionID, err) })
}

type deviceObserver struct {
	m *Manager
}

func (o *deviceObserver) OnDevicesChanged(t monitor.DeviceType) {
	o.m.post("OnDevicesChanged", func() { o.m.onDevicesChanged(t) })
}

func (m *Manager) post(name string, fn func()) {
	if !m.loop.Post(fn) {
		m.log.Debugf("%s dropped, manager is stopped", name)
	}
}
