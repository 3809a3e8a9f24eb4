package mediastream

import (
	"time"

	"github.com/video-system/go-media-access/pkg/media"
)

// RequestStatus is a snapshot of one live request
type RequestStatus struct {
	Label     string                                  `json:"label"`
	Type      media.RequestType                       `json:"type"`
	Origin    string                                  `json:"origin"`
	ProcessID int                                     `json:"process_id"`
	ViewID    int                                     `json:"view_id"`
	States    map[media.MediaType]media.RequestState `json:"states"`
	Devices   []media.StreamDevice                    `json:"devices"`
}

// CacheStatus describes one enumeration cache
type CacheStatus struct {
	Valid              bool `json:"valid"`
	Devices            int  `json:"devices"`
	ActiveEnumerations int  `json:"active_enumerations"`
}

// LoopStatus reports control goroutine task durations
type LoopStatus struct {
	LastTask time.Duration `json:"last_task"`
	MaxTask  time.Duration `json:"max_task"`
}

// Status is a point-in-time view of the manager
type Status struct {
	Running    bool        `json:"running"`
	Monitoring bool        `json:"monitoring"`
	FakeUI     bool        `json:"fake_ui"`
	Loop       LoopStatus  `json:"loop"`
	AudioCache CacheStatus `json:"audio_cache"`
	VideoCache CacheStatus `json:"video_cache"`

	// Sessions still held by each provider, -1 when it does not tell
	AudioSessions int             `json:"audio_sessions"`
	VideoSessions int             `json:"video_sessions"`
	Requests      []RequestStatus `json:"requests"`
}

type sessionCounter interface {
	Sessions() int
}

func sessions(p any) int {
	if c, ok := p.(sessionCounter); ok {
		return c.Sessions()
	}
	return -1
}

// Status snapshots the manager state
func (m *Manager) Status() (Status, error) {
	st := Status{Running: true}
	err := m.call(func() {
		st.Monitoring = m.monitoring
		st.FakeUI = m.useFakeUI
		st.AudioCache = CacheStatus{
			Valid:              m.audioCache.valid,
			Devices:            len(m.audioCache.devices),
			ActiveEnumerations: m.activeEnumeration[media.DeviceAudioCapture],
		}
		st.VideoCache = CacheStatus{
			Valid:              m.videoCache.valid,
			Devices:            len(m.videoCache.devices),
			ActiveEnumerations: m.activeEnumeration[media.DeviceVideoCapture],
		}

		st.Requests = make([]RequestStatus, 0, m.requests.Len())
		for _, label := range m.requests.Labels() {
			r := m.requests.Find(label)
			st.Requests = append(st.Requests, RequestStatus{
				Label:     label,
				Type:      r.Request.Type,
				Origin:    r.Request.SecurityOrigin,
				ProcessID: r.RequestingProcessID,
				ViewID:    r.RequestingViewID,
				States:    r.States(),
				Devices:   append([]media.StreamDevice(nil), r.Devices...),
			})
		}
	})
	if err != nil {
		return Status{}, err
	}

	st.Loop.LastTask, st.Loop.MaxTask = m.loop.Stats()
	st.AudioSessions = sessions(m.audio)
	st.VideoSessions = sessions(m.video)
	return st, nil
}
