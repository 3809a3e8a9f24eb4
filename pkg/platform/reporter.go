package platform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/media"
)

// Reporter forwards device and request changes to the platform. Its observer
// methods only queue work, so it can be handed to the media stream manager
// directly; Run does the HTTP calls.
type Reporter struct {
	client *Client
	log    logging.LeveledLogger

	mu      sync.RWMutex
	agentID string

	events  chan func(ctx context.Context) error
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewReporter creates a reporter that buffers up to buffer pending events
func NewReporter(client *Client, agentID string, buffer int) *Reporter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Reporter{
		client:  client,
		agentID: agentID,
		log:     ilogging.NewLogger("platform"),
		events:  make(chan func(ctx context.Context) error, buffer),
	}
}

// SetAgentID replaces the id sent with later events and heartbeats, e.g.
// once the platform has confirmed a registration.
func (r *Reporter) SetAgentID(id string) {
	r.mu.Lock()
	r.agentID = id
	r.mu.Unlock()
}

// AgentID returns the id sent with events
func (r *Reporter) AgentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agentID
}

func (r *Reporter) OnAudioCaptureDevicesChanged(devices []media.Device) {
	r.devicesChanged(media.DeviceAudioCapture, devices)
}

func (r *Reporter) OnVideoCaptureDevicesChanged(devices []media.Device) {
	r.devicesChanged(media.DeviceVideoCapture, devices)
}

func (r *Reporter) OnMediaRequestStateChanged(processID, viewID, pageRequestID int, device media.Device, state media.RequestState) {
	n := RequestStateChanged{
		AgentID:       r.AgentID(),
		ProcessID:     processID,
		ViewID:        viewID,
		PageRequestID: pageRequestID,
		Device:        device,
		State:         state,
		Timestamp:     time.Now().UnixMilli(),
	}
	r.enqueue(func(ctx context.Context) error {
		return r.client.NotifyRequestState(ctx, n)
	})
}

func (r *Reporter) devicesChanged(t media.MediaType, devices []media.Device) {
	n := DevicesChanged{
		AgentID:   r.AgentID(),
		Type:      t,
		Devices:   append([]media.Device(nil), devices...),
		Timestamp: time.Now().UnixMilli(),
	}
	r.enqueue(func(ctx context.Context) error {
		return r.client.NotifyDevicesChanged(ctx, n)
	})
}

func (r *Reporter) enqueue(fn func(ctx context.Context) error) {
	select {
	case r.events <- fn:
	default:
		r.dropped.Add(1)
		r.log.Warn("platform event queue full, dropping event")
	}
}

// Run sends queued events and, if interval > 0, a heartbeat built by status
// every interval. It returns when ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration, status func() Heartbeat) {
	var tick <-chan time.Time
	if interval > 0 && status != nil {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-r.events:
			if err := fn(ctx); err != nil {
				r.log.Warnf("platform event: %v", err)
				continue
			}
			r.sent.Add(1)
		case <-tick:
			if err := r.client.SendHeartbeat(ctx, r.AgentID(), status()); err != nil {
				r.log.Warnf("platform heartbeat: %v", err)
			}
		}
	}
}

// Stats returns how many events were sent and dropped
func (r *Reporter) Stats() (sent, dropped int64) {
	return r.sent.Load(), r.dropped.Load()
}
