// Package provider runs capture device backends on a dedicated device
// operations goroutine and reports their results asynchronously.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/internal/taskqueue"
	"github.com/video-system/go-media-access/pkg/media"
)

var (
	ErrUnknownBackend    = errors.New("unknown device backend")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrAlreadyRegistered = errors.New("provider already has a listener")
)

// Listener receives provider results. Methods are called on the provider's
// device goroutine and must not block.
type Listener interface {
	Opened(t media.MediaType, sessionID int, params media.AudioParameters)
	Closed(t media.MediaType, sessionID int)
	DevicesEnumerated(t media.MediaType, devices []media.StreamDevice)
	Error(t media.MediaType, sessionID int, err error)
}

// DeviceProvider is what the orchestrator consumes
type DeviceProvider interface {
	Register(l Listener) error
	Unregister()

	// EnumerateDevices always yields exactly one DevicesEnumerated
	EnumerateDevices(t media.MediaType)
	// Open allocates the session id synchronously and yields Opened or Error
	Open(d media.Device) int
	Close(sessionID int)
}

// Backend performs the blocking device work
type Backend interface {
	Name() string
	Enumerate(ctx context.Context, t media.MediaType) ([]media.Device, error)
	Open(ctx context.Context, d media.Device) (media.AudioParameters, error)
	Close(ctx context.Context, d media.Device) error
}

// Provider adapts a Backend to DeviceProvider
type Provider struct {
	name    string
	backend Backend
	queue   *taskqueue.Queue
	log     logging.LeveledLogger

	mu       sync.Mutex
	listener Listener
	ctx      context.Context
	cancel   context.CancelFunc
	nextID   int
	sessions map[int]media.StreamDevice
}

// New creates a provider named name (used in logs) around backend
func New(name string, backend Backend) *Provider {
	return &Provider{
		name:     name,
		backend:  backend,
		queue:    taskqueue.New(name + "-devices"),
		log:      ilogging.NewLogger("provider"),
		sessions: make(map[int]media.StreamDevice),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Register attaches the listener and starts the device goroutine
func (p *Provider) Register(l Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		return ErrAlreadyRegistered
	}
	if err := p.queue.Start(); err != nil {
		return fmt.Errorf("start %s provider: %w", p.name, err)
	}

	p.listener = l
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return nil
}

// Unregister drains queued work, closes leftover sessions and stops the
// device goroutine. The listener receives nothing afterwards.
func (p *Provider) Unregister() {
	p.queue.Call(func() {})

	p.mu.Lock()
	p.listener = nil
	leftover := p.sessions
	p.sessions = make(map[int]media.StreamDevice)
	ctx, cancel := p.ctx, p.cancel
	p.mu.Unlock()

	for id, sd := range leftover {
		if isVirtual(sd.Device.Type) {
			continue
		}
		if err := p.backend.Close(ctx, sd.Device); err != nil {
			p.log.Warnf("%s: close session %d on unregister: %v", p.name, id, err)
		}
	}

	p.queue.Stop()
	if cancel != nil {
		cancel()
	}
}

// EnumerateDevices lists devices of type t on the device goroutine. A
// backend failure is reported as an empty list.
func (p *Provider) EnumerateDevices(t media.MediaType) {
	posted := p.queue.Post(func() {
		devices, err := p.backend.Enumerate(p.context(), t)
		if err != nil {
			p.log.Warnf("%s: enumerate %s: %v", p.name, t, err)
			devices = nil
		}

		list := make([]media.StreamDevice, 0, len(devices))
		for _, d := range devices {
			d.Type = t
			list = append(list, media.StreamDevice{Device: d})
		}

		if l := p.currentListener(); l != nil {
			l.DevicesEnumerated(t, list)
		}
	})
	if !posted {
		p.log.Warnf("%s: enumerate %s dropped, provider not registered", p.name, t)
	}
}

// Open allocates a session for d and opens it on the device goroutine
func (p *Provider) Open(d media.Device) int {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.sessions[id] = media.StreamDevice{Device: d, SessionID: id}
	p.mu.Unlock()

	posted := p.queue.Post(func() {
		var (
			params media.AudioParameters
			err    error
		)
		if !isVirtual(d.Type) {
			params, err = p.backend.Open(p.context(), d)
		}

		l := p.currentListener()
		if err != nil {
			p.log.Warnf("%s: open %s %q: %v", p.name, d.Type, d.ID, err)
			p.mu.Lock()
			delete(p.sessions, id)
			p.mu.Unlock()
			if l != nil {
				l.Error(d.Type, id, err)
			}
			return
		}
		if l != nil {
			l.Opened(d.Type, id, params)
		}
	})
	if !posted {
		p.log.Warnf("%s: open %q dropped, provider not registered", p.name, d.ID)
	}

	return id
}

// Close releases the session. Unknown ids are ignored.
func (p *Provider) Close(sessionID int) {
	p.queue.Post(func() {
		p.mu.Lock()
		sd, ok := p.sessions[sessionID]
		delete(p.sessions, sessionID)
		p.mu.Unlock()

		if !ok {
			return
		}

		if !isVirtual(sd.Device.Type) {
			if err := p.backend.Close(p.context(), sd.Device); err != nil {
				p.log.Warnf("%s: close session %d: %v", p.name, sessionID, err)
			}
		}

		if l := p.currentListener(); l != nil {
			l.Closed(sd.Device.Type, sessionID)
		}
	})
}

// Sessions returns the number of live sessions
func (p *Provider) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Provider) currentListener() Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listener
}

func (p *Provider) context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// Tab, desktop and loopback captures have no physical device behind them.
func isVirtual(t media.MediaType) bool {
	return t != media.DeviceAudioCapture && t != media.DeviceVideoCapture
}
