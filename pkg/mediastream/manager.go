// Package mediastream arbitrates access to capture devices. A Manager owns
// every in-flight device request and drives it from enumeration through the
// permission prompt to opened device sessions and teardown.
//
// All request state lives on one control goroutine. Public methods hand work
// to it and are safe for concurrent use, but must not be called from inside a
// Requester, Observer or AccessCallback, which run on that goroutine.
package mediastream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/internal/taskqueue"
	"github.com/video-system/go-media-access/pkg/deviceid"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/monitor"
	"github.com/video-system/go-media-access/pkg/permission"
	"github.com/video-system/go-media-access/pkg/provider"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrNotRunning        = errors.New("media stream manager is not running")
	ErrAlreadyRunning    = errors.New("media stream manager is already running")
	ErrInvalidMediaType  = errors.New("invalid media type for request")
	ErrRequesterRequired = errors.New("requester is required")
)

// Options configures a Manager
type Options struct {
	AudioProvider provider.DeviceProvider
	VideoProvider provider.DeviceProvider

	// Permission creates the prompt for each request. Defaults to a fake
	// surface that approves everything.
	Permission permission.Factory

	// Notifier reports hot-plug. Without one, device lists are only
	// refreshed by requests.
	Notifier monitor.Notifier
	Observer Observer

	// ResourceContext is used when a caller passes none
	ResourceContext *deviceid.ResourceContext

	// DefaultOutputParameters seed tab audio capture
	DefaultOutputParameters media.AudioParameters

	// SlowTaskThreshold logs control tasks running longer than this
	SlowTaskThreshold time.Duration
}

type enumerationCache struct {
	valid   bool
	devices []media.StreamDevice
}

// Manager is the device request orchestrator
type Manager struct {
	audio        provider.DeviceProvider
	video        provider.DeviceProvider
	notifier     monitor.Notifier
	observer     Observer
	defaultRC    *deviceid.ResourceContext
	outputParams media.AudioParameters

	loop     *taskqueue.Queue
	log      logging.LeveledLogger
	listener *providerListener
	devices  *deviceObserver

	lifecycleMu sync.Mutex
	running     bool

	// Control goroutine only
	requests          *Registry
	audioCache        enumerationCache
	videoCache        enumerationCache
	activeEnumeration [media.NumMediaTypes]int
	monitoring        bool
	surfaceFactory    permission.Factory
	useFakeUI         bool
}

// NewManager creates a stopped Manager
func NewManager(opts Options) (*Manager, error) {
	if opts.AudioProvider == nil || opts.VideoProvider == nil {
		return nil, fmt.Errorf("audio and video providers are required")
	}

	m := &Manager{
		audio:          opts.AudioProvider,
		video:          opts.VideoProvider,
		notifier:       opts.Notifier,
		observer:       opts.Observer,
		defaultRC:      opts.ResourceContext,
		outputParams:   opts.DefaultOutputParameters,
		loop:           taskqueue.New("mediastream"),
		log:            ilogging.NewLogger("mediastream"),
		requests:       NewRegistry(),
		surfaceFactory: opts.Permission,
	}
	m.listener = &providerListener{m: m}
	m.devices = &deviceObserver{m: m}

	if m.surfaceFactory == nil {
		m.log.Warn("no permission surface configured, every request is approved")
		m.surfaceFactory = func() permission.Surface { return permission.NewFake() }
	}

	threshold := opts.SlowTaskThreshold
	if threshold <= 0 {
		threshold = 100 * time.Millisecond
	}
	m.loop.OnSlowTask(threshold, func(name string, d time.Duration) {
		m.log.Warnf("%s task took %v", name, d)
	})

	return m, nil
}

// Start runs the control goroutine and registers with both providers
func (m *Manager) Start() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	if err := m.loop.Start(); err != nil {
		return fmt.Errorf("start control loop: %w", err)
	}
	if err := m.audio.Register(m.listener); err != nil {
		m.loop.Stop()
		return fmt.Errorf("register audio provider: %w", err)
	}
	if err := m.video.Register(m.listener); err != nil {
		m.audio.Unregister()
		m.loop.Stop()
		return fmt.Errorf("register video provider: %w", err)
	}

	m.running = true
	m.log.Info("media stream manager started")
	return nil
}

// Stop cancels every live request, stops monitoring, unregisters the
// providers and stops the control goroutine.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	m.loop.Call(func() {
		for _, label := range m.requests.Labels() {
			m.cancelRequest(label)
		}
		m.stopMonitoring()
	})

	m.audio.Unregister()
	m.video.Unregister()
	m.loop.Stop()
	<-m.loop.Done()

	m.log.Info("media stream manager stopped")
}

// IsRunning returns whether the manager accepts requests
func (m *Manager) IsRunning() bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.running
}

// UseFakeUI replaces the permission surface for every later request. A nil
// factory installs the approve-all fake.
func (m *Manager) UseFakeUI(factory permission.Factory) error {
	if factory == nil {
		factory = func() permission.Surface { return permission.NewFake() }
	}
	apply := func() {
		m.useFakeUI = true
		m.surfaceFactory = factory
	}

	m.lifecycleMu.Lock()
	if !m.running {
		apply()
		m.lifecycleMu.Unlock()
		return nil
	}
	m.lifecycleMu.Unlock()

	return m.call(apply)
}

// GenerateStream asks for live sessions on the requested devices. The
// result arrives as StreamGenerated or StreamGenerationFailed.
func (m *Manager) GenerateStream(requester Requester, processID, viewID int, rc *deviceid.ResourceContext,
	pageRequestID int, opts media.StreamOptions, origin string) (string, error) {
	if requester == nil {
		return "", ErrRequesterRequired
	}

	req := media.Request{
		RenderProcessID:        processID,
		RenderViewID:           viewID,
		PageRequestID:          pageRequestID,
		SecurityOrigin:         origin,
		Type:                   media.GenerateStream,
		RequestedAudioDeviceID: opts.AudioDeviceID,
		RequestedVideoDeviceID: opts.VideoDeviceID,
		AudioType:              opts.AudioType,
		VideoType:              opts.VideoType,
	}

	return m.addRequest(newDeviceRequest(requester, req, m.resourceContext(rc)), m.setupRequest)
}

// OpenDevice asks for a single device session. The result arrives as
// DeviceOpened or StreamGenerationFailed.
func (m *Manager) OpenDevice(requester Requester, processID, viewID int, rc *deviceid.ResourceContext,
	pageRequestID int, deviceID string, t media.MediaType, origin string) (string, error) {
	if requester == nil {
		return "", ErrRequesterRequired
	}

	req := media.Request{
		RenderProcessID: processID,
		RenderViewID:    viewID,
		PageRequestID:   pageRequestID,
		SecurityOrigin:  origin,
		Type:            media.OpenDevice,
	}
	switch t {
	case media.DeviceAudioCapture:
		req.AudioType = t
		req.RequestedAudioDeviceID = deviceID
	case media.DeviceVideoCapture:
		req.VideoType = t
		req.RequestedVideoDeviceID = deviceID
	default:
		return "", fmt.Errorf("%w: open %s", ErrInvalidMediaType, t)
	}

	return m.addRequest(newDeviceRequest(requester, req, m.resourceContext(rc)), m.setupRequest)
}

// EnumerateDevices subscribes requester to the device list of type t. The
// list arrives as DevicesEnumerated now and again whenever it changes,
// until the request is cancelled.
func (m *Manager) EnumerateDevices(requester Requester, processID, viewID int, rc *deviceid.ResourceContext,
	pageRequestID int, t media.MediaType, origin string) (string, error) {
	if requester == nil {
		return "", ErrRequesterRequired
	}

	req := media.Request{
		RenderProcessID: processID,
		RenderViewID:    viewID,
		PageRequestID:   pageRequestID,
		SecurityOrigin:  origin,
		Type:            media.EnumerateDevices,
	}
	switch t {
	case media.DeviceAudioCapture:
		req.AudioType = t
	case media.DeviceVideoCapture:
		req.VideoType = t
	default:
		return "", fmt.Errorf("%w: enumerate %s", ErrInvalidMediaType, t)
	}

	return m.addRequest(newDeviceRequest(requester, req, m.resourceContext(rc)), m.doEnumerateDevices)
}

// MakeMediaAccessRequest asks the permission surface which devices may be
// used without opening any. cb always runs, with an empty list on failure.
func (m *Manager) MakeMediaAccessRequest(processID, viewID, pageRequestID int, opts media.StreamOptions,
	origin string, cb AccessCallback) (string, error) {
	req := media.Request{
		RenderProcessID: processID,
		RenderViewID:    viewID,
		PageRequestID:   pageRequestID,
		SecurityOrigin:  origin,
		Type:            media.DeviceAccess,
		AudioType:       opts.AudioType,
		VideoType:       opts.VideoType,
	}

	r := newDeviceRequest(nil, req, m.defaultRC)
	r.Callback = cb
	return m.addRequest(r, m.setupRequest)
}

// CancelRequest closes the request's sessions and forgets it
func (m *Manager) CancelRequest(label string) error {
	var found bool
	err := m.call(func() {
		found = m.requests.Find(label) != nil
		m.cancelRequest(label)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, label)
	}
	return nil
}

// CancelAllRequests cancels every request made by processID. It returns
// how many were cancelled.
func (m *Manager) CancelAllRequests(processID int) (int, error) {
	var n int
	err := m.call(func() { n = m.cancelAllRequests(processID) })
	return n, err
}

// StopStreamDevice stops the first generated stream device of the caller
// view with the given source id.
func (m *Manager) StopStreamDevice(processID, viewID int, deviceID string) (bool, error) {
	var stopped bool
	err := m.call(func() { stopped = m.stopStreamDevice(processID, viewID, deviceID) })
	return stopped, err
}

// StopDevice stops a session and drops it from every request
func (m *Manager) StopDevice(t media.MediaType, sessionID int) error {
	return m.call(func() { m.stopDevice(t, sessionID) })
}

// CloseDevice closes a session and marks its requests as closing
func (m *Manager) CloseDevice(t media.MediaType, sessionID int) error {
	return m.call(func() { m.closeDevice(t, sessionID) })
}

// StopMediaStreamFromBrowser tells the requester every device of label
// stopped, then cancels it. It is handed to permission surfaces and may be
// called from any goroutine.
func (m *Manager) StopMediaStreamFromBrowser(label string) {
	if !m.loop.Post(func() { m.stopMediaStreamFromBrowser(label) }) {
		m.log.Debugf("StopMediaStreamFromBrowser({label = %s}) after stop", label)
	}
}

// GetDevicesOpenedByRequest returns the request's device list
func (m *Manager) GetDevicesOpenedByRequest(label string) ([]media.StreamDevice, error) {
	var (
		devices []media.StreamDevice
		found   bool
	)
	err := m.call(func() {
		if r := m.requests.Find(label); r != nil {
			found = true
			devices = append([]media.StreamDevice(nil), r.Devices...)
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, label)
	}
	return devices, nil
}

// addRequest registers r and schedules next in one control task, so a
// request is never left behind when the loop stops in between. next waits
// until addRequest has returned the label.
func (m *Manager) addRequest(r *DeviceRequest, next func(label string)) (string, error) {
	ready := make(chan struct{})
	defer close(ready)

	var (
		label  string
		posted bool
	)
	err := m.call(func() {
		label = m.requests.Add(r)
		posted = m.loop.Post(func() {
			<-ready
			next(label)
		})
		if !posted {
			m.requests.Remove(label)
		}
	})
	if err != nil {
		return "", err
	}
	if !posted {
		return "", ErrNotRunning
	}
	return label, nil
}

func (m *Manager) call(fn func()) error {
	if !m.loop.Call(fn) {
		return ErrNotRunning
	}
	return nil
}

func (m *Manager) resourceContext(rc *deviceid.ResourceContext) *deviceid.ResourceContext {
	if rc == nil {
		return m.defaultRC
	}
	return rc
}

func (m *Manager) providerFor(t media.MediaType) provider.DeviceProvider {
	if t.IsVideo() {
		return m.video
	}
	return m.audio
}

func (m *Manager) cacheFor(t media.MediaType) *enumerationCache {
	if t == media.DeviceAudioCapture {
		return &m.audioCache
	}
	return &m.videoCache
}
