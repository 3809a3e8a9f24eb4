package permission

import (
	"sync"

	"github.com/video-system/go-media-access/pkg/media"
)

// Fake approves every request from its available devices without asking
// anyone. Stop simulates the user ending the stream.
type Fake struct {
	mu      sync.Mutex
	devices []media.Device
	deny    bool
	stops   []func()
	reqs    []media.Request
}

func NewFake() *Fake {
	return &Fake{}
}

// SetDeny makes every later request come back empty
func (f *Fake) SetDeny(deny bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deny = deny
}

func (f *Fake) SetAvailableDevices(devices []media.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append([]media.Device(nil), devices...)
}

func (f *Fake) RequestAccess(req media.Request, cb Callback) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	var selected []media.Device
	if !f.deny {
		selected = SelectDevices(f.devices, req)
	}
	f.mu.Unlock()

	go cb(selected)
}

func (f *Fake) OnStarted(stop func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, stop)
}

// Stop runs every stop function handed over so far
func (f *Fake) Stop() int {
	f.mu.Lock()
	stops := f.stops
	f.stops = nil
	f.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return len(stops)
}

// Requests returns the requests seen so far
func (f *Fake) Requests() []media.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Request(nil), f.reqs...)
}
