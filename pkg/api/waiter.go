package api

import (
	"github.com/video-system/go-media-access/pkg/media"
)

type outcome struct {
	failed  bool
	audio   []media.StreamDevice
	video   []media.StreamDevice
	device  media.StreamDevice
	devices []media.StreamDevice
}

// waiter is the requester for a single HTTP request. Only the first result
// is kept; later ones, such as device list updates, are dropped because the
// manager must never block on a requester.
type waiter struct {
	results chan outcome
}

func newWaiter() *waiter {
	return &waiter{results: make(chan outcome, 1)}
}

func (w *waiter) deliver(o outcome) {
	select {
	case w.results <- o:
	default:
	}
}

func (w *waiter) StreamGenerated(label string, audio, video []media.StreamDevice) {
	w.deliver(outcome{audio: audio, video: video})
}

func (w *waiter) StreamGenerationFailed(label string) {
	w.deliver(outcome{failed: true})
}

func (w *waiter) DeviceOpened(label string, device media.StreamDevice) {
	w.deliver(outcome{device: device})
}

func (w *waiter) DevicesEnumerated(label string, devices []media.StreamDevice) {
	w.deliver(outcome{devices: devices})
}

// Streams outlive their HTTP request, so stops are not reported here
func (w *waiter) DeviceStopped(viewID int, label string, device media.StreamDevice) {}
