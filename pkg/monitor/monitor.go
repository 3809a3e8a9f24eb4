// Package monitor reports capture device hot-plug to observers
package monitor

import "sync"

// DeviceType is the class of device that changed
type DeviceType int

const (
	AudioCapture DeviceType = iota
	VideoCapture
)

func (t DeviceType) String() string {
	switch t {
	case AudioCapture:
		return "audio_capture"
	case VideoCapture:
		return "video_capture"
	default:
		return "unknown"
	}
}

// Observer is told that a device list may have changed. It is called on
// the notifier's goroutine and must not block.
type Observer interface {
	OnDevicesChanged(t DeviceType)
}

// Notifier is a system device-change source
type Notifier interface {
	AddObserver(o Observer)
	RemoveObserver(o Observer)
}

// observerList is embedded by notifiers
type observerList struct {
	mu        sync.RWMutex
	observers []Observer
}

func (l *observerList) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, have := range l.observers {
		if have == o {
			return
		}
	}
	l.observers = append(l.observers, o)
}

func (l *observerList) RemoveObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, have := range l.observers {
		if have == o {
			l.observers = append(l.observers[:i], l.observers[i+1:]...)
			return
		}
	}
}

// ObserverCount returns the number of registered observers
func (l *observerList) ObserverCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.observers)
}

func (l *observerList) notify(t DeviceType) {
	l.mu.RLock()
	observers := append([]Observer(nil), l.observers...)
	l.mu.RUnlock()

	for _, o := range observers {
		o.OnDevicesChanged(t)
	}
}

// Synthetic is a Notifier driven by hand
type Synthetic struct {
	observerList
}

func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Notify tells every observer that t changed
func (s *Synthetic) Notify(t DeviceType) {
	s.notify(t)
}
