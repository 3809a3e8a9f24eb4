package mediastream

import (
	"fmt"

	"github.com/google/uuid"
)

// Registry maps labels to live requests. It is not safe for concurrent use;
// the Manager only touches it on the control goroutine.
type Registry struct {
	requests map[string]*DeviceRequest
	order    []string
	newLabel func() string
}

func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[string]*DeviceRequest),
		newLabel: uuid.NewString,
	}
}

// Add stores r under a fresh label
func (reg *Registry) Add(r *DeviceRequest) string {
	label := reg.newLabel()
	for reg.requests[label] != nil {
		label = reg.newLabel()
	}

	reg.requests[label] = r
	reg.order = append(reg.order, label)
	return label
}

// Find returns the request for label, or nil
func (reg *Registry) Find(label string) *DeviceRequest {
	return reg.requests[label]
}

// Remove deletes the request for label
func (reg *Registry) Remove(label string) error {
	if _, ok := reg.requests[label]; !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, label)
	}
	delete(reg.requests, label)

	for i, l := range reg.order {
		if l == label {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
	return nil
}

// Labels returns the live labels in insertion order
func (reg *Registry) Labels() []string {
	return append([]string(nil), reg.order...)
}

// Len returns the number of live requests
func (reg *Registry) Len() int {
	return len(reg.requests)
}
