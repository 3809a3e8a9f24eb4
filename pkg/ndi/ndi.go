// Package ndi discovers NDI sources on the local network. Sources are
// exposed as capture devices by the ndi provider backend.
package ndi

import (
	"errors"
	"time"
)

// ErrNotAvailable is returned when the binary was built without the NDI SDK
var ErrNotAvailable = errors.New("NDI SDK not available - build with -tags ndi")

// DefaultWait bounds one discovery round when the caller has no deadline
const DefaultWait = 2 * time.Second

// Source represents an NDI source on the network
type Source struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// FinderConfig configures NDI source discovery
type FinderConfig struct {
	ShowLocalSources bool   // Include sources on this machine
	Groups           string // NDI groups to search (comma-separated)
	ExtraIPs         string // Additional IPs to search (comma-separated)
}
