//go:build !ndi

package ndi

import "context"

// Initialize always fails without the SDK
func Initialize() error {
	return ErrNotAvailable
}

// IsAvailable reports false without the SDK
func IsAvailable() bool {
	return false
}

// Version reports the missing SDK
func Version() string {
	return "unavailable"
}

// Finder is a placeholder when NDI is not available
type Finder struct{}

// NewFinder returns ErrNotAvailable
func NewFinder(config FinderConfig) (*Finder, error) {
	return nil, ErrNotAvailable
}

func (f *Finder) Close() {}

func (f *Finder) Sources(ctx context.Context) ([]Source, error) {
	return nil, ErrNotAvailable
}
