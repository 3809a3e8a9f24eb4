//go:build ndi

package ndi

/*
#cgo darwin LDFLAGS: -L/Library/NDI\ SDK\ for\ Apple/lib/macOS -lndi
#cgo linux LDFLAGS: -L/usr/lib -lndi
#cgo windows LDFLAGS: -L"C:/Program Files/NDI/NDI 5 SDK/Lib/x64" -lProcessing.NDI.Lib.x64

#include <stdlib.h>
#include <stdbool.h>
#include <stdint.h>

typedef struct NDIlib_source_t {
    const char* p_ndi_name;
    const char* p_url_address;
} NDIlib_source_t;

typedef struct NDIlib_find_create_t {
    bool show_local_sources;
    const char* p_groups;
    const char* p_extra_ips;
} NDIlib_find_create_t;

typedef void* NDIlib_find_instance_t;

extern bool NDIlib_initialize(void);
extern const char* NDIlib_version(void);

extern NDIlib_find_instance_t NDIlib_find_create_v2(const NDIlib_find_create_t* p_create_settings);
extern void NDIlib_find_destroy(NDIlib_find_instance_t p_instance);
extern bool NDIlib_find_wait_for_sources(NDIlib_find_instance_t p_instance, uint32_t timeout_in_ms);
extern const NDIlib_source_t* NDIlib_find_get_current_sources(NDIlib_find_instance_t p_instance, uint32_t* p_no_sources);
*/
import "C"

import (
	"context"
	"errors"
	"sync"
	"time"
	"unsafe"
)

var (
	initOnce  sync.Once
	initError error
)

// Initialize loads the NDI runtime once
func Initialize() error {
	initOnce.Do(func() {
		if !C.NDIlib_initialize() {
			initError = errors.New("failed to initialize NDI SDK - ensure NDI runtime is installed")
		}
	})
	return initError
}

// IsAvailable checks if the NDI runtime can be initialized
func IsAvailable() bool {
	return Initialize() == nil
}

// Version returns the NDI SDK version string
func Version() string {
	if err := Initialize(); err != nil {
		return "unknown (not initialized)"
	}
	return C.GoString(C.NDIlib_version())
}

// Finder keeps an NDI discovery instance alive. Sources show up
// asynchronously, so one finder should be reused across enumerations.
type Finder struct {
	mu       sync.Mutex
	instance C.NDIlib_find_instance_t
}

// NewFinder creates a source finder
func NewFinder(config FinderConfig) (*Finder, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	var settings C.NDIlib_find_create_t
	settings.show_local_sources = C.bool(config.ShowLocalSources)
	if config.Groups != "" {
		settings.p_groups = C.CString(config.Groups)
		defer C.free(unsafe.Pointer(settings.p_groups))
	}
	if config.ExtraIPs != "" {
		settings.p_extra_ips = C.CString(config.ExtraIPs)
		defer C.free(unsafe.Pointer(settings.p_extra_ips))
	}

	instance := C.NDIlib_find_create_v2(&settings)
	if instance == nil {
		return nil, errors.New("failed to create NDI finder")
	}
	return &Finder{instance: instance}, nil
}

// Close releases the finder
func (f *Finder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.instance != nil {
		C.NDIlib_find_destroy(f.instance)
		f.instance = nil
	}
}

// Sources waits for the source list to change, bounded by the context
// deadline or DefaultWait, and returns what is currently visible.
func (f *Finder) Sources(ctx context.Context) ([]Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.instance == nil {
		return nil, errors.New("finder closed")
	}

	wait := DefaultWait
	if deadline, ok := ctx.Deadline(); ok {
		if wait = time.Until(deadline); wait < 0 {
			return nil, ctx.Err()
		}
	}
	C.NDIlib_find_wait_for_sources(f.instance, C.uint32_t(wait.Milliseconds()))

	var n C.uint32_t
	cSources := C.NDIlib_find_get_current_sources(f.instance, &n)
	if n == 0 || cSources == nil {
		return nil, nil
	}

	sources := make([]Source, 0, int(n))
	for _, cs := range unsafe.Slice(cSources, int(n)) {
		sources = append(sources, Source{
			Name:    C.GoString(cs.p_ndi_name),
			Address: C.GoString(cs.p_url_address),
		})
	}
	return sources, nil
}
