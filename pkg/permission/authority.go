package permission

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/media"
)

// Decision is a stored per-origin answer
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// ParseDecision accepts allow/grant and deny/block
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "grant", "granted":
		return Allow, nil
	case "deny", "block", "denied":
		return Deny, nil
	}
	return "", fmt.Errorf("unknown permission decision: %q", s)
}

// Store persists decisions per origin
type Store interface {
	Get(origin string) (Decision, bool)
	Set(origin string, d Decision)
	Delete(origin string)
	All() map[string]Decision
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[string]Decision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[string]Decision)}
}

func (s *MemoryStore) Get(origin string) (Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[origin]
	return d, ok
}

func (s *MemoryStore) Set(origin string, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[origin] = d
}

func (s *MemoryStore) Delete(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decisions, origin)
}

func (s *MemoryStore) All() map[string]Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Decision, len(s.decisions))
	for k, v := range s.decisions {
		out[k] = v
	}
	return out
}

// Authority answers prompts from stored decisions and can revoke streams
// it granted.
type Authority struct {
	store    Store
	fallback Decision
	log      logging.LeveledLogger

	mu      sync.Mutex
	started map[string]map[*policySurface]func()
}

// NewAuthority creates an authority that applies fallback to origins with
// no stored decision.
func NewAuthority(store Store, fallback Decision) *Authority {
	if store == nil {
		store = NewMemoryStore()
	}
	if fallback == "" {
		fallback = Deny
	}
	return &Authority{
		store:    store,
		fallback: fallback,
		log:      ilogging.NewLogger("permission"),
		started:  make(map[string]map[*policySurface]func()),
	}
}

// Store returns the backing decision store
func (a *Authority) Store() Store {
	return a.store
}

// NewSurface is a Factory
func (a *Authority) NewSurface() Surface {
	return &policySurface{authority: a}
}

// Decide returns the effective decision for origin
func (a *Authority) Decide(origin string) Decision {
	if d, ok := a.store.Get(origin); ok {
		return d
	}
	return a.fallback
}

// Grant stores an allow decision for origin
func (a *Authority) Grant(origin string) {
	a.store.Set(origin, Allow)
}

// Revoke denies origin from now on and stops its running streams. It
// returns the number of streams stopped.
func (a *Authority) Revoke(origin string) int {
	a.store.Set(origin, Deny)

	a.mu.Lock()
	running := a.started[origin]
	delete(a.started, origin)
	a.mu.Unlock()

	for _, stop := range running {
		stop()
	}

	a.log.Infof("revoked %s, stopped %d streams", origin, len(running))
	return len(running)
}

// Running lists origins with live streams and their stream counts
func (a *Authority) Running() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.started))
	for origin, s := range a.started {
		out[origin] = len(s)
	}
	return out
}

// Origins lists origins with stored decisions
func (a *Authority) Origins() []string {
	all := a.store.All()
	origins := make([]string, 0, len(all))
	for origin := range all {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

func (a *Authority) track(origin string, s *policySurface, stop func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started[origin] == nil {
		a.started[origin] = make(map[*policySurface]func())
	}
	a.started[origin][s] = stop
}

func (a *Authority) untrack(origin string, s *policySurface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.started[origin], s)
	if len(a.started[origin]) == 0 {
		delete(a.started, origin)
	}
}

type policySurface struct {
	authority *Authority

	mu      sync.Mutex
	devices []media.Device
	origin  string
}

func (s *policySurface) SetAvailableDevices(devices []media.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append([]media.Device(nil), devices...)
}

func (s *policySurface) RequestAccess(req media.Request, cb Callback) {
	s.mu.Lock()
	s.origin = req.SecurityOrigin
	devices := s.devices
	s.mu.Unlock()

	var selected []media.Device
	if s.authority.Decide(req.SecurityOrigin) == Allow {
		selected = SelectDevices(devices, req)
	} else {
		s.authority.log.Debugf("denied %s for %s", req.Type, req.SecurityOrigin)
	}

	go cb(selected)
}

func (s *policySurface) OnStarted(stop func()) {
	s.mu.Lock()
	origin := s.origin
	s.mu.Unlock()
	s.authority.track(origin, s, stop)
}

func (s *policySurface) Release() {
	s.mu.Lock()
	origin := s.origin
	s.mu.Unlock()
	s.authority.untrack(origin, s)
}
