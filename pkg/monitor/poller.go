package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
)

// Source lists the ids of the devices currently present
type Source func(ctx context.Context) ([]string, error)

// Poller detects hot-plug by polling device sources. Polling slows down
// while nothing changes and snaps back to the base interval on a change.
type Poller struct {
	observerList

	sources map[DeviceType]Source
	log     logging.LeveledLogger

	mu              sync.RWMutex
	isRunning       bool
	cancel          context.CancelFunc
	done            chan struct{}
	baseInterval    time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration
	noChangeCount   int
	lastChangeTime  time.Time
	fingerprints    map[DeviceType]string

	// Performance tracking
	averageCheckTime time.Duration
	maxCheckTime     time.Duration
	checkCount       int64
}

// NewPoller creates a poller. Zero intervals default to 1s base and 10s max.
func NewPoller(base, ceiling time.Duration) *Poller {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = 10 * base
	}
	return &Poller{
		sources:         make(map[DeviceType]Source),
		log:             ilogging.NewLogger("monitor"),
		baseInterval:    base,
		maxInterval:     ceiling,
		currentInterval: base,
		fingerprints:    make(map[DeviceType]string),
	}
}

// SetSource sets the device source for t. Call before Start.
func (p *Poller) SetSource(t DeviceType, src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[t] = src
}

// Start takes the initial snapshot and begins polling
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("device poller is already running")
	}
	p.isRunning = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	// Baseline only; observers hear about changes after this
	for t, src := range p.snapshotSources() {
		if fp, err := fingerprint(ctx, src); err == nil {
			p.mu.Lock()
			p.fingerprints[t] = fp
			p.mu.Unlock()
		} else {
			p.log.Warnf("initial %s snapshot failed: %v", t, err)
		}
	}

	go p.loop(ctx, done)
	return nil
}

// Stop halts polling and waits for the loop to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// IsRunning returns whether polling is active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// Interval returns the current polling interval
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentInterval
}

// Stats returns device check performance statistics
func (p *Poller) Stats() (avgTime, maxTime time.Duration, checkCount int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.averageCheckTime, p.maxCheckTime, p.checkCount
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.Check(ctx)
			timer.Reset(p.Interval())
		}
	}
}

// Check polls every source once and notifies observers of changed types.
// It returns the types that changed.
func (p *Poller) Check(ctx context.Context) []DeviceType {
	start := time.Now()

	var changed []DeviceType
	for t, src := range p.snapshotSources() {
		fp, err := fingerprint(ctx, src)
		if err != nil {
			p.log.Warnf("%s device check failed: %v", t, err)
			continue
		}

		p.mu.Lock()
		if prev, ok := p.fingerprints[t]; !ok || prev != fp {
			changed = append(changed, t)
		}
		p.fingerprints[t] = fp
		p.mu.Unlock()
	}

	p.updatePerformanceStats(time.Since(start))

	if len(changed) == 0 {
		p.adaptiveSlowdown()
		return nil
	}

	p.adaptiveSpeedup()
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	for _, t := range changed {
		p.log.Debugf("%s devices changed", t)
		p.notify(t)
	}
	return changed
}

func (p *Poller) snapshotSources() map[DeviceType]Source {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[DeviceType]Source, len(p.sources))
	for t, src := range p.sources {
		out[t] = src
	}
	return out
}

func (p *Poller) updatePerformanceStats(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkCount++
	if p.checkCount == 1 {
		p.averageCheckTime = elapsed
	} else {
		p.averageCheckTime = time.Duration(float64(p.averageCheckTime)*0.9 + float64(elapsed)*0.1)
	}
	if elapsed > p.maxCheckTime {
		p.maxCheckTime = elapsed
	}
}

// After 10 quiet checks the interval grows 10% per check up to max
func (p *Poller) adaptiveSlowdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.noChangeCount++
	if p.noChangeCount > 10 {
		next := time.Duration(float64(p.currentInterval) * 1.1)
		if next > p.maxInterval {
			next = p.maxInterval
		}
		p.currentInterval = next
	}
}

func (p *Poller) adaptiveSpeedup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.noChangeCount = 0
	p.lastChangeTime = time.Now()
	p.currentInterval = p.baseInterval
}

func fingerprint(ctx context.Context, src Source) (string, error) {
	ids, err := src(ctx)
	if err != nil {
		return "", err
	}
	ids = append([]string(nil), ids...)
	sort.Strings(ids)
	return strings.Join(ids, "\x00"), nil
}
