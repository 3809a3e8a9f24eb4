package taskqueue

import (
	"fmt"
	"sync"
	"time"
)

// Queue runs posted tasks one at a time, in post order, on a single goroutine.
// Post never blocks, so a task may post follow-up work onto its own queue.
type Queue struct {
	name string

	mu        sync.Mutex
	tasks     []func()
	isRunning bool
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}

	// Performance tracking
	statsMu          sync.RWMutex
	lastTaskDuration time.Duration
	maxTaskDuration  time.Duration
	slowThreshold    time.Duration
	onSlowTask       func(name string, d time.Duration)
}

// New creates a stopped queue
func New(name string) *Queue {
	return &Queue{
		name:          name,
		slowThreshold: 100 * time.Millisecond,
	}
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.name
}

// OnSlowTask sets a callback invoked when a task runs longer than threshold
func (q *Queue) OnSlowTask(threshold time.Duration, fn func(name string, d time.Duration)) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	q.slowThreshold = threshold
	q.onSlowTask = fn
}

// Start begins the run loop
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isRunning {
		return fmt.Errorf("queue %s is already running", q.name)
	}

	q.isRunning = true
	q.tasks = nil
	q.wake = make(chan struct{}, 1)
	q.quit = make(chan struct{})
	q.done = make(chan struct{})
	go q.loop(q.wake, q.quit, q.done)

	return nil
}

// Stop halts the run loop after the task in progress. Pending tasks are
// dropped. Stop is idempotent and does not wait for the loop to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return
	}

	close(q.quit)
	q.isRunning = false
	q.tasks = nil
}

// Done returns a channel closed once the run loop has exited
func (q *Queue) Done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return q.done
}

// IsRunning returns whether the queue accepts tasks
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isRunning
}

// Post appends fn to the queue. It reports false if the queue is stopped.
func (q *Queue) Post(fn func()) bool {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	wake := q.wake
	q.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits until it has run. It reports false if the queue
// stopped before fn ran. Call must not be used from a task on the same queue.
func (q *Queue) Call(fn func()) bool {
	ran := make(chan struct{})
	if !q.Post(func() {
		fn()
		close(ran)
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-q.Done():
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Stats returns the duration of the last task and the slowest task seen
func (q *Queue) Stats() (last, max time.Duration) {
	q.statsMu.RLock()
	defer q.statsMu.RUnlock()
	return q.lastTaskDuration, q.maxTaskDuration
}

func (q *Queue) loop(wake, quit, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			return
		case <-wake:
		}

		for {
			select {
			case <-quit:
				return
			default:
			}

			q.mu.Lock()
			if len(q.tasks) == 0 {
				q.mu.Unlock()
				break
			}
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()

			q.run(task)
		}
	}
}

func (q *Queue) run(task func()) {
	start := time.Now()
	task()
	elapsed := time.Since(start)

	q.statsMu.Lock()
	q.lastTaskDuration = elapsed
	if elapsed > q.maxTaskDuration {
		q.maxTaskDuration = elapsed
	}
	threshold, onSlow := q.slowThreshold, q.onSlowTask
	q.statsMu.Unlock()

	if onSlow != nil && elapsed > threshold {
		onSlow(q.name, elapsed)
	}
}
