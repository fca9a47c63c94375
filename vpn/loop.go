package vpn

import (
	"sync"
	"time"
)

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was still pending.
	Stop() bool
}

// Scheduler arms one-shot timers. The callback runs on an arbitrary
// goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// realScheduler uses the runtime timers.
type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// taskQueue is an unbounded FIFO drained by a single goroutine.
// Posting never blocks.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// post enqueues fn. It reports false once the queue is closed.
func (q *taskQueue) post(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting tasks. Tasks already queued still run.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// run drains the queue until it is closed and empty.
func (q *taskQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, task := range tasks {
			task()
		}

		if len(tasks) == 0 {
			if closed {
				return
			}
			<-q.signal
		}
	}
}
