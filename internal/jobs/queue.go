// Package jobs runs background work, one job at a time, in FIFO order.
//
// The queue is unbounded so callers never block on Enqueue. A single
// goroutine drains it in Run. A failing job is logged and the loop moves on.
package jobs

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is a unit of background work.
type Job interface {
	// Name identifies the job in logs.
	Name() string
	Run(ctx context.Context) error
}

// Func adapts a function into a Job.
type Func struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name implements Job.
func (f Func) Name() string { return f.JobName }

// Run implements Job.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Queue is a thread-safe FIFO of jobs with a single worker.
//
// Thread-safety model:
//   - Enqueue(), Len(), Close(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
	log    log.FieldLogger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(q *Queue) { q.log = l }
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		jobs:   make([]Job, 0, 16),
		signal: make(chan struct{}, 1),
		log:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front job without blocking.
func (q *Queue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	j := q.jobs[0]
	q.jobs[0] = nil // release for GC
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs. Run drains what is already queued and returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Run processes jobs until ctx is cancelled or the queue is closed and
// drained. Job errors are logged, never returned.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Debug("job runner starting")

	for {
		if j, ok := q.TryDequeue(); ok {
			q.runJob(ctx, j)
			continue
		}

		select {
		case <-ctx.Done():
			q.log.Debug("job runner stopping: context cancelled")
			q.Close()
			return ctx.Err()
		case <-q.signal:
			// A closed signal channel fires immediately.
			q.mu.Lock()
			done := q.closed && len(q.jobs) == 0
			q.mu.Unlock()
			if done {
				q.log.Debug("job runner stopping: queue closed")
				return nil
			}
		}
	}
}

func (q *Queue) runJob(ctx context.Context, j Job) {
	entry := q.log.WithField("job", j.Name())
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("job panicked")
		}
	}()

	if err := j.Run(ctx); err != nil {
		entry.WithField("err", err).Error("job failed")
		return
	}
	entry.Debug("job finished")
}
