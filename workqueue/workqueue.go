// Package workqueue runs deferred driver work on a dedicated goroutine. Interrupt handlers must not
// block, so they queue a Work item here and the work does the bus I/O.
package workqueue

import (
	"context"
	"sync"

	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/utils"
)

// A Queue executes queued work one item at a time, in queue order, on a single goroutine.
type Queue struct {
	name    string
	logger  logging.Logger
	workers utils.StoppableWorkers
	kick    chan struct{}

	mu        sync.Mutex
	idle      *sync.Cond
	pending   []*Work
	active    int
	destroyed bool
}

// NewQueue starts a single-threaded queue.
func NewQueue(name string, logger logging.Logger) *Queue {
	q := &Queue{
		name:   name,
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	q.workers = utils.NewStoppableWorkers(q.run)
	return q
}

// Name returns the queue's name.
func (q *Queue) Name() string {
	return q.name
}

// NewWork returns a work item bound to this queue. `fn` receives a context that is canceled when
// the work is canceled with CancelSync or the queue is destroyed.
func (q *Queue) NewWork(fn func(ctx context.Context)) *Work {
	return &Work{q: q, fn: fn}
}

// Flush waits until every work item queued before the call, and anything they queue, has run.
// It must not be called from inside a work function of the same queue.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 || q.active > 0 {
		q.idle.Wait()
	}
}

// Destroy flushes the queue, rejects further work and stops the goroutine.
func (q *Queue) Destroy() {
	q.mu.Lock()
	q.destroyed = true
	q.mu.Unlock()
	q.Flush()
	q.workers.Stop()
}

func (q *Queue) enqueue(w *Work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(w)
}

func (q *Queue) enqueueLocked(w *Work) bool {
	if q.destroyed || w.pending {
		return false
	}
	w.pending = true
	q.pending = append(q.pending, w)
	select {
	case q.kick <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.kick:
		}
		for {
			w, runCtx := q.next(ctx)
			if w == nil {
				break
			}
			w.fn(runCtx)
			q.finish(w)
		}
	}
}

func (q *Queue) next(ctx context.Context) (*Work, context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	w := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	runCtx, cancel := context.WithCancel(ctx)
	w.pending = false
	w.running = true
	w.cancelRun = cancel
	q.active++
	return w, runCtx
}

func (q *Queue) finish(w *Work) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w.cancelRun()
	w.cancelRun = nil
	w.running = false
	q.active--
	q.idle.Broadcast()
}

// A Work is a unit of deferred work. Queueing a Work that is already pending is a no-op, so any
// number of interrupts before the worker runs collapse into one execution. A Work that is running
// may be queued again; it then runs once more afterwards.
type Work struct {
	q  *Queue
	fn func(ctx context.Context)

	// Guarded by q.mu.
	pending   bool
	running   bool
	cancelRun context.CancelFunc
}

// Queue puts the work on its queue. It returns false if the work was already pending or the queue
// is destroyed.
func (w *Work) Queue() bool {
	return w.q.enqueue(w)
}

// Pending returns whether the work is queued but not yet running.
func (w *Work) Pending() bool {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()
	return w.pending
}

// Cancel removes the work from its queue if it is pending, without touching a running execution.
// It returns whether the work was removed.
func (w *Work) Cancel() bool {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()
	return w.removePendingLocked()
}

func (w *Work) removePendingLocked() bool {
	if !w.pending {
		return false
	}
	q := w.q
	for i, queued := range q.pending {
		if queued == w {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	w.pending = false
	q.idle.Broadcast()
	return true
}

// CancelSync removes the work from its queue if it is pending, cancels the context of a running
// execution and waits for that execution to return. It returns whether the work was pending or
// running.
func (w *Work) CancelSync() bool {
	q := w.q
	q.mu.Lock()
	defer q.mu.Unlock()

	wasBusy := w.removePendingLocked() || w.running
	if w.running {
		w.cancelRun()
		for w.running {
			q.idle.Wait()
		}
	}
	return wasBusy
}
