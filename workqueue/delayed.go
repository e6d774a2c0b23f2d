package workqueue

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// DelayedWork queues its work on a queue once a delay elapses. The work may re-arm itself from its
// own function to run periodically.
type DelayedWork struct {
	work  *Work
	clock clock.Clock

	// Guarded by work.q.mu.
	timer     *clock.Timer
	armGen    uint64
	canceling bool
}

// NewDelayedWork returns delayed work bound to this queue. A nil clock uses the wall clock.
func (q *Queue) NewDelayedWork(clk clock.Clock, fn func(ctx context.Context)) *DelayedWork {
	if clk == nil {
		clk = clock.New()
	}
	return &DelayedWork{work: q.NewWork(fn), clock: clk}
}

// Schedule arms the work to be queued after `delay`. It returns false without re-arming if the
// timer is already armed, the work is already pending or a CancelSync is in progress.
func (dw *DelayedWork) Schedule(delay time.Duration) bool {
	q := dw.work.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if dw.canceling || dw.timer != nil || dw.work.pending || q.destroyed {
		return false
	}
	if delay <= 0 {
		return q.enqueueLocked(dw.work)
	}
	dw.armGen++
	gen := dw.armGen
	dw.timer = dw.clock.AfterFunc(delay, func() { dw.fire(gen) })
	return true
}

func (dw *DelayedWork) fire(gen uint64) {
	q := dw.work.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != dw.armGen || dw.canceling || dw.timer == nil {
		// Stopped or superseded after the timer had already fired.
		return
	}
	dw.timer = nil
	q.enqueueLocked(dw.work)
}

// Armed returns whether the timer is running or the work is pending.
func (dw *DelayedWork) Armed() bool {
	q := dw.work.q
	q.mu.Lock()
	defer q.mu.Unlock()
	return dw.timer != nil || dw.work.pending
}

// CancelSync stops the timer, removes pending work and waits for a running execution to return.
// Attempts by the running execution to re-arm itself are ignored.
func (dw *DelayedWork) CancelSync() bool {
	q := dw.work.q
	q.mu.Lock()
	dw.canceling = true
	wasArmed := false
	if dw.timer != nil {
		dw.timer.Stop()
		dw.timer = nil
		dw.armGen++
		wasArmed = true
	}
	q.mu.Unlock()

	wasBusy := dw.work.CancelSync()

	q.mu.Lock()
	dw.canceling = false
	q.mu.Unlock()
	return wasArmed || wasBusy
}
