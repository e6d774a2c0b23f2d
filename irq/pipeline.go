package irq

import (
	"context"

	"github.com/sholes/drivers/workqueue"
)

// A Pipeline defers interrupt handling to a work queue. Its handler masks the line and queues the
// work. The work runs `fn` and then unmasks the line, so every mask is paired with one unmask no
// matter how `fn` returns.
type Pipeline struct {
	line *Line
	work *workqueue.Work
}

// NewPipeline binds `line` to a work item on `queue` running `fn`.
func NewPipeline(line *Line, queue *workqueue.Queue, fn func(ctx context.Context)) *Pipeline {
	p := &Pipeline{line: line}
	p.work = queue.NewWork(func(ctx context.Context) {
		defer p.line.Enable()
		fn(ctx)
	})
	return p
}

// Handle is the interrupt handler: mask, then queue.
func (p *Pipeline) Handle(line *Line) {
	p.Kick()
}

// Kick runs the work as if the interrupt had fired, e.g: to take an initial reading at probe.
func (p *Pipeline) Kick() {
	p.line.DisableNosync()
	if !p.work.Queue() {
		// Already pending: that run unmasks once, so undo this mask now.
		p.line.Enable()
	}
}

// Request installs the pipeline as the line's handler.
func (p *Pipeline) Request() error {
	return p.line.Request(p.Handle)
}

// CancelSync cancels queued or running work. A run that is removed before it starts never
// unmasks, so the mask it took is released here. Call it after the line is freed.
func (p *Pipeline) CancelSync() {
	if p.work.Cancel() {
		p.line.Enable()
	}
	p.work.CancelSync()
}
