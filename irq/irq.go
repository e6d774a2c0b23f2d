// Package irq turns a board interrupt line into a driver interrupt: a single handler that runs on a
// dispatch goroutine, nested masking, and edge filtering. Edges that arrive while the line is
// masked are remembered and delivered once it is unmasked.
package irq

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/utils"
)

// Trigger selects which edges invoke the handler.
type Trigger int

const (
	// TriggerRising fires on low to high transitions.
	TriggerRising Trigger = iota + 1
	// TriggerFalling fires on high to low transitions.
	TriggerFalling
	// TriggerBoth fires on every transition.
	TriggerBoth
)

// TriggerFromString parses "rising", "falling" or "both". An empty string is rising.
func TriggerFromString(s string) (Trigger, error) {
	switch strings.ToLower(s) {
	case "", "rising":
		return TriggerRising, nil
	case "falling":
		return TriggerFalling, nil
	case "both":
		return TriggerBoth, nil
	}
	return 0, driver.NewInvalidArgumentError("unknown interrupt trigger %q", s)
}

func (t Trigger) String() string {
	switch t {
	case TriggerRising:
		return "rising"
	case TriggerFalling:
		return "falling"
	case TriggerBoth:
		return "both"
	}
	return "unknown"
}

func (t Trigger) matches(high bool) bool {
	switch t {
	case TriggerRising:
		return high
	case TriggerFalling:
		return !high
	case TriggerBoth:
		return true
	}
	return false
}

// A Handler is called for each accepted edge. It runs on the line's dispatch goroutine and must not
// block or do bus I/O: mask the line and queue work instead.
type Handler func(line *Line)

// The board lines currently requested, so one line cannot back two drivers.
var (
	claimedMu sync.Mutex
	claimed   = map[board.DigitalInterrupt]string{}
)

// tickBuffer absorbs edge bursts while the dispatcher runs a handler.
const tickBuffer = 16

// A Line is one requested interrupt.
type Line struct {
	name      string
	interrupt board.DigitalInterrupt
	trigger   Trigger
	logger    logging.Logger

	mu      sync.Mutex
	depth   int
	pending bool
	handler Handler
	ticks   chan board.Tick
	resend  chan struct{}
	workers utils.StoppableWorkers

	handled atomic.Uint64
}

// NewLine prepares `interrupt` for use by the driver named `name`. The line is unmasked but
// delivers nothing until Request.
func NewLine(name string, interrupt board.DigitalInterrupt, trigger Trigger, logger logging.Logger) (*Line, error) {
	if interrupt == nil {
		return nil, driver.NewNotPresentError("%s: no interrupt line, polling mode is not supported", name)
	}
	if !trigger.matches(true) && !trigger.matches(false) {
		return nil, driver.NewInvalidArgumentError("%s: invalid trigger %d", name, trigger)
	}
	return &Line{name: name, interrupt: interrupt, trigger: trigger, logger: logger}, nil
}

// Name returns the name of the owning driver.
func (l *Line) Name() string {
	return l.name
}

// Request installs `handler` and starts delivering edges. It fails with ErrBusy if the board line
// is already requested.
func (l *Line) Request(handler Handler) error {
	claimedMu.Lock()
	if owner, ok := claimed[l.interrupt]; ok {
		claimedMu.Unlock()
		return errors.Wrapf(driver.ErrBusy, "interrupt %q already requested by %s", l.interrupt.Name(), owner)
	}
	claimed[l.interrupt] = l.name
	claimedMu.Unlock()

	l.mu.Lock()
	l.handler = handler
	l.ticks = make(chan board.Tick, tickBuffer)
	l.resend = make(chan struct{}, 1)
	ticks, resend := l.ticks, l.resend
	l.mu.Unlock()

	l.interrupt.AddCallback(ticks)
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		l.dispatch(ctx, ticks, resend)
	})
	l.logger.Debugw("requested interrupt", "line", l.interrupt.Name(), "trigger", l.trigger.String())
	return nil
}

// Free stops delivery and releases the board line. The handler is not running when Free returns.
func (l *Line) Free() {
	l.mu.Lock()
	ticks := l.ticks
	workers := l.workers
	l.handler = nil
	l.ticks = nil
	l.workers = nil
	l.mu.Unlock()
	if ticks == nil {
		return
	}

	l.interrupt.RemoveCallback(ticks)
	workers.Stop()

	claimedMu.Lock()
	delete(claimed, l.interrupt)
	claimedMu.Unlock()
	l.logger.Debugw("freed interrupt", "line", l.interrupt.Name())
}

// DisableNosync masks the line without waiting for a running handler. Calls nest.
func (l *Line) DisableNosync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.depth++
}

// Enable undoes one DisableNosync. When the line becomes unmasked and an edge arrived while it was
// masked, the handler is run once for it.
func (l *Line) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		l.logger.Warnw("unbalanced interrupt enable", "line", l.interrupt.Name())
		return
	}
	l.depth--
	if l.depth > 0 || !l.pending {
		return
	}
	l.pending = false
	if l.resend != nil {
		select {
		case l.resend <- struct{}{}:
		default:
		}
	}
}

// Masked returns whether the line is currently masked.
func (l *Line) Masked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0
}

// Handled returns how many times the handler has run.
func (l *Line) Handled() uint64 {
	return l.handled.Load()
}

func (l *Line) dispatch(ctx context.Context, ticks <-chan board.Tick, resend <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			if !l.trigger.matches(tick.High) {
				continue
			}
		case <-resend:
		}
		l.deliver()
	}
}

func (l *Line) deliver() {
	l.mu.Lock()
	if l.depth > 0 {
		l.pending = true
		l.mu.Unlock()
		return
	}
	handler := l.handler
	l.mu.Unlock()
	if handler == nil {
		return
	}
	l.handled.Inc()
	handler(l)
}
