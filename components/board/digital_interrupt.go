package board

import (
	"context"
	"sync"
)

// Tick represents a signal received by an interrupt line.
type Tick struct {
	Name string
	High bool
	// TimestampNanosec is the kernel's timestamp for the edge, or the time it was observed when the
	// line does not report one.
	TimestampNanosec uint64
}

// A DigitalInterrupt is an edge-reporting input line, e.g: a sensor's data-ready output.
type DigitalInterrupt interface {
	// Name returns the name of the interrupt.
	Name() string

	// Value returns the number of edges seen so far.
	Value(ctx context.Context) (int64, error)

	// Tick is to be called either manually if the interrupt is a proxy to some real hardware
	// interrupt or for tests.
	Tick(ctx context.Context, high bool, nanoseconds uint64) error

	// AddCallback adds a channel that receives every future tick.
	AddCallback(c chan Tick)

	// RemoveCallback removes a channel added with AddCallback.
	RemoveCallback(c chan Tick)
}

// BasicDigitalInterrupt counts edges and fans each one out to its callbacks.
type BasicDigitalInterrupt struct {
	name  string
	mu    sync.Mutex
	count int64

	callbacks []chan Tick
}

// NewBasicDigitalInterrupt returns a counting interrupt named after the config.
func NewBasicDigitalInterrupt(config DigitalInterruptConfig) *BasicDigitalInterrupt {
	return &BasicDigitalInterrupt{name: config.Name}
}

// Name returns the name of the interrupt.
func (i *BasicDigitalInterrupt) Name() string {
	return i.name
}

// Value returns the amount of ticks that have occurred.
func (i *BasicDigitalInterrupt) Value(ctx context.Context) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count, nil
}

// Tick records an edge and delivers it to every callback. Delivery blocks until each callback
// channel accepts the tick or `ctx` is done.
func (i *BasicDigitalInterrupt) Tick(ctx context.Context, high bool, nanoseconds uint64) error {
	i.mu.Lock()
	i.count++
	callbacks := make([]chan Tick, len(i.callbacks))
	copy(callbacks, i.callbacks)
	i.mu.Unlock()

	tick := Tick{Name: i.name, High: high, TimestampNanosec: nanoseconds}
	for _, c := range callbacks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c <- tick:
		}
	}
	return nil
}

// AddCallback adds a listener for interrupts.
func (i *BasicDigitalInterrupt) AddCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.callbacks = append(i.callbacks, c)
}

// RemoveCallback removes a listener for interrupts.
func (i *BasicDigitalInterrupt) RemoveCallback(c chan Tick) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id := range i.callbacks {
		if i.callbacks[id] == c {
			i.callbacks = append(i.callbacks[:id], i.callbacks[id+1:]...)
			return
		}
	}
}
