package inject

import (
	"context"
	"sync"

	"github.com/sholes/drivers/components/board"
)

// DigitalInterrupt is an injected digital interrupt.
type DigitalInterrupt struct {
	board.DigitalInterrupt
	NameFunc           func() string
	ValueFunc          func(ctx context.Context) (int64, error)
	TickFunc           func(ctx context.Context, high bool, nanos uint64) error
	AddCallbackFunc    func(c chan board.Tick)
	RemoveCallbackFunc func(c chan board.Tick)

	mu      sync.Mutex
	tickCap []interface{}
}

// Name calls the injected Name or the real version.
func (d *DigitalInterrupt) Name() string {
	if d.NameFunc == nil {
		return d.DigitalInterrupt.Name()
	}
	return d.NameFunc()
}

// Value calls the injected Value or the real version.
func (d *DigitalInterrupt) Value(ctx context.Context) (int64, error) {
	if d.ValueFunc == nil {
		return d.DigitalInterrupt.Value(ctx)
	}
	return d.ValueFunc(ctx)
}

// Tick calls the injected Tick or the real version.
func (d *DigitalInterrupt) Tick(ctx context.Context, high bool, nanos uint64) error {
	d.mu.Lock()
	d.tickCap = []interface{}{ctx, high, nanos}
	d.mu.Unlock()
	if d.TickFunc == nil {
		return d.DigitalInterrupt.Tick(ctx, high, nanos)
	}
	return d.TickFunc(ctx, high, nanos)
}

// TickCap returns the last parameters received by Tick, and then clears them.
func (d *DigitalInterrupt) TickCap() []interface{} {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.tickCap = nil }()
	return d.tickCap
}

// AddCallback calls the injected AddCallback or the real version.
func (d *DigitalInterrupt) AddCallback(c chan board.Tick) {
	if d.AddCallbackFunc == nil {
		d.DigitalInterrupt.AddCallback(c)
		return
	}
	d.AddCallbackFunc(c)
}

// RemoveCallback calls the injected RemoveCallback or the real version.
func (d *DigitalInterrupt) RemoveCallback(c chan board.Tick) {
	if d.RemoveCallbackFunc == nil {
		d.DigitalInterrupt.RemoveCallback(c)
		return
	}
	d.RemoveCallbackFunc(c)
}
