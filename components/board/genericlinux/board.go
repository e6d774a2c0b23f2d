//go:build linux

// Package genericlinux is a board backed by the kernel's character devices: I2C adapters through
// periph.io and interrupt lines through the GPIO chardev, by way of mkch's gpio package.
package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/host/v3"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/utils"
)

var _ = board.Board(&Board{})

// Board is a Linux board. Every bus, line and pin named in its config is opened up front.
type Board struct {
	mu         sync.RWMutex
	i2cs       map[string]*i2cBus
	interrupts map[string]*digitalInterrupt
	gpios      map[string]*gpioPin

	workers utils.StoppableWorkers
	logger  logging.Logger
}

// NewBoard opens everything `conf` names. On error, whatever was already opened is closed.
func NewBoard(ctx context.Context, conf *board.Config, logger logging.Logger) (*Board, error) {
	if err := conf.Validate("board"); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize the host drivers")
	}

	b := &Board{
		i2cs:       map[string]*i2cBus{},
		interrupts: map[string]*digitalInterrupt{},
		gpios:      map[string]*gpioPin{},
		workers:    utils.NewStoppableWorkers(),
		logger:     logger,
	}

	for _, c := range conf.I2Cs {
		bus, err := newI2cBus(c)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
		b.i2cs[c.Name] = bus
	}
	for _, c := range conf.DigitalInterrupts {
		interrupt, err := b.createDigitalInterrupt(c)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
		b.interrupts[c.Name] = interrupt
	}
	for _, c := range conf.GPIOPins {
		pin, err := newGPIOPin(c)
		if err != nil {
			return nil, multierr.Combine(err, b.Close(ctx))
		}
		b.gpios[c.Name] = pin
	}

	logger.Debugw("board opened",
		"i2cs", len(b.i2cs), "digital_interrupts", len(b.interrupts), "gpio_pins", len(b.gpios))
	return b, nil
}

// I2CByName returns the i2c by the given name if it exists.
func (b *Board) I2CByName(name string) (board.I2C, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bus, ok := b.i2cs[name]
	if !ok {
		return nil, false
	}
	return bus, true
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	interrupt, ok := b.interrupts[name]
	if !ok {
		return nil, false
	}
	return interrupt.interrupt, true
}

// GPIOPinByName returns a GPIOPin by name.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pin, ok := b.gpios[name]; ok {
		return pin, nil
	}
	if interrupt, ok := b.interrupts[name]; ok {
		return gpioInterruptWrapperPin{interrupt: interrupt}, nil
	}
	return nil, errors.Errorf("cannot find GPIO for given name %q", name)
}

// Close stops the interrupt monitors and releases every line and bus.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.workers.Stop()

	var err error
	for name, interrupt := range b.interrupts {
		err = multierr.Combine(err, errors.Wrapf(interrupt.Close(), "closing interrupt %q", name))
	}
	for name, bus := range b.i2cs {
		err = multierr.Combine(err, errors.Wrapf(bus.Close(), "closing i2c %q", name))
	}
	b.interrupts = map[string]*digitalInterrupt{}
	b.i2cs = map[string]*i2cBus{}
	b.gpios = map[string]*gpioPin{}
	return err
}
