//go:build linux

package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/sholes/drivers/components/board"
)

// gpioPin is an output pin found through periph's registry, e.g: "GPIO17".
type gpioPin struct {
	name string
	pin  gpio.PinIO

	mu    sync.Mutex
	level gpio.Level
}

func newGPIOPin(conf board.GPIOPinConfig) (*gpioPin, error) {
	pin := gpioreg.ByName(conf.Pin)
	if pin == nil {
		return nil, errors.Errorf("gpio pin %q: no pin named %q", conf.Name, conf.Pin)
	}
	return &gpioPin{name: conf.Name, pin: pin}, nil
}

// Set drives the pin.
func (p *gpioPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := p.pin.Out(level); err != nil {
		return errors.Wrapf(err, "gpio pin %q", p.name)
	}
	p.level = level
	return nil
}

// Get returns the level last driven.
func (p *gpioPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bool(p.level), nil
}
