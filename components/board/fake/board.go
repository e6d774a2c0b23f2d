// Package fake implements a fake board whose I2C buses hold register-file devices. Tests and the
// daemon's dry-run mode drive the real drivers against it.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/logging"
)

// A Config is a board config plus a switch that makes construction fail.
type Config struct {
	board.Config
	FailNew bool `json:"fail_new"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if err := conf.Config.Validate(path); err != nil {
		return err
	}
	if conf.FailNew {
		return errors.New("whoops")
	}
	return nil
}

// Board is a fake board.
type Board struct {
	mu       sync.RWMutex
	I2Cs     map[string]*I2C
	Digitals map[string]*board.BasicDigitalInterrupt
	GPIOPins map[string]*GPIOPin
	logger   logging.Logger
}

// NewBoard returns a new fake board.
func NewBoard(conf *Config, logger logging.Logger) (*Board, error) {
	if err := conf.Validate("board"); err != nil {
		return nil, err
	}
	b := &Board{
		I2Cs:     map[string]*I2C{},
		Digitals: map[string]*board.BasicDigitalInterrupt{},
		GPIOPins: map[string]*GPIOPin{},
		logger:   logger,
	}
	for _, c := range conf.I2Cs {
		b.I2Cs[c.Name] = NewI2C(c.Name)
	}
	for _, c := range conf.DigitalInterrupts {
		b.Digitals[c.Name] = board.NewBasicDigitalInterrupt(c)
	}
	for _, c := range conf.GPIOPins {
		b.GPIOPins[c.Name] = &GPIOPin{}
	}
	return b, nil
}

// I2CByName returns the i2c by the given name if it exists.
func (b *Board) I2CByName(name string) (board.I2C, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i2c, ok := b.I2Cs[name]
	return i2c, ok
}

// DigitalInterruptByName returns the interrupt by the given name if it exists.
func (b *Board) DigitalInterruptByName(name string) (board.DigitalInterrupt, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.Digitals[name]
	return d, ok
}

// GPIOPinByName returns the GPIO pin by the given name.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.GPIOPins[name]
	if !ok {
		p = &GPIOPin{}
		b.GPIOPins[name] = p
	}
	return p, nil
}

// Close closes every open I2C handle.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, i2c := range b.I2Cs {
		err = multierr.Combine(err, i2c.closeAll())
	}
	return err
}

// A GPIOPin reports back the last value it was set to and remembers every change.
type GPIOPin struct {
	mu      sync.Mutex
	high    bool
	history []bool
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool, extra map[string]interface{}) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.high = high
	gp.history = append(gp.history, high)
	return nil
}

// Get gets the high/low state of the pin.
func (gp *GPIOPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high, nil
}

// History returns every value the pin was set to, in order.
func (gp *GPIOPin) History() []bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	out := make([]bool, len(gp.history))
	copy(out, gp.history)
	return out
}
