//go:build linux

package genericlinux

import (
	"context"
	"strconv"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/sholes/drivers/components/board"
)

// DefaultGPIOChip is used by interrupts that do not name a chip.
const DefaultGPIOChip = "/dev/gpiochip0"

const consumerLabel = "sholes-interrupt"

type digitalInterrupt struct {
	interrupt *board.BasicDigitalInterrupt
	line      *gpio.LineWithEvent
}

func (b *Board) createDigitalInterrupt(config board.DigitalInterruptConfig) (*digitalInterrupt, error) {
	offset, err := strconv.ParseUint(config.Pin, 10, 32)
	if err != nil {
		return nil, errors.Errorf("interrupt %q: pin must be a line offset, got %q", config.Name, config.Pin)
	}
	chipPath := config.Chip
	if chipPath == "" {
		chipPath = DefaultGPIOChip
	}

	chip, err := gpio.OpenChip(chipPath)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLineWithEvents(uint32(offset), gpio.Input, gpio.BothEdges, consumerLabel)
	if err != nil {
		return nil, errors.Wrapf(err, "interrupt %q: requesting line %d on %s", config.Name, offset, chipPath)
	}

	result := &digitalInterrupt{
		interrupt: board.NewBasicDigitalInterrupt(config),
		line:      line,
	}
	b.workers.AddWorkers(result.monitor)
	return result, nil
}

// monitor delivers every edge the kernel reports until the board closes.
func (di *digitalInterrupt) monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-di.line.Events():
			if !ok {
				return
			}
			goutils.UncheckedError(di.interrupt.Tick(ctx, event.RisingEdge, uint64(event.Time.UnixNano())))
		}
	}
}

func (di *digitalInterrupt) Close() error {
	return di.line.Close()
}

// gpioInterruptWrapperPin reads the level of an interrupt line as a GPIO input.
type gpioInterruptWrapperPin struct {
	interrupt *digitalInterrupt
}

func (gp gpioInterruptWrapperPin) Set(ctx context.Context, isHigh bool, extra map[string]interface{}) error {
	return errors.New("cannot set value of a digital interrupt pin")
}

func (gp gpioInterruptWrapperPin) Get(ctx context.Context, extra map[string]interface{}) (bool, error) {
	value, err := gp.interrupt.line.Value()
	if err != nil {
		return false, err
	}
	return value != 0, nil
}
