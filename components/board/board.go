// Package board defines the hardware a driver binds to: I2C buses, interrupt lines and GPIO pins.
package board

import (
	"context"

	"github.com/sholes/drivers/components/board/buses"
)

type (
	// I2C is a shareable I2C bus.
	I2C = buses.I2C
	// I2CHandle is an open device address on an I2C bus.
	I2CHandle = buses.I2CHandle
)

// A Board gives access to the buses and lines a driver is wired to.
type Board interface {
	// I2CByName returns the I2C bus by the given name if it exists.
	I2CByName(name string) (I2C, bool)

	// DigitalInterruptByName returns the interrupt line by the given name if it exists.
	DigitalInterruptByName(name string) (DigitalInterrupt, bool)

	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)

	// Close releases every bus, line and pin the board opened.
	Close(ctx context.Context) error
}
