// Package buses offers the I2C bus abstraction and the retrying register transport drivers use
// on top of it.
package buses

import (
	"context"
)

// I2CFunctionality is the adapter capability bitmask reported by the kernel's I2C_FUNCS request.
type I2CFunctionality uint64

// I2CFuncI2C is set when the adapter supports plain, combined I2C transfers.
const I2CFuncI2C I2CFunctionality = 0x00000001

// Has returns whether every bit of `want` is set.
func (f I2CFunctionality) Has(want I2CFunctionality) bool {
	return f&want == want
}

// I2C is one bus adapter on the board. Several chips share it, each through its own handle.
type I2C interface {
	// OpenHandle claims the 7-bit address `addr` until the handle is closed. A second handle for
	// the same address fails.
	OpenHandle(addr byte) (I2CHandle, error)
	// Functionality reports what kind of transfers the adapter supports.
	Functionality() (I2CFunctionality, error)
}

// I2CHandle talks to the chip at one address.
type I2CHandle interface {
	// Write and Read move raw bytes with no register address.
	Write(ctx context.Context, tx []byte) error
	Read(ctx context.Context, count int) ([]byte, error)

	// ReadByteData and WriteByteData access a single register.
	ReadByteData(ctx context.Context, register byte) (byte, error)
	WriteByteData(ctx context.Context, register, data byte) error

	// ReadBlockData writes the register address and reads `numBytes` back in one combined
	// transfer.
	ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error)
	// WriteBlockData writes the register address followed by `data` in one message.
	WriteBlockData(ctx context.Context, register byte, data []byte) error

	// Close releases the address. It is safe to call more than once.
	Close() error
}
