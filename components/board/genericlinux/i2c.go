//go:build linux

package genericlinux

import (
	"context"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/components/board/buses"
)

// i2cFuncs is I2C_FUNCS from linux/i2c-dev.h.
const i2cFuncs = 0x0705

type i2cBus struct {
	name   string
	bus    string
	closer i2c.BusCloser

	mu   sync.Mutex
	open map[byte]bool
}

func newI2cBus(conf board.I2CConfig) (*i2cBus, error) {
	closer, err := i2creg.Open(conf.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "opening i2c bus %q", conf.Bus)
	}
	if conf.FrequencyKHz > 0 {
		if err := closer.SetSpeed(physic.Frequency(conf.FrequencyKHz) * physic.KiloHertz); err != nil {
			return nil, errors.Wrapf(err, "setting i2c bus %q speed", conf.Bus)
		}
	}
	return &i2cBus{name: conf.Name, bus: conf.Bus, closer: closer, open: map[byte]bool{}}, nil
}

// OpenHandle returns a handle for one device address. Only one handle per address may be open.
func (bus *i2cBus) OpenHandle(addr byte) (board.I2CHandle, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.open[addr] {
		return nil, errors.Errorf("i2c %q: address %#x is already open", bus.name, addr)
	}
	bus.open[addr] = true
	return &i2cHandle{bus: bus, dev: &i2c.Dev{Bus: bus.closer, Addr: uint16(addr)}}, nil
}

// Functionality asks the adapter what transfers it supports.
func (bus *i2cBus) Functionality() (buses.I2CFunctionality, error) {
	f, err := os.Open(bus.devicePath())
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck

	var funcs uint64
	//nolint:gosec
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), i2cFuncs, uintptr(unsafe.Pointer(&funcs)))
	if errno != 0 {
		return 0, errors.Wrapf(errno, "i2c %q: I2C_FUNCS", bus.name)
	}
	return buses.I2CFunctionality(funcs), nil
}

func (bus *i2cBus) devicePath() string {
	if strings.HasPrefix(bus.bus, "/dev/") {
		return bus.bus
	}
	return "/dev/i2c-" + strings.TrimPrefix(bus.bus, "I2C")
}

func (bus *i2cBus) release(addr byte) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.open, addr)
}

func (bus *i2cBus) Close() error {
	return bus.closer.Close()
}

// i2cHandle wraps a periph device so it conforms to the board.I2CHandle interface.
type i2cHandle struct {
	bus *i2cBus
	dev *i2c.Dev

	mu     sync.Mutex
	closed bool
}

var errHandleClosed = errors.New("i2c handle is closed")

func (h *i2cHandle) tx(w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Wrapf(errHandleClosed, "i2c %q: address %#x", h.bus.name, h.dev.Addr)
	}
	return h.dev.Tx(w, r)
}

func (h *i2cHandle) Write(ctx context.Context, tx []byte) error {
	return h.tx(tx, nil)
}

func (h *i2cHandle) Read(ctx context.Context, count int) ([]byte, error) {
	buffer := make([]byte, count)
	if err := h.tx(nil, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (h *i2cHandle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	results, err := h.ReadBlockData(ctx, register, 1)
	if err != nil {
		return 0, err
	}
	return results[0], nil
}

func (h *i2cHandle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.tx([]byte{register, data}, nil)
}

func (h *i2cHandle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	results := make([]byte, numBytes)
	if err := h.tx([]byte{register}, results); err != nil {
		return nil, errors.Wrapf(err, "reading %d bytes from register %#x, address %#x on %q",
			numBytes, register, h.dev.Addr, h.bus.name)
	}
	return results, nil
}

func (h *i2cHandle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	rawData := make([]byte, len(data)+1)
	rawData[0] = register
	copy(rawData[1:], data)
	return h.tx(rawData, nil)
}

func (h *i2cHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.bus.release(byte(h.dev.Addr))
	return nil
}
