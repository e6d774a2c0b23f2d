package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sholes/drivers/components/board/buses"
)

// ErrNack is returned by injected transfer failures.
var ErrNack = errors.New("fake i2c: no acknowledge")

// I2C is a fake bus holding register-file devices by address.
type I2C struct {
	name string

	mu            sync.Mutex
	devices       map[byte]*Device
	open          map[byte]*handle
	functionality buses.I2CFunctionality
}

// NewI2C returns an empty fake bus that supports plain I2C transfers.
func NewI2C(name string) *I2C {
	return &I2C{
		name:          name,
		devices:       map[byte]*Device{},
		open:          map[byte]*handle{},
		functionality: buses.I2CFuncI2C,
	}
}

// AddDevice attaches a zeroed register file at `addr`, replacing any device there.
func (bus *I2C) AddDevice(addr byte) *Device {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	d := &Device{}
	bus.devices[addr] = d
	return d
}

// Device returns the device at `addr`.
func (bus *I2C) Device(addr byte) (*Device, bool) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	d, ok := bus.devices[addr]
	return d, ok
}

// SetFunctionality overrides the reported adapter capabilities.
func (bus *I2C) SetFunctionality(f buses.I2CFunctionality) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.functionality = f
}

// Functionality reports the adapter capabilities.
func (bus *I2C) Functionality() (buses.I2CFunctionality, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.functionality, nil
}

// OpenHandle opens the device at `addr`. Only one handle per address may be open.
func (bus *I2C) OpenHandle(addr byte) (buses.I2CHandle, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	d, ok := bus.devices[addr]
	if !ok {
		return nil, errors.Wrapf(ErrNack, "no device at %#02x on %s", addr, bus.name)
	}
	if _, ok := bus.open[addr]; ok {
		return nil, errors.Errorf("address %#02x on %s is already open", addr, bus.name)
	}
	h := &handle{bus: bus, addr: addr, dev: d}
	bus.open[addr] = h
	return h, nil
}

func (bus *I2C) closeAll() error {
	bus.mu.Lock()
	handles := make([]*handle, 0, len(bus.open))
	for _, h := range bus.open {
		handles = append(handles, h)
	}
	bus.mu.Unlock()
	var err error
	for _, h := range handles {
		err = multierr.Combine(err, h.Close())
	}
	return err
}

type handle struct {
	bus  *I2C
	addr byte
	dev  *Device
}

func (h *handle) Write(ctx context.Context, tx []byte) error {
	if len(tx) == 0 {
		return errors.New("empty write")
	}
	return h.dev.write(tx[0], tx[1:])
}

func (h *handle) Read(ctx context.Context, count int) ([]byte, error) {
	return h.dev.readAtPointer(count)
}

func (h *handle) ReadByteData(ctx context.Context, register byte) (byte, error) {
	data, err := h.dev.read(register, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (h *handle) WriteByteData(ctx context.Context, register, data byte) error {
	return h.dev.write(register, []byte{data})
}

func (h *handle) ReadBlockData(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
	return h.dev.read(register, int(numBytes))
}

func (h *handle) WriteBlockData(ctx context.Context, register byte, data []byte) error {
	return h.dev.write(register, data)
}

func (h *handle) Close() error {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	if h.bus.open[h.addr] == h {
		delete(h.bus.open, h.addr)
	}
	return nil
}
