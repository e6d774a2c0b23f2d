// Package miscdevice is the host control-device subsystem: named character devices with a minor
// number that accept ioctl requests.
package miscdevice

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sholes/drivers/driver"
)

// DynamicMinor asks Register to pick a free minor number.
const DynamicMinor = -1

// firstDynamicMinor is where dynamic allocation starts, below it minors are reserved.
const firstDynamicMinor = 64

// IoctlFunc handles one request. `arg` holds IOCSize(cmd) bytes: the caller's input for write
// requests, and the buffer to fill for read requests.
type IoctlFunc func(ctx context.Context, cmd uint32, arg []byte) error

// Device is one control device.
type Device struct {
	Name    string
	Minor   int
	Open    func(ctx context.Context) error
	Release func(ctx context.Context) error
	Ioctl   IoctlFunc
}

// Registry holds the registered control devices.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]*Device
	byMinor map[int]*Device
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Device{}, byMinor: map[int]*Device{}}
}

// Register publishes the device, assigning a minor number when it asks for DynamicMinor.
func (r *Registry) Register(dev *Device) error {
	if dev.Name == "" {
		return driver.NewInvalidArgumentError("misc device without a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[dev.Name]; ok {
		return errors.Wrapf(driver.ErrBusy, "misc device %q already registered", dev.Name)
	}
	if dev.Minor == DynamicMinor {
		minor := firstDynamicMinor
		for r.byMinor[minor] != nil {
			minor++
		}
		dev.Minor = minor
	} else if _, ok := r.byMinor[dev.Minor]; ok {
		return errors.Wrapf(driver.ErrBusy, "misc minor %d already registered", dev.Minor)
	}
	r.byName[dev.Name] = dev
	r.byMinor[dev.Minor] = dev
	return nil
}

// Deregister removes the device.
func (r *Registry) Deregister(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[dev.Name] == dev {
		delete(r.byName, dev.Name)
		delete(r.byMinor, dev.Minor)
	}
}

// Open opens the device by name.
func (r *Registry) Open(ctx context.Context, name string) (*File, error) {
	r.mu.Lock()
	dev, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		return nil, driver.NewNotPresentError("no misc device %q", name)
	}
	if dev.Open != nil {
		if err := dev.Open(ctx); err != nil {
			return nil, err
		}
	}
	return &File{dev: dev}, nil
}

// File is an open control device.
type File struct {
	mu     sync.Mutex
	dev    *Device
	closed bool
}

// Ioctl checks the payload against the size encoded in `cmd` and forwards the request.
func (f *File) Ioctl(ctx context.Context, cmd uint32, arg []byte) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return errors.New("file already closed")
	}
	if f.dev.Ioctl == nil {
		return driver.NewInvalidArgumentError("%s does not support ioctl", f.dev.Name)
	}
	if size := IOCSize(cmd); len(arg) < size {
		return driver.NewInvalidArgumentError("ioctl %#x needs %d bytes, got %d", cmd, size, len(arg))
	}
	return f.dev.Ioctl(ctx, cmd, arg)
}

// Close releases the file.
func (f *File) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.dev.Release != nil {
		return f.dev.Release(ctx)
	}
	return nil
}
