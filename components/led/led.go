// Package led is the host LED class subsystem: named brightness endpoints with optional
// attribute files.
package led

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sholes/drivers/driver"
)

// MaxBrightness is the top of the class brightness scale.
const MaxBrightness = 255

// BrightnessSetFunc is the driver's brightness callback. It returns nothing: failures are the
// driver's to log.
type BrightnessSetFunc func(ctx context.Context, brightness uint8)

// An Attribute is a text file on a class device.
type Attribute struct {
	Name string
	// Show renders the attribute, e.g: "1\n".
	Show func(ctx context.Context) (string, error)
	// Store parses `buf` and returns how many bytes were consumed.
	Store func(ctx context.Context, buf string) (int, error)
}

// ClassDevice is one LED endpoint.
type ClassDevice struct {
	name          string
	brightnessSet BrightnessSetFunc

	mu         sync.Mutex
	brightness uint8
	attrs      map[string]Attribute
}

// NewClassDevice returns an endpoint that forwards brightness changes to `set`.
func NewClassDevice(name string, set BrightnessSetFunc) *ClassDevice {
	return &ClassDevice{name: name, brightnessSet: set, attrs: map[string]Attribute{}}
}

// Name returns the endpoint name.
func (cd *ClassDevice) Name() string {
	return cd.name
}

// SetBrightness records the new brightness and calls the driver.
func (cd *ClassDevice) SetBrightness(ctx context.Context, brightness uint8) {
	cd.mu.Lock()
	cd.brightness = brightness
	cd.mu.Unlock()
	if cd.brightnessSet != nil {
		cd.brightnessSet(ctx, brightness)
	}
}

// Brightness returns the last brightness set through the endpoint.
func (cd *ClassDevice) Brightness() uint8 {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.brightness
}

// CreateFile adds an attribute file.
func (cd *ClassDevice) CreateFile(attr Attribute) error {
	if attr.Name == "" {
		return driver.NewInvalidArgumentError("attribute without a name on %q", cd.name)
	}
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if _, ok := cd.attrs[attr.Name]; ok {
		return errors.Wrapf(driver.ErrBusy, "attribute %q already exists on %q", attr.Name, cd.name)
	}
	cd.attrs[attr.Name] = attr
	return nil
}

// RemoveFile removes an attribute file.
func (cd *ClassDevice) RemoveFile(name string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	delete(cd.attrs, name)
}

func (cd *ClassDevice) attr(name string) (Attribute, error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	attr, ok := cd.attrs[name]
	if !ok {
		return Attribute{}, driver.NewNotPresentError("no attribute %q on %q", name, cd.name)
	}
	return attr, nil
}

// Show reads an attribute file.
func (cd *ClassDevice) Show(ctx context.Context, name string) (string, error) {
	attr, err := cd.attr(name)
	if err != nil {
		return "", err
	}
	if attr.Show == nil {
		return "", errors.Wrapf(driver.ErrInvalidArgument, "attribute %q is write-only", name)
	}
	return attr.Show(ctx)
}

// Store writes an attribute file.
func (cd *ClassDevice) Store(ctx context.Context, name, buf string) (int, error) {
	attr, err := cd.attr(name)
	if err != nil {
		return 0, err
	}
	if attr.Store == nil {
		return 0, errors.Wrapf(driver.ErrInvalidArgument, "attribute %q is read-only", name)
	}
	return attr.Store(ctx, buf)
}

// Class is the registry of LED endpoints.
type Class struct {
	mu      sync.Mutex
	devices map[string]*ClassDevice
}

// NewClass returns an empty LED class.
func NewClass() *Class {
	return &Class{devices: map[string]*ClassDevice{}}
}

// Register publishes the endpoint.
func (c *Class) Register(cd *ClassDevice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[cd.name]; ok {
		return errors.Wrapf(driver.ErrBusy, "led %q already registered", cd.name)
	}
	c.devices[cd.name] = cd
	return nil
}

// Unregister removes the endpoint.
func (c *Class) Unregister(cd *ClassDevice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.devices[cd.name] == cd {
		delete(c.devices, cd.name)
	}
}

// Lookup returns the endpoint by name.
func (c *Class) Lookup(name string) (*ClassDevice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd, ok := c.devices[name]
	return cd, ok
}
