package input

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sholes/drivers/driver"
)

// Device is one registered input device.
type Device struct {
	name  string
	clock clock.Clock

	// openMu serializes the open and close hooks. Hooks may wait on work that reports events, so
	// they never run under mu.
	openMu  sync.Mutex
	openFn  func(ctx context.Context) error
	closeFn func(ctx context.Context) error
	users   int

	mu       sync.Mutex
	axes     map[Control]AbsInfo
	order    []Control
	frame    []Event
	last     map[Control]Event
	frames   int64
	ctrlCbs  map[Control]map[EventType][]ControlFunction
	frameCbs []FrameFunction
}

// NewDevice allocates an input device. A nil clock uses the wall clock for event times.
func NewDevice(name string, clk clock.Clock) *Device {
	if clk == nil {
		clk = clock.New()
	}
	return &Device{
		name:    name,
		clock:   clk,
		axes:    map[Control]AbsInfo{},
		last:    map[Control]Event{},
		ctrlCbs: map[Control]map[EventType][]ControlFunction{},
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// SetAbsParams declares an absolute axis.
func (d *Device) SetAbsParams(control Control, info AbsInfo) error {
	if _, ok := control.Code(); !ok {
		return driver.NewInvalidArgumentError("unknown axis %q", control)
	}
	if info.Min > info.Max {
		return driver.NewInvalidArgumentError("axis %q min %d above max %d", control, info.Min, info.Max)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.axes[control]; !ok {
		d.order = append(d.order, control)
	}
	d.axes[control] = info
	return nil
}

// AbsParams returns the declared range of an axis.
func (d *Device) AbsParams(control Control) (AbsInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.axes[control]
	return info, ok
}

// SetOpenClose sets the hooks run when the first user opens the device and when the last user
// closes it.
func (d *Device) SetOpenClose(open, closeFn func(ctx context.Context) error) {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	d.openFn = open
	d.closeFn = closeFn
}

// Open adds a user. The first user runs the open hook; if it fails the user is not added.
func (d *Device) Open(ctx context.Context) error {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	if d.users == 0 && d.openFn != nil {
		if err := d.openFn(ctx); err != nil {
			return err
		}
	}
	d.users++
	return nil
}

// Close removes a user. The last user runs the close hook.
func (d *Device) Close(ctx context.Context) error {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	if d.users == 0 {
		return driver.NewInvalidArgumentError("input device %q is not open", d.name)
	}
	d.users--
	if d.users == 0 && d.closeFn != nil {
		return d.closeFn(ctx)
	}
	return nil
}

// Users returns how many times the device is open.
func (d *Device) Users() int {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	return d.users
}

// ReportAbs stages an axis value for the next Sync. Values for undeclared axes are dropped.
func (d *Device) ReportAbs(control Control, value int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.axes[control]; !ok {
		return
	}
	d.frame = append(d.frame, Event{
		Time:    d.clock.Now(),
		Event:   PositionChangeAbs,
		Control: control,
		Value:   float64(value),
	})
}

// Sync publishes the staged values as one frame and delivers them to callbacks.
func (d *Device) Sync(ctx context.Context) {
	d.mu.Lock()
	if len(d.frame) == 0 {
		d.mu.Unlock()
		return
	}
	staged := d.frame
	d.frame = nil
	frame := make(map[Control]Event, len(staged))
	var calls []func()
	for _, ev := range staged {
		d.last[ev.Control] = ev
		frame[ev.Control] = ev
		for _, cb := range d.ctrlCbs[ev.Control][ev.Event] {
			calls = append(calls, func() { cb(ctx, ev) })
		}
		for _, cb := range d.ctrlCbs[ev.Control][AllEvents] {
			calls = append(calls, func() { cb(ctx, ev) })
		}
	}
	for _, cb := range d.frameCbs {
		calls = append(calls, func() { cb(ctx, frame) })
	}
	d.frames++
	d.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

// Frames returns how many frames have been synced.
func (d *Device) Frames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// GetControls returns the declared axes in declaration order.
func (d *Device) GetControls(ctx context.Context) ([]Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Control, len(d.order))
	copy(out, d.order)
	return out, nil
}

// GetEvents returns the most recent synced event for each axis.
func (d *Device) GetEvents(ctx context.Context) (map[Control]Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Control]Event, len(d.last))
	for control, ev := range d.last {
		out[control] = ev
	}
	return out, nil
}

// RegisterControlCallback registers a callback that fires on the given event types for a control.
// A nil function removes the callbacks for those triggers.
func (d *Device) RegisterControlCallback(
	ctx context.Context,
	control Control,
	triggers []EventType,
	ctrlFunc ControlFunction,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.axes[control]; !ok {
		return driver.NewInvalidArgumentError("input device %q has no axis %q", d.name, control)
	}
	if d.ctrlCbs[control] == nil {
		d.ctrlCbs[control] = map[EventType][]ControlFunction{}
	}
	for _, trigger := range triggers {
		if ctrlFunc == nil {
			delete(d.ctrlCbs[control], trigger)
			continue
		}
		d.ctrlCbs[control][trigger] = append(d.ctrlCbs[control][trigger], ctrlFunc)
	}
	return nil
}

// RegisterFrameCallback registers a callback that receives every synced frame.
func (d *Device) RegisterFrameCallback(fn FrameFunction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameCbs = append(d.frameCbs, fn)
}

// Subsystem is the registry of input devices.
type Subsystem struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// NewSubsystem returns an empty input subsystem.
func NewSubsystem() *Subsystem {
	return &Subsystem{devices: map[string]*Device{}}
}

// Register makes the device visible to consumers. Devices must declare at least one axis.
func (s *Subsystem) Register(d *Device) error {
	d.mu.Lock()
	axes := len(d.axes)
	d.mu.Unlock()
	if axes == 0 {
		return driver.NewInvalidArgumentError("input device %q declares no axes", d.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.name]; ok {
		return errors.Wrapf(driver.ErrBusy, "input device %q already registered", d.name)
	}
	s.devices[d.name] = d
	return nil
}

// Unregister removes the device. Open users are closed first so the close hook runs.
func (s *Subsystem) Unregister(ctx context.Context, d *Device) error {
	s.mu.Lock()
	if s.devices[d.name] == d {
		delete(s.devices, d.name)
	}
	s.mu.Unlock()

	var err error
	for d.Users() > 0 {
		err = multierr.Combine(err, d.Close(ctx))
	}
	return err
}

// Lookup returns the registered device by name.
func (s *Subsystem) Lookup(name string) (*Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	return d, ok
}

// Names returns the registered device names.
func (s *Subsystem) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	return names
}
