// Package akm8973 implements the driver for the AKM8973 3-axis magnetometer. While the input
// device is open, a periodic work item starts a single measurement. The chip raises its interrupt
// when the sample is ready. The deferred half of the interrupt reads the sample back, adjusts the
// DAC offsets when an axis drifts out of range, reorients the sample to the device frame and
// publishes it. A control device exposes the calibration and the poll interval.
package akm8973

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/components/board/buses"
	"github.com/sholes/drivers/components/input"
	"github.com/sholes/drivers/components/miscdevice"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/irq"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/registry"
	"github.com/sholes/drivers/workqueue"
)

// Model is the registry name of this driver.
const Model registry.Model = "akm8973"

func init() {
	registry.Register(Model, registry.Registration{
		Constructor: func(
			ctx context.Context,
			deps registry.Dependencies,
			conf registry.DeviceConfig,
			logger logging.Logger,
		) (driver.Driver, error) {
			cfg, err := registry.NativeConfig[*Config](conf)
			if err != nil {
				return nil, err
			}
			platform, err := powerPinPlatform(deps.Board, cfg.PowerPin)
			if err != nil {
				return nil, err
			}
			return NewMagnetometer(ctx, deps, conf.Name, cfg, platform, logger)
		},
		AttributeMapConverter: func(attributes registry.AttributeMap) (registry.ConfigValidator, error) {
			return registry.TransformAttributeMap[*Config](attributes)
		},
	})
}

// powerPinPlatform drives the chip's supply from a GPIO pin. No pin means the supply is always on.
func powerPinPlatform(b board.Board, pinName string) (driver.Platform, error) {
	if pinName == "" || b == nil {
		return driver.Platform{}, nil
	}
	pin, err := b.GPIOPinByName(pinName)
	if err != nil {
		return driver.Platform{}, driver.NewNotPresentError("can't find power pin %q: %v", pinName, err)
	}
	return driver.Platform{
		PowerOn: func(ctx context.Context) error {
			return pin.Set(ctx, true, nil)
		},
		PowerOff: func(ctx context.Context) error {
			return pin.Set(ctx, false, nil)
		},
	}, nil
}

// Magnetometer is one probed AKM8973.
type Magnetometer struct {
	name     string
	cfg      Config
	logger   logging.Logger
	clock    clock.Clock
	platform driver.Platform

	// token admits one bus user at a time. A measurement holds it from the mode write that starts
	// the conversion until the interrupt work has read the sample, so it is released on a
	// different goroutine than the one that took it.
	token     *semaphore.Weighted
	measuring atomic.Bool

	// Guarded by token.
	transport *buses.Transport
	dac       [3]uint8
	gain      [3]uint8

	pollMs atomic.Int32

	powerMu       sync.Mutex
	hwInitialized bool
	irqMasked     bool

	handle    board.I2CHandle
	pollQueue *workqueue.Queue
	irqQueue  *workqueue.Queue
	poll      *workqueue.DelayedWork
	line      *irq.Line
	pipeline  *irq.Pipeline

	inputs   *input.Subsystem
	inputDev *input.Device
	misc     *miscdevice.Registry
	miscDev  *miscdevice.Device

	sampleMu   sync.Mutex
	lastSample Sample
	samples    int64

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewMagnetometer probes an AKM8973. It reads the gain calibration from EEPROM, programs the DAC
// offsets, registers the input and control devices and requests the interrupt. The chip is left
// powered off until the input device is opened. On failure every completed step is undone.
func NewMagnetometer(
	ctx context.Context,
	deps registry.Dependencies,
	name string,
	conf *Config,
	platform driver.Platform,
	logger logging.Logger,
) (*Magnetometer, error) {
	if conf == nil {
		return nil, driver.NewNotPresentError("%s: platform data required", name)
	}
	if err := conf.Validate(name); err != nil {
		return nil, err
	}
	if deps.Board == nil || deps.Inputs == nil || deps.Misc == nil {
		return nil, driver.NewNotPresentError("%s: a board, an input subsystem and a misc registry are required", name)
	}
	bus, ok := deps.Board.I2CByName(conf.I2CBus)
	if !ok {
		return nil, driver.NewNotPresentError("%s: can't find I2C bus %q", name, conf.I2CBus)
	}
	interrupt, ok := deps.Board.DigitalInterruptByName(conf.Interrupt)
	if !ok {
		return nil, driver.NewNotPresentError("%s: can't find interrupt %q, polling mode is not supported", name, conf.Interrupt)
	}
	funcs, err := bus.Functionality()
	if err != nil || !funcs.Has(buses.I2CFuncI2C) {
		return nil, driver.NewNotPresentError("%s: I2C bus %q does not support plain I2C transfers", name, conf.I2CBus)
	}

	cfg := *conf
	cfg.normalize(logger)
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	m := &Magnetometer{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		platform: platform,
		token:    semaphore.NewWeighted(1),
		dac:      [3]uint8{uint8(cfg.HXDA), uint8(cfg.HYDA), uint8(cfg.HZDA)},
		inputs:   deps.Inputs,
		misc:     deps.Misc,
	}
	m.pollMs.Store(int32(cfg.PollIntervalMs))

	var unwind driver.Unwinder
	fail := func(err error) (*Magnetometer, error) {
		logger.Errorw("probe failed", "error", err, "unwinding", unwind.Names())
		return nil, unwind.Unwind(ctx, err)
	}

	m.handle, err = bus.OpenHandle(cfg.address())
	if err != nil {
		return nil, driver.NewNotPresentError("%s: can't open I2C address %#02x on %q: %v", name, cfg.address(), cfg.I2CBus, err)
	}
	unwind.Push("i2c handle", func(ctx context.Context) error { return m.handle.Close() })
	m.transport = buses.NewTransport(m.handle, cfg.retries(), cfg.retryDelay(), clk, logger.Sublogger("i2c"))

	m.pollQueue = workqueue.NewQueue("akm8973_poll", logger.Sublogger("poll"))
	m.irqQueue = workqueue.NewQueue("akm8973_irq", logger.Sublogger("irq_wq"))
	unwind.Push("work queues", func(ctx context.Context) error {
		m.irqQueue.Destroy()
		m.pollQueue.Destroy()
		return nil
	})
	m.poll = m.pollQueue.NewDelayedWork(clk, m.pollTick)

	m.line, err = irq.NewLine(name, interrupt, cfg.trigger(), logger.Sublogger("irq"))
	if err != nil {
		return fail(err)
	}
	m.pipeline = irq.NewPipeline(m.line, m.irqQueue, m.readSample)

	if err := platform.RunInit(ctx); err != nil {
		return fail(driver.NewDeviceInitError(err, "%s: platform init failed", name))
	}
	unwind.Push("platform", platform.RunExit)

	if err := m.powerOn(ctx); err != nil {
		return fail(err)
	}
	unwind.Push("power", func(ctx context.Context) error { return m.powerOff(ctx) })

	m.inputDev = input.NewDevice(cfg.inputName(), clk)
	if err := declareAxes(m.inputDev); err != nil {
		return fail(err)
	}
	m.inputDev.SetOpenClose(m.openInput, m.closeInput)
	if err := m.inputs.Register(m.inputDev); err != nil {
		return fail(err)
	}
	unwind.Push("input device", func(ctx context.Context) error {
		return m.inputs.Unregister(ctx, m.inputDev)
	})

	m.miscDev = &miscdevice.Device{
		Name:  MiscName,
		Minor: miscdevice.DynamicMinor,
		Ioctl: m.ioctl,
	}
	if err := m.misc.Register(m.miscDev); err != nil {
		return fail(err)
	}
	unwind.Push("misc device", func(ctx context.Context) error {
		m.misc.Deregister(m.miscDev)
		return nil
	})

	if err := m.pipeline.Request(); err != nil {
		return fail(err)
	}
	unwind.Release()

	// Idle until the first user opens the input device.
	if err := m.powerOff(ctx); err != nil {
		logger.Warnw("failed to power down after probe", "error", err)
	}
	logger.Infow("probed",
		"address", cfg.address(),
		"orientation", cfg.Orientation,
		"poll_interval_ms", cfg.PollIntervalMs,
		"minor", m.miscDev.Minor,
	)
	return m, nil
}

func declareAxes(d *input.Device) error {
	field := input.AbsInfo{Min: -128, Max: 127, Fuzz: axisFuzz, Flat: axisFlat}
	axes := []struct {
		control input.Control
		info    input.AbsInfo
	}{
		{input.AbsoluteHat0X, field},
		{input.AbsoluteHat0Y, field},
		{input.AbsoluteBrake, field},
		{input.AbsoluteThrottle, input.AbsInfo{Min: -30, Max: 85, Fuzz: axisFuzz, Flat: axisFlat}},
		{input.AbsoluteRudder, input.AbsInfo{Min: 0, Max: 1}},
	}
	for _, axis := range axes {
		if err := d.SetAbsParams(axis.control, axis.info); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the device name.
func (m *Magnetometer) Name() string {
	return m.name
}

// Input returns the input device samples are published on.
func (m *Magnetometer) Input() *input.Device {
	return m.inputDev
}

// MiscMinor returns the minor number of the control device.
func (m *Magnetometer) MiscMinor() int {
	return m.miscDev.Minor
}

// HardwareInitialized returns whether the chip has been programmed since it was last powered on.
func (m *Magnetometer) HardwareInitialized() bool {
	m.powerMu.Lock()
	defer m.powerMu.Unlock()
	return m.hwInitialized
}

// Gain returns the gain calibration read from EEPROM.
func (m *Magnetometer) Gain() [3]uint8 {
	m.powerMu.Lock()
	defer m.powerMu.Unlock()
	return m.gain
}

// hwInit reads the gain calibration from EEPROM and writes the DAC offsets and gains back to the
// chip, leaving it powered down. The caller holds the token or has exclusive access at probe.
func (m *Magnetometer) hwInit(ctx context.Context) error {
	if err := m.transport.Write(ctx, regMS1, modeEEPROMRead); err != nil {
		return driver.NewDeviceInitError(err, "%s: failed to enter EEPROM read mode", m.name)
	}
	gain, err := m.transport.Read(ctx, regEHXGA, 3)
	if err != nil {
		err = driver.NewDeviceInitError(err, "%s: failed to read gain calibration", m.name)
		return multierr.Combine(err, m.transport.Write(ctx, regMS1, modePowerDown))
	}
	if err := m.transport.Write(ctx, regMS1, modePowerDown); err != nil {
		return driver.NewDeviceInitError(err, "%s: failed to power down", m.name)
	}

	var calibration [3]uint8
	copy(calibration[:], gain)
	block := []byte{
		dacConvert(m.dac[0]), dacConvert(m.dac[1]), dacConvert(m.dac[2]),
		calibration[0], calibration[1], calibration[2],
	}
	if err := m.transport.Write(ctx, regHXDA, block...); err != nil {
		return driver.NewDeviceInitError(err, "%s: failed to program DAC and gain", m.name)
	}

	m.powerMu.Lock()
	m.gain = calibration
	m.hwInitialized = true
	m.powerMu.Unlock()
	m.logger.Debugw("hardware initialized", "dac", m.dac, "gain", calibration)
	return nil
}

// powerOn switches the supply on, unmasks the interrupt and programs the chip if it lost its
// registers. If programming fails the chip is powered off again.
func (m *Magnetometer) powerOn(ctx context.Context) error {
	m.powerMu.Lock()
	if err := m.platform.RunPowerOn(ctx); err != nil {
		m.powerMu.Unlock()
		return driver.NewDeviceInitError(err, "%s: power on failed", m.name)
	}
	if m.irqMasked {
		m.line.Enable()
		m.irqMasked = false
	}
	initialized := m.hwInitialized
	m.powerMu.Unlock()
	if initialized {
		return nil
	}

	if m.platform.PowerOn != nil {
		if err := m.settle(ctx); err != nil {
			return multierr.Combine(err, m.powerOff(ctx))
		}
	}
	if err := m.hwInit(ctx); err != nil {
		m.logger.Errorw("hardware init failed", "error", err)
		return multierr.Combine(err, m.powerOff(ctx))
	}
	return nil
}

// settle waits for the supply to come up.
func (m *Magnetometer) settle(ctx context.Context) error {
	timer := m.clock.Timer(powerOnSettle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// powerOff masks the interrupt and switches the supply off. Without a power-off hook the chip
// keeps its registers, otherwise it must be programmed again after the next power on.
func (m *Magnetometer) powerOff(ctx context.Context) error {
	m.powerMu.Lock()
	defer m.powerMu.Unlock()
	if !m.irqMasked {
		m.line.DisableNosync()
		m.irqMasked = true
	}
	if m.platform.PowerOff == nil {
		return nil
	}
	m.hwInitialized = false
	if err := m.platform.PowerOff(ctx); err != nil {
		return driver.NewDeviceInitError(err, "%s: power off failed", m.name)
	}
	return nil
}

// openInput runs when the first user opens the input device: power up and start polling.
func (m *Magnetometer) openInput(ctx context.Context) error {
	if m.closed.Load() {
		return driver.NewNotPresentError("%s: device removed", m.name)
	}
	if err := m.token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.token.Release(1)
	if err := m.powerOn(ctx); err != nil {
		return err
	}
	m.poll.Schedule(m.PollInterval())
	m.logger.Debug("input opened, polling started")
	return nil
}

// closeInput runs when the last user closes the input device. It stops polling, waits a bounded
// time for an outstanding measurement and powers the chip off.
func (m *Magnetometer) closeInput(ctx context.Context) error {
	m.poll.CancelSync()

	waitCtx, cancel := m.clock.WithTimeout(ctx, measurementTimeout)
	defer cancel()
	if err := m.token.Acquire(waitCtx, 1); err != nil {
		// The interrupt never came. Take over the measurement's token.
		if !m.measuring.CompareAndSwap(true, false) {
			m.logger.Warnw("timed out waiting for the bus, powering off anyway", "error", err)
			return m.powerOff(ctx)
		}
		m.logger.Warnw("measurement did not complete, abandoning it", "timeout", measurementTimeout)
	}
	defer m.token.Release(1)
	m.logger.Debug("input closed, polling stopped")
	return m.powerOff(ctx)
}

// Close removes the device: it frees the interrupt, stops polling, takes down the input and
// control devices and powers the chip off.
func (m *Magnetometer) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}

	m.line.Free()
	m.pipeline.CancelSync()
	m.poll.CancelSync()
	if m.measuring.CompareAndSwap(true, false) {
		m.token.Release(1)
	}

	m.misc.Deregister(m.miscDev)
	err := m.inputs.Unregister(ctx, m.inputDev)
	err = multierr.Combine(err, m.powerOff(ctx), m.platform.RunExit(ctx))
	m.irqQueue.Destroy()
	m.pollQueue.Destroy()
	return multierr.Combine(err, m.handle.Close())
}
