// Package lm3530 implements the driver for the LM3530 backlight controller with ambient light
// sensing. The chip drives the LCD backlight current sink. In automatic mode the driver maps a
// requested brightness onto one of three configured GEN_CONFIG values; in manual mode it programs
// the brightness register directly.
//
// The chip raises its interrupt when the ambient light zone changes. The interrupt handler only
// masks the line and queues work; the work reads the zone back over I2C and unmasks.
package lm3530

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/components/board/buses"
	"github.com/sholes/drivers/components/led"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/irq"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/registry"
	"github.com/sholes/drivers/workqueue"
)

// Model is the registry name of this driver.
const Model registry.Model = "lm3530"

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
			return NewLight(ctx, deps, conf.Name, cfg, logger)
		},
		AttributeMapConverter: func(attributes registry.AttributeMap) (registry.ConfigValidator, error) {
			return registry.TransformAttributeMap[*Config](attributes)
		},
	})
}

// Mode selects how brightness requests are programmed.
type Mode int32

const (
	// Automatic lets the chip follow the ambient light zones.
	Automatic Mode = iota
	// Manual writes the requested brightness straight to the chip.
	Manual
)

func (m Mode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	}
	return "unknown"
}

// A ZoneListener is called with every ambient light zone read back from the chip.
type ZoneListener func(ctx context.Context, zone uint8)

// Light is one probed LM3530.
type Light struct {
	name   string
	cfg    Config
	logger logging.Logger

	// mu serializes bus access and guards the fields below it.
	mu            sync.Mutex
	transport     *buses.Transport
	lastRequested uint8
	lastGenConfig uint8
	zoneListener  ZoneListener

	mode atomic.Int32
	zone atomic.Uint32

	handle   board.I2CHandle
	queue    *workqueue.Queue
	line     *irq.Line
	pipeline *irq.Pipeline
	leds     *led.Class
	ledDev   *led.ClassDevice

	closeMu sync.Mutex
	closed  bool
}

// NewLight probes an LM3530: it programs the zone registers, registers the LED endpoint with its
// "als" attribute, requests the interrupt and queues the first zone read. On failure every
// completed step is undone.
func NewLight(
	ctx context.Context,
	deps registry.Dependencies,
	name string,
	conf *Config,
	logger logging.Logger,
) (*Light, error) {
	if conf == nil {
		return nil, driver.NewNotPresentError("%s: platform data required", name)
	}
	if err := conf.Validate(name); err != nil {
		return nil, err
	}
	if deps.Board == nil || deps.LEDs == nil {
		return nil, driver.NewNotPresentError("%s: a board and an LED class are required", name)
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

	l := &Light{
		name:   name,
		cfg:    *conf,
		logger: logger,
		leds:   deps.LEDs,
	}
	l.mode.Store(int32(Automatic))

	var unwind driver.Unwinder
	fail := func(err error) (*Light, error) {
		logger.Errorw("probe failed", "error", err, "unwinding", unwind.Names())
		return nil, unwind.Unwind(ctx, err)
	}

	l.handle, err = bus.OpenHandle(conf.address())
	if err != nil {
		return nil, driver.NewNotPresentError("%s: can't open I2C address %#02x on %q: %v", name, conf.address(), conf.I2CBus, err)
	}
	unwind.Push("i2c handle", func(ctx context.Context) error { return l.handle.Close() })
	l.transport = buses.NewTransport(l.handle, conf.retries(), conf.retryDelay(), deps.Clock, logger.Sublogger("i2c"))

	l.queue = workqueue.NewQueue("als_wq", logger.Sublogger("als_wq"))
	unwind.Push("work queue", func(ctx context.Context) error {
		l.queue.Destroy()
		return nil
	})
	l.line, err = irq.NewLine(name, interrupt, conf.trigger(), logger.Sublogger("irq"))
	if err != nil {
		return fail(err)
	}
	l.pipeline = irq.NewPipeline(l.line, l.queue, l.readZone)

	if err := l.initRegisters(ctx); err != nil {
		return fail(err)
	}

	l.ledDev = led.NewClassDevice(conf.ledName(), l.SetBrightness)
	if err := l.leds.Register(l.ledDev); err != nil {
		return fail(err)
	}
	unwind.Push("led class", func(ctx context.Context) error {
		l.leds.Unregister(l.ledDev)
		return nil
	})
	if err := l.ledDev.CreateFile(led.Attribute{Name: alsAttribute, Show: l.showALS, Store: l.storeALS}); err != nil {
		return fail(err)
	}
	unwind.Push("als attribute", func(ctx context.Context) error {
		l.ledDev.RemoveFile(alsAttribute)
		return nil
	})

	if err := l.pipeline.Request(); err != nil {
		return fail(err)
	}
	unwind.Release()

	// Take the first zone reading as if the chip had interrupted.
	l.pipeline.Kick()
	logger.Infow("probed", "led", l.ledDev.Name(), "address", conf.address())
	return l, nil
}

func (l *Light) initRegisters(ctx context.Context) error {
	type regWrite struct {
		reg byte
		val int
	}
	writes := []regWrite{
		{regALSConfig, l.cfg.ALSConfig},
		{regBrightnessRampRate, l.cfg.BrightnessRamp},
		{regALSResistorSelect, l.cfg.ALSResistorSelect},
	}
	for i, reg := range zoneBoundaryRegisters {
		writes = append(writes, regWrite{reg, l.cfg.ZoneBoundaries[i]})
	}
	for i, reg := range zoneTargetRegisters {
		writes = append(writes, regWrite{reg, l.cfg.ZoneTargets[i]})
	}
	writes = append(writes, regWrite{regGenConfig, l.cfg.GenConfig})

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range writes {
		if err := l.transport.Write(ctx, w.reg, byte(w.val)); err != nil {
			return driver.NewDeviceInitError(err, "%s: register %#02x initialization failed", l.name, w.reg)
		}
	}
	l.lastGenConfig = byte(l.cfg.GenConfig)
	return nil
}

// Name returns the device name.
func (l *Light) Name() string {
	return l.name
}

// LED returns the LED class endpoint of the backlight.
func (l *Light) LED() *led.ClassDevice {
	return l.ledDev
}

// SetBrightness is the LED class brightness callback. 0 turns the sink off but keeps the target
// programmed last. Bus failures are logged and dropped.
func (l *Light) SetBrightness(ctx context.Context, brightness uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setBrightnessLocked(ctx, brightness)
}

func (l *Light) setBrightnessLocked(ctx context.Context, brightness uint8) {
	l.lastRequested = brightness

	var next byte
	switch {
	case brightness == 0:
		next = l.lastGenConfig & LastBrightnessMask
	case Mode(l.mode.Load()) == Manual:
		if err := l.transport.Write(ctx, regBrightnessCtrl, brightness/2); err != nil {
			l.logger.Errorw("failed to set manual brightness", "brightness", brightness, "error", err)
		}
		next = byte(l.cfg.ZoneData4)
	default:
		next = l.zoneDataFor(brightness)
	}

	l.lastGenConfig = next
	if err := l.transport.Write(ctx, regGenConfig, next); err != nil {
		l.logger.Errorw("writing GEN_CONFIG failed while setting brightness", "brightness", brightness, "error", err)
	}
}

// zoneDataFor maps a non-zero brightness onto its automatic-mode band.
func (l *Light) zoneDataFor(brightness uint8) byte {
	switch {
	case brightness <= band2Max:
		return byte(l.cfg.ZoneData2)
	case brightness <= band3Max:
		return byte(l.cfg.ZoneData3)
	default:
		return byte(l.cfg.ZoneData4)
	}
}

// SetMode switches between automatic and manual mode. On a change the last requested brightness
// is programmed again under the new mode.
func (l *Light) SetMode(ctx context.Context, mode Mode) error {
	if mode != Automatic && mode != Manual {
		return driver.NewInvalidArgumentError("%s: unknown mode %d", l.name, mode)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if Mode(l.mode.Swap(int32(mode))) == mode {
		return nil
	}
	l.logger.Infow("mode changed", "mode", mode.String())
	if l.lastRequested != 0 {
		l.setBrightnessLocked(ctx, l.lastRequested)
	}
	return nil
}

// Mode returns the current mode.
func (l *Light) Mode() Mode {
	return Mode(l.mode.Load())
}

// Zone returns the ambient light zone last read from the chip.
func (l *Light) Zone() uint8 {
	return uint8(l.zone.Load())
}

// LastGenConfig returns the value last written to GEN_CONFIG.
func (l *Light) LastGenConfig() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastGenConfig
}

// LastRequestedBrightness returns the brightness last passed to SetBrightness.
func (l *Light) LastRequestedBrightness() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRequested
}

// SetZoneListener installs the consumer of zone changes. nil removes it.
func (l *Light) SetZoneListener(fn ZoneListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zoneListener = fn
}

// readZone is the deferred half of the interrupt. The pipeline unmasks the line when it returns.
func (l *Light) readZone(ctx context.Context) {
	l.mu.Lock()
	data, err := l.transport.Read(ctx, regALSZone, 1)
	listener := l.zoneListener
	l.mu.Unlock()
	if err != nil {
		l.logger.Errorw("unable to read ALS zone", "error", err)
		return
	}

	zone := data[0] & ALSReadMask
	l.zone.Store(uint32(zone))
	l.logger.Debugw("ALS zone", "zone", zone)
	if listener != nil {
		listener(ctx, zone)
	}
}

func (l *Light) showALS(ctx context.Context) (string, error) {
	return fmt.Sprintf("%d\n", l.Mode()), nil
}

// storeALS accepts "0" for automatic and "1" for manual mode.
func (l *Light) storeALS(ctx context.Context, buf string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(buf))
	if err != nil || (Mode(v) != Automatic && Mode(v) != Manual) {
		return 0, driver.NewInvalidArgumentError("%s: als expects 0 (automatic) or 1 (manual), got %q", l.name, buf)
	}
	if err := l.SetMode(ctx, Mode(v)); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Readings returns the cached state of the chip.
func (l *Light) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]interface{}{
		"mode":       Mode(l.mode.Load()).String(),
		"zone":       int(l.zone.Load()),
		"brightness": int(l.lastRequested),
		"gen_config": int(l.lastGenConfig),
	}, nil
}

// DoCommand accepts "brightness" (0..255), "als" ("0" or "1") and "zone".
func (l *Light) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	resp := map[string]interface{}{}
	for key, arg := range cmd {
		switch key {
		case "brightness":
			b, err := driver.ByteArg(key, arg)
			if err != nil {
				return nil, err
			}
			l.ledDev.SetBrightness(ctx, b)
			resp["gen_config"] = int(l.LastGenConfig())
		case alsAttribute:
			if _, err := l.ledDev.Store(ctx, alsAttribute, fmt.Sprint(arg)); err != nil {
				return nil, err
			}
			resp[alsAttribute] = int(l.Mode())
		case "zone":
			resp["zone"] = int(l.Zone())
		default:
			return nil, driver.NewInvalidArgumentError("%s: unknown command %q", l.name, key)
		}
	}
	return resp, nil
}

// Close removes the device: it frees the interrupt, waits out any zone read, takes down the LED
// endpoint and stops the queue.
func (l *Light) Close(ctx context.Context) error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	l.line.Free()
	l.pipeline.CancelSync()
	l.ledDev.RemoveFile(alsAttribute)
	l.leds.Unregister(l.ledDev)
	l.queue.Destroy()
	return l.handle.Close()
}
