package main

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/components/board/fake"
	"github.com/sholes/drivers/components/board/genericlinux"
	"github.com/sholes/drivers/components/input"
	"github.com/sholes/drivers/components/led"
	"github.com/sholes/drivers/components/miscdevice"
	"github.com/sholes/drivers/config"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/registry"
)

// daemon owns the board, the host subsystems and every driver probed against them.
type daemon struct {
	board  board.Board
	deps   registry.Dependencies
	logger logging.Logger

	mu      sync.Mutex
	drivers map[string]driver.Driver
	// order is the config order of the probed devices, used to close them in reverse.
	order []string
}

// newDaemon opens the board and probes every configured device. A device that fails to probe is
// logged and left out, like a driver whose probe returned an error.
func newDaemon(ctx context.Context, cfg *config.Config, dryRun bool, logger logging.Logger) (*daemon, error) {
	b, err := openBoard(ctx, cfg, dryRun, logger.Sublogger("board"))
	if err != nil {
		return nil, err
	}
	d := &daemon{
		board: b,
		deps: registry.Dependencies{
			Board:  b,
			Clock:  clock.New(),
			LEDs:   led.NewClass(),
			Inputs: input.NewSubsystem(),
			Misc:   miscdevice.NewRegistry(),
		},
		logger:  logger,
		drivers: map[string]driver.Driver{},
	}

	probed := make([]driver.Driver, len(cfg.Devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, conf := range cfg.Devices {
		i, conf := i, conf
		g.Go(func() error {
			drv, err := d.probe(gctx, conf)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Errorw("device probe failed", "device", conf.Name, "model", conf.Model, "error", err)
				return nil
			}
			probed[i] = drv
			return nil
		})
	}
	err = g.Wait()
	for i, drv := range probed {
		if drv == nil {
			continue
		}
		name := cfg.Devices[i].Name
		d.drivers[name] = drv
		d.order = append(d.order, name)
	}
	if err != nil {
		return nil, multierr.Combine(err, d.Close(context.Background()))
	}
	d.logger.Infow("devices probed", "probed", len(d.order), "configured", len(cfg.Devices))
	return d, nil
}

func (d *daemon) probe(ctx context.Context, conf registry.DeviceConfig) (driver.Driver, error) {
	reg, ok := registry.Lookup(conf.Model)
	if !ok {
		return nil, errors.Errorf("unknown model %q", conf.Model)
	}
	return reg.Constructor(ctx, d.deps, conf, d.logger.Sublogger(conf.Name))
}

// Driver returns the probed driver named `name`.
func (d *daemon) Driver(name string) (driver.Driver, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	drv, ok := d.drivers[name]
	return drv, ok
}

// Close removes the drivers in reverse probe order, then closes the board.
func (d *daemon) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for i := len(d.order) - 1; i >= 0; i-- {
		name := d.order[i]
		err = multierr.Combine(err, errors.Wrapf(d.drivers[name].Close(ctx), "closing %q", name))
		delete(d.drivers, name)
	}
	d.order = nil
	return multierr.Combine(err, d.board.Close(ctx))
}

// openBoard opens the Linux board, or for a dry run a fake board with a zeroed chip at every
// address a device expects.
func openBoard(ctx context.Context, cfg *config.Config, dryRun bool, logger logging.Logger) (board.Board, error) {
	if !dryRun {
		return genericlinux.NewBoard(ctx, &cfg.Config, logger)
	}
	b, err := fake.NewBoard(&fake.Config{Config: cfg.Config}, logger)
	if err != nil {
		return nil, err
	}
	for _, conf := range cfg.Devices {
		target, ok := conf.ConvertedAttributes.(registry.I2CTargeter)
		if !ok {
			continue
		}
		busName, addr := target.I2CTarget()
		if bus, ok := b.I2Cs[busName]; ok {
			bus.AddDevice(addr)
		}
	}
	return b, nil
}
