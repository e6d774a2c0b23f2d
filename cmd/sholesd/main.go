// Package main is sholesd, the daemon that probes the sensor and backlight drivers against the
// board described by its config file and runs them until it is signaled.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/sholes/drivers/config"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/registry"

	// Registers the drivers.
	_ "github.com/sholes/drivers/components/light/lm3530"
	_ "github.com/sholes/drivers/components/magnetometer/akm8973"
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagDryRun   = "dry-run"
	flagCommands = "commands"
)

func main() {
	logger := logging.NamedLogger("sholesd")

	app := &cli.App{
		Name:  "sholesd",
		Usage: "run the ambient light and magnetometer drivers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagDryRun,
				Usage: "probe the drivers against a fake board",
			},
			&cli.BoolFlag{
				Name:  flagCommands,
				Usage: "read device commands from stdin, one \"<device> <key>[=<value>]...\" per line",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String(flagConfig), c.Bool(flagDebug), c.Bool(flagDryRun), c.Bool(flagCommands), logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "models",
				Usage: "list the registered driver models",
				Action: func(c *cli.Context) error {
					for _, model := range registry.RegisteredModels() {
						fmt.Fprintln(c.App.Writer, model) //nolint:errcheck
					}
					return nil
				},
			},
			{
				Name:      "do",
				Usage:     "probe the devices, run one command against a device and exit",
				ArgsUsage: "<device> readings | <device> <key>[=<value>]...",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return errors.New("do needs a device and a command")
					}
					return doCommand(c.Context, c.String(flagConfig), c.Bool(flagDryRun),
						c.Args().First(), c.Args().Tail(), c.App.Writer, logger)
				},
			},
			{
				Name:  "check",
				Usage: "validate the config file and exit",
				Action: func(c *cli.Context) error {
					_, err := config.Read(c.String(flagConfig), logger)
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, configPath string, debug, dryRun, commands bool, logger logging.Logger) (err error) {
	config.InitLoggingSettings(logger, debug)

	cfg, err := config.Read(configPath, logger)
	if err != nil {
		return errors.Wrap(err, "error reading config")
	}
	if err := config.ApplyLogConfig(cfg, logger); err != nil {
		return err
	}
	if cfg.LogFile != nil {
		file := cfg.LogFile.Appender()
		logger.AddAppender(file)
		defer func() {
			utils.UncheckedError(file.Close())
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(context.Background()); closeErr != nil {
			logger.Errorw("error closing devices", "error", closeErr)
		}
	}()

	watcher, err := config.NewWatcher(cfg, logger.Sublogger("config"), nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Errorw("error closing config watcher", "error", closeErr)
		}
	}()

	if commands {
		utils.PanicCapturingGo(func() {
			if err := d.serveCommands(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("error reading commands", "error", err)
				return
			}
			logger.Info("command input closed")
		})
	}

	logger.Info("running")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// doCommand probes the configured devices, runs one command against `device` and prints the
// response as json.
func doCommand(
	ctx context.Context,
	configPath string,
	dryRun bool,
	device string,
	args []string,
	w io.Writer,
	logger logging.Logger,
) (err error) {
	cfg, err := config.Read(configPath, logger)
	if err != nil {
		return errors.Wrap(err, "error reading config")
	}
	d, err := newDaemon(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, d.Close(context.Background()))
	}()

	resp, err := d.Do(ctx, device, args)
	if err != nil {
		return err
	}
	return writeResponse(w, resp, nil)
}
