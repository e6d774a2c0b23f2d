// Package config defines the structures to configure the daemon: the board's buses and lines, the
// devices to probe on them and the logger levels.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/registry"
)

// DefaultPath is where the daemon looks for its config when none is given.
const DefaultPath = "/etc/sholesd.json"

// A Config describes the board and the devices wired to it.
type Config struct {
	ConfigFilePath string `json:"-"`

	board.Config
	Devices []registry.DeviceConfig `json:"devices,omitempty"`

	// Debug turns every logger up to debug, as the --debug flag does.
	Debug bool                          `json:"debug,omitempty"`
	Log   []logging.LoggerPatternConfig `json:"log,omitempty"`
	// LogFile, when set, also writes the log to a rotated file.
	LogFile *LogFileConfig `json:"log_file,omitempty"`
}

// LogFileConfig describes a rotated log file.
type LogFileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *LogFileConfig) Validate(path string) error {
	if c.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb and max_backups can't be negative"))
	}
	return nil
}

// Appender opens the file for appending.
func (c *LogFileConfig) Appender() *logging.FileAppender {
	return logging.NewFileAppender(c.Path, c.MaxSizeMB, c.MaxBackups)
}

// Ensure validates every section and converts device attributes into their typed configs.
// Device names must be unique.
func (c *Config) Ensure(logger logging.Logger) error {
	if err := c.Config.Validate(""); err != nil {
		return err
	}

	names := map[string]bool{}
	for idx := range c.Devices {
		path := fmt.Sprintf("devices.%d", idx)
		if err := c.Devices[idx].Validate(path); err != nil {
			return err
		}
		if names[c.Devices[idx].Name] {
			return utils.NewConfigValidationError(path, errors.Errorf("device name %q is not unique", c.Devices[idx].Name))
		}
		names[c.Devices[idx].Name] = true
	}
	for idx, lpc := range c.Log {
		if err := lpc.Validate(fmt.Sprintf("log.%d", idx)); err != nil {
			return err
		}
	}
	if c.LogFile != nil {
		if err := c.LogFile.Validate("log_file"); err != nil {
			return err
		}
	}
	if len(c.Devices) == 0 {
		logger.Warn("no devices configured")
	}
	return nil
}

// Device returns the config of the named device.
func (c *Config) Device(name string) (registry.DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return registry.DeviceConfig{}, false
}
