package board

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// I2CConfig enumerates a specific, shareable I2C bus.
type I2CConfig struct {
	Name         string `json:"name"`
	Bus          string `json:"bus"`
	FrequencyKHz int    `json:"frequency_khz,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *I2CConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Bus == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "bus")
	}
	if config.FrequencyKHz < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("frequency_khz must be positive, got %d", config.FrequencyKHz))
	}
	return nil
}

// DigitalInterruptConfig describes an interrupt line on a GPIO character device.
type DigitalInterruptConfig struct {
	Name string `json:"name"`
	// Chip is the GPIO character device, e.g: "/dev/gpiochip0".
	Chip string `json:"chip,omitempty"`
	Pin  string `json:"pin"`
}

// Validate ensures all parts of the config are valid.
func (config *DigitalInterruptConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Pin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	if config.Chip != "" && !strings.HasPrefix(config.Chip, "/dev/") {
		return utils.NewConfigValidationError(path, errors.Errorf("chip must be a device path, got %q", config.Chip))
	}
	return nil
}

// GPIOPinConfig names a GPIO output, e.g: a sensor power rail enable.
type GPIOPinConfig struct {
	Name string `json:"name"`
	Pin  string `json:"pin"`
}

// Validate ensures all parts of the config are valid.
func (config *GPIOPinConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Pin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	return nil
}

// Config is the set of buses, lines and pins a board exposes. Names must be unique within each
// section.
type Config struct {
	I2Cs              []I2CConfig              `json:"i2cs,omitempty"`
	DigitalInterrupts []DigitalInterruptConfig `json:"digital_interrupts,omitempty"`
	GPIOPins          []GPIOPinConfig          `json:"gpio_pins,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	seen := map[string]bool{}
	unique := func(path, name string) error {
		if seen[name] {
			return utils.NewConfigValidationError(path, errors.Errorf("name %q is not unique", name))
		}
		seen[name] = true
		return nil
	}
	for idx := range config.I2Cs {
		p := joinPath(path, "i2cs", idx)
		if err := config.I2Cs[idx].Validate(p); err != nil {
			return err
		}
		if err := unique(p, config.I2Cs[idx].Name); err != nil {
			return err
		}
	}
	seen = map[string]bool{}
	for idx := range config.DigitalInterrupts {
		p := joinPath(path, "digital_interrupts", idx)
		if err := config.DigitalInterrupts[idx].Validate(p); err != nil {
			return err
		}
		if err := unique(p, config.DigitalInterrupts[idx].Name); err != nil {
			return err
		}
	}
	seen = map[string]bool{}
	for idx := range config.GPIOPins {
		p := joinPath(path, "gpio_pins", idx)
		if err := config.GPIOPins[idx].Validate(p); err != nil {
			return err
		}
		if err := unique(p, config.GPIOPins[idx].Name); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path, section string, idx int) string {
	if path == "" {
		return fmt.Sprintf("%s.%d", section, idx)
	}
	return fmt.Sprintf("%s.%s.%d", path, section, idx)
}
