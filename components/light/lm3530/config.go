package lm3530

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sholes/drivers/components/board/buses"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/irq"
)

// Config is the platform data of one LM3530.
type Config struct {
	I2CBus  string `json:"i2c_bus"`
	I2CAddr int    `json:"i2c_addr,omitempty"`
	// Interrupt names the board interrupt wired to the chip's INT output.
	Interrupt string `json:"interrupt"`
	// InterruptTrigger is "falling" unless set.
	InterruptTrigger string `json:"interrupt_trigger,omitempty"`
	LEDName          string `json:"led_name,omitempty"`
	Retries          int    `json:"i2c_retries,omitempty"`
	RetryDelayMs     int    `json:"retry_delay_ms,omitempty"`

	ZoneBoundaries    []int `json:"zone_boundaries"`
	ZoneTargets       []int `json:"zone_targets"`
	ALSConfig         int   `json:"als_config"`
	BrightnessRamp    int   `json:"brightness_ramp"`
	ALSResistorSelect int   `json:"als_resistor_select"`
	GenConfig         int   `json:"gen_config"`
	ZoneData2         int   `json:"zone_data_2"`
	ZoneData3         int   `json:"zone_data_3"`
	ZoneData4         int   `json:"zone_data_4"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.I2CBus == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
	}
	if cfg.Interrupt == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "interrupt")
	}
	if cfg.I2CAddr != 0 && (cfg.I2CAddr < 0x03 || cfg.I2CAddr > 0x77) {
		return utils.NewConfigValidationError(path,
			driver.NewInvalidArgumentError("i2c_addr %#02x is not a 7-bit address", cfg.I2CAddr))
	}
	if _, err := irq.TriggerFromString(cfg.InterruptTrigger); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if cfg.Retries < 0 || cfg.RetryDelayMs < 0 {
		return utils.NewConfigValidationError(path, driver.NewInvalidArgumentError("retry settings must not be negative"))
	}

	if len(cfg.ZoneBoundaries) != len(zoneBoundaryRegisters) {
		return utils.NewConfigValidationError(path, driver.NewInvalidArgumentError(
			"zone_boundaries needs %d values, got %d", len(zoneBoundaryRegisters), len(cfg.ZoneBoundaries)))
	}
	if len(cfg.ZoneTargets) != len(zoneTargetRegisters) {
		return utils.NewConfigValidationError(path, driver.NewInvalidArgumentError(
			"zone_targets needs %d values, got %d", len(zoneTargetRegisters), len(cfg.ZoneTargets)))
	}
	for i, b := range cfg.ZoneBoundaries {
		if err := checkByte(fmt.Sprintf("zone_boundaries.%d", i), b); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if i > 0 && b < cfg.ZoneBoundaries[i-1] {
			return utils.NewConfigValidationError(path, driver.NewInvalidArgumentError(
				"zone_boundaries must not decrease, got %v", cfg.ZoneBoundaries))
		}
	}
	for i, t := range cfg.ZoneTargets {
		if err := checkByte(fmt.Sprintf("zone_targets.%d", i), t); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	for name, v := range map[string]int{
		"als_config":          cfg.ALSConfig,
		"brightness_ramp":     cfg.BrightnessRamp,
		"als_resistor_select": cfg.ALSResistorSelect,
		"gen_config":          cfg.GenConfig,
		"zone_data_2":         cfg.ZoneData2,
		"zone_data_3":         cfg.ZoneData3,
		"zone_data_4":         cfg.ZoneData4,
	} {
		if err := checkByte(name, v); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

func checkByte(field string, v int) error {
	if v < 0 || v > 0xFF {
		return errors.Wrapf(driver.ErrInvalidArgument, "%s must fit in a byte, got %d", field, v)
	}
	return nil
}

// I2CTarget returns the bus name and 7-bit address the chip is probed at.
func (cfg *Config) I2CTarget() (string, byte) {
	return cfg.I2CBus, cfg.address()
}

func (cfg *Config) address() byte {
	if cfg.I2CAddr == 0 {
		return DefaultAddress
	}
	return byte(cfg.I2CAddr)
}

func (cfg *Config) trigger() irq.Trigger {
	if cfg.InterruptTrigger == "" {
		return irq.TriggerFalling
	}
	t, err := irq.TriggerFromString(cfg.InterruptTrigger)
	if err != nil {
		return irq.TriggerFalling
	}
	return t
}

func (cfg *Config) ledName() string {
	if cfg.LEDName == "" {
		return DefaultLEDName
	}
	return cfg.LEDName
}

func (cfg *Config) retries() int {
	if cfg.Retries == 0 {
		return buses.DefaultRetries
	}
	return cfg.Retries
}

func (cfg *Config) retryDelay() time.Duration {
	if cfg.RetryDelayMs == 0 {
		return buses.DefaultRetryDelay
	}
	return time.Duration(cfg.RetryDelayMs) * time.Millisecond
}
