package akm8973

import (
	"math"
	"time"

	"go.viam.com/utils"

	"github.com/sholes/drivers/components/board/buses"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/irq"
	"github.com/sholes/drivers/logging"
)

// Config is the platform data of one AKM8973.
type Config struct {
	I2CBus  string `json:"i2c_bus"`
	I2CAddr int    `json:"i2c_addr,omitempty"`
	// Interrupt names the board interrupt wired to the chip's data-ready output.
	Interrupt string `json:"interrupt"`
	// InterruptTrigger is "rising" unless set.
	InterruptTrigger string `json:"interrupt_trigger,omitempty"`
	// PowerPin, if set, names the GPIO pin that switches the chip's supply.
	PowerPin  string `json:"power_pin,omitempty"`
	InputName string `json:"input_name,omitempty"`

	// Initial DAC offsets, as raw codes.
	HXDA int `json:"hxda"`
	HYDA int `json:"hyda"`
	HZDA int `json:"hzda"`

	CalMinThreshold int  `json:"cal_min_threshold"`
	CalMaxThreshold int  `json:"cal_max_threshold"`
	Orientation     int  `json:"orientation"`
	XYSwap          bool `json:"xy_swap,omitempty"`
	ZFlip           bool `json:"z_flip,omitempty"`
	PollIntervalMs  int  `json:"poll_interval_ms,omitempty"`
	I2CRetries      int  `json:"i2c_retries,omitempty"`
	RetryDelayMs    int  `json:"retry_delay_ms,omitempty"`
}

// Validate ensures all parts of the config are valid. An unknown orientation or a short poll
// interval is not an error; probe corrects both.
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
	for name, v := range map[string]int{
		"hxda":              cfg.HXDA,
		"hyda":              cfg.HYDA,
		"hzda":              cfg.HZDA,
		"cal_min_threshold": cfg.CalMinThreshold,
		"cal_max_threshold": cfg.CalMaxThreshold,
	} {
		if v < 0 || v > 0xFF {
			return utils.NewConfigValidationError(path,
				driver.NewInvalidArgumentError("%s must fit in a byte, got %d", name, v))
		}
	}
	if cfg.PollIntervalMs < 0 || cfg.I2CRetries < 0 || cfg.RetryDelayMs < 0 {
		return utils.NewConfigValidationError(path,
			driver.NewInvalidArgumentError("poll interval and retry settings must not be negative"))
	}
	if cfg.PollIntervalMs > math.MaxInt32 {
		return utils.NewConfigValidationError(path,
			driver.NewInvalidArgumentError("poll_interval_ms %d is out of range", cfg.PollIntervalMs))
	}
	return nil
}

// normalize applies the corrections probe makes to the platform data.
func (cfg *Config) normalize(logger logging.Logger) {
	switch cfg.Orientation {
	case 0, 90, 180, 270:
	default:
		logger.Warnw("part orientation not recognized, defaulting to 0", "orientation", cfg.Orientation)
		cfg.Orientation = 0
	}
	if cfg.PollIntervalMs < MinPollInterval {
		cfg.PollIntervalMs = MinPollInterval
	}
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
	t, err := irq.TriggerFromString(cfg.InterruptTrigger)
	if err != nil {
		return irq.TriggerRising
	}
	return t
}

func (cfg *Config) inputName() string {
	if cfg.InputName == "" {
		return DefaultInputName
	}
	return cfg.InputName
}

func (cfg *Config) retries() int {
	if cfg.I2CRetries == 0 {
		return buses.DefaultRetries
	}
	return cfg.I2CRetries
}

func (cfg *Config) retryDelay() time.Duration {
	if cfg.RetryDelayMs == 0 {
		return buses.DefaultRetryDelay
	}
	return time.Duration(cfg.RetryDelayMs) * time.Millisecond
}
