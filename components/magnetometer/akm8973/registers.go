package akm8973

import (
	"time"
)

// Register addresses.
const (
	regST   byte = 0xC0
	regTMPS byte = 0xC1
	regH1X  byte = 0xC2
	regH1Y  byte = 0xC3
	regH1Z  byte = 0xC4

	regMS1  byte = 0xE0
	regHXDA byte = 0xE1
	regHYDA byte = 0xE2
	regHZDA byte = 0xE3
	regHXGA byte = 0xE4
	regHYGA byte = 0xE5
	regHZGA byte = 0xE6

	// regEHXGA is the first gain byte in EEPROM, readable in EEPROM-read mode.
	regEHXGA byte = 0x69
)

// Values of the MS1 mode register.
const (
	modeMeasure    byte = 0x00
	modeEEPROMRead byte = 0x02
	modePowerDown  byte = 0x03
)

const (
	// DefaultAddress is the chip's 7-bit I2C address.
	DefaultAddress = 0x1C
	// MinPollInterval is the shortest measurement period the chip supports, in milliseconds.
	MinPollInterval = 27
	// DefaultInputName is the input device the driver registers.
	DefaultInputName = "magnetometer"
	// MiscName is the control device the driver registers.
	MiscName = "akm8973"

	axisFuzz = 4
	axisFlat = 4

	// sampleLen is the measurement block: temperature, then X, Y and Z.
	sampleLen = 4

	// powerOnSettle is how long the chip needs after its supply is switched on.
	powerOnSettle = 100 * time.Millisecond
	// measurementTimeout bounds how long input close waits for an outstanding measurement.
	measurementTimeout = time.Second
)

// dacConvert turns a DAC offset into the register encoding: codes below 0x80 are mirrored.
func dacConvert(offset uint8) uint8 {
	if offset < 0x80 {
		return 0x7F - offset
	}
	return offset
}
