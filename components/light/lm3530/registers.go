package lm3530

// Register addresses.
const (
	regGenConfig          byte = 0x10
	regALSConfig          byte = 0x20
	regBrightnessRampRate byte = 0x30
	regALSZone            byte = 0x40
	regALSResistorSelect  byte = 0x41
	regBrightnessCtrl     byte = 0xA0

	regALSZB0 byte = 0x60
	regALSZB1 byte = 0x61
	regALSZB2 byte = 0x62
	regALSZB3 byte = 0x63

	regALSZ0T byte = 0x70
	regALSZ1T byte = 0x71
	regALSZ2T byte = 0x72
	regALSZ3T byte = 0x73
	regALSZ4T byte = 0x74
)

const (
	// ALSReadMask keeps the zone bits of the ALS_ZONE register.
	ALSReadMask byte = 0x07
	// LastBrightnessMask clears the sink enable bit of GEN_CONFIG and keeps the programmed target.
	LastBrightnessMask byte = 0xFE

	// DefaultAddress is the chip's 7-bit I2C address.
	DefaultAddress = 0x38
	// DefaultLEDName is the LED class endpoint the driver registers.
	DefaultLEDName = "lcd-backlight"

	alsAttribute = "als"
)

// Upper bounds of the brightness bands used in automatic mode.
const (
	band2Max = 155
	band3Max = 201
)

var (
	zoneBoundaryRegisters = [4]byte{regALSZB0, regALSZB1, regALSZB2, regALSZB3}
	zoneTargetRegisters   = [5]byte{regALSZ0T, regALSZ1T, regALSZ2T, regALSZ3T, regALSZ4T}
)
