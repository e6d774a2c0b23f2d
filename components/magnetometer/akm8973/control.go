package akm8973

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sholes/drivers/components/miscdevice"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/utils"
)

// akmIO is the ioctl type of the control device.
const akmIO = 0xA1

// Requests accepted by the control device. Calibration travels as three raw DAC codes, the poll
// interval as a little-endian int32 in milliseconds.
var (
	IoctlGetCalibration  = miscdevice.IOR(akmIO, 0x01, 3)
	IoctlSetCalibration  = miscdevice.IOW(akmIO, 0x02, 3)
	IoctlSetPollInterval = miscdevice.IOW(akmIO, 0x03, 4)
	IoctlGetPollInterval = miscdevice.IOR(akmIO, 0x04, 4)
)

// GetCalibration returns the cached DAC offsets.
func (m *Magnetometer) GetCalibration(ctx context.Context) ([3]uint8, error) {
	if err := m.token.Acquire(ctx, 1); err != nil {
		return [3]uint8{}, err
	}
	defer m.token.Release(1)
	return m.dac, nil
}

// SetCalibration programs new DAC offsets. The cached offsets change only if the write succeeds.
func (m *Magnetometer) SetCalibration(ctx context.Context, offsets [3]uint8) error {
	if err := m.token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.token.Release(1)
	err := m.transport.Write(ctx, regHXDA, dacConvert(offsets[0]), dacConvert(offsets[1]), dacConvert(offsets[2]))
	if err != nil {
		return err
	}
	m.dac = offsets
	m.logger.Infow("calibration set", "dac", offsets)
	return nil
}

// GetPollInterval returns the measurement period in milliseconds.
func (m *Magnetometer) GetPollInterval(ctx context.Context) (int, error) {
	if err := m.token.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.token.Release(1)
	return int(m.pollMs.Load()), nil
}

// SetPollInterval sets the measurement period, floored at MinPollInterval. It takes effect from
// the next tick. Periods above math.MaxInt32 milliseconds are rejected.
func (m *Magnetometer) SetPollInterval(ctx context.Context, ms int) error {
	if ms > math.MaxInt32 {
		return driver.NewInvalidArgumentError("%s: poll interval %dms is out of range", m.name, ms)
	}
	if err := m.token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.token.Release(1)
	m.pollMs.Store(int32(utils.MaxInt(ms, MinPollInterval)))
	return nil
}

func (m *Magnetometer) ioctl(ctx context.Context, cmd uint32, arg []byte) error {
	switch cmd {
	case IoctlGetCalibration:
		dac, err := m.GetCalibration(ctx)
		if err != nil {
			return err
		}
		copy(arg, dac[:])
	case IoctlSetCalibration:
		return m.SetCalibration(ctx, [3]uint8{arg[0], arg[1], arg[2]})
	case IoctlGetPollInterval:
		ms, err := m.GetPollInterval(ctx)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(arg, uint32(int32(ms)))
	case IoctlSetPollInterval:
		return m.SetPollInterval(ctx, int(int32(binary.LittleEndian.Uint32(arg))))
	default:
		return driver.NewInvalidArgumentError("%s: unknown ioctl %#x", m.name, cmd)
	}
	return nil
}

// Readings returns the last published sample and the current calibration.
func (m *Magnetometer) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	sample, count := m.LastSample()
	dac, err := m.GetCalibration(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"x":                int(sample.X) - 128,
		"y":                int(sample.Y) - 128,
		"z":                int(sample.Z) - 128,
		"temperature":      int(sample.Temperature),
		"calibrated":       sample.Calibrated,
		"samples":          count,
		"dac":              []int{int(dac[0]), int(dac[1]), int(dac[2])},
		"poll_interval_ms": int(m.pollMs.Load()),
	}, nil
}

// DoCommand accepts "get_cali", "set_cali" (three DAC codes), "get_delay" and "set_delay"
// (milliseconds).
func (m *Magnetometer) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	resp := map[string]interface{}{}
	for key, arg := range cmd {
		switch key {
		case "get_cali":
			dac, err := m.GetCalibration(ctx)
			if err != nil {
				return nil, err
			}
			resp["cali"] = []int{int(dac[0]), int(dac[1]), int(dac[2])}
		case "set_cali":
			offsets, err := calibrationArg(key, arg)
			if err != nil {
				return nil, err
			}
			if err := m.SetCalibration(ctx, offsets); err != nil {
				return nil, err
			}
			resp["cali"] = []int{int(offsets[0]), int(offsets[1]), int(offsets[2])}
		case "get_delay":
			ms, err := m.GetPollInterval(ctx)
			if err != nil {
				return nil, err
			}
			resp["delay"] = ms
		case "set_delay":
			ms, err := driver.IntArg(key, arg)
			if err != nil {
				return nil, err
			}
			if err := m.SetPollInterval(ctx, ms); err != nil {
				return nil, err
			}
			resp["delay"] = int(m.pollMs.Load())
		default:
			return nil, driver.NewInvalidArgumentError("%s: unknown command %q", m.name, key)
		}
	}
	return resp, nil
}

func calibrationArg(key string, arg interface{}) ([3]uint8, error) {
	var out [3]uint8
	values, ok := arg.([]interface{})
	if !ok || len(values) != len(out) {
		return out, driver.NewInvalidArgumentError("%s expects three DAC codes, got %v", key, arg)
	}
	for i, v := range values {
		b, err := driver.ByteArg(fmt.Sprintf("%s[%d]", key, i), v)
		if err != nil {
			return out, err
		}
		out[i] = b
	}
	return out, nil
}
