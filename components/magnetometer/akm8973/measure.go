package akm8973

import (
	"context"
	"time"

	"github.com/sholes/drivers/components/input"
	"github.com/sholes/drivers/utils"
)

// Sample is one measurement in the device frame.
type Sample struct {
	Temperature uint8
	X           uint8
	Y           uint8
	Z           uint8
	// Calibrated reports whether the DAC offsets were adjusted after this measurement.
	Calibrated bool
	Time       time.Time
}

// PollInterval returns the measurement period.
func (m *Magnetometer) PollInterval() time.Duration {
	return time.Duration(m.pollMs.Load()) * time.Millisecond
}

// pollTick starts one measurement and re-arms itself. The token taken here is released by the
// interrupt work once the sample is read, or here if the measurement could not be started.
func (m *Magnetometer) pollTick(ctx context.Context) {
	defer m.poll.Schedule(m.PollInterval())

	if err := m.token.Acquire(ctx, 1); err != nil {
		return
	}
	m.measuring.Store(true)
	if err := m.setMode(ctx, modeMeasure); err != nil {
		m.logger.Errorw("unable to start measurement", "error", err)
		if m.measuring.CompareAndSwap(true, false) {
			m.token.Release(1)
		}
	}
}

// setMode writes the mode register. The chip will not enter measurement with an interrupt
// pending, so the measurement block is read first to clear it.
func (m *Magnetometer) setMode(ctx context.Context, mode byte) error {
	if mode == modeMeasure {
		if _, err := m.transport.Read(ctx, regTMPS, sampleLen); err != nil {
			return err
		}
	}
	return m.transport.Write(ctx, regMS1, mode)
}

// readSample is the deferred half of the interrupt. The pipeline unmasks the line when it returns.
func (m *Magnetometer) readSample(ctx context.Context) {
	if !m.measuring.CompareAndSwap(true, false) {
		m.logger.Debug("interrupt without a measurement in progress")
		return
	}
	defer m.token.Release(1)

	raw, err := m.transport.Read(ctx, regTMPS, sampleLen)
	if err != nil {
		m.logger.Errorw("unable to read measurement", "error", err)
		return
	}
	sample := Sample{Temperature: raw[0], X: raw[1], Y: raw[2], Z: raw[3]}
	sample.Calibrated = m.autoCalibrate(ctx, sample)
	sample.X, sample.Y, sample.Z = reorient(sample.X, sample.Y, sample.Z, m.cfg.Orientation, m.cfg.XYSwap, m.cfg.ZFlip)
	sample.Time = m.clock.Now()

	m.publish(ctx, sample)

	m.sampleMu.Lock()
	m.lastSample = sample
	m.samples++
	m.sampleMu.Unlock()
}

// autoCalibrate nudges the DAC offset of every axis whose reading left the threshold window and
// writes the offsets back. The caller holds the token. A failed write is logged and reported as
// no calibration; the offsets keep their new values and the next measurement writes them again.
func (m *Magnetometer) autoCalibrate(ctx context.Context, s Sample) bool {
	calibrate := false
	for i, value := range [3]uint8{s.X, s.Y, s.Z} {
		var changed bool
		m.dac[i], changed = calibrateAxis(m.dac[i], value, uint8(m.cfg.CalMinThreshold), uint8(m.cfg.CalMaxThreshold))
		calibrate = calibrate || changed
	}
	if !calibrate {
		return false
	}
	err := m.transport.Write(ctx, regHXDA, dacConvert(m.dac[0]), dacConvert(m.dac[1]), dacConvert(m.dac[2]))
	if err != nil {
		m.logger.Errorw("unable to update offset DACs", "dac", m.dac, "error", err)
		return false
	}
	m.logger.Debugw("offset DACs updated", "dac", m.dac)
	return true
}

// calibrateAxis returns the offset adjusted for one reading and whether the reading was out of
// range. The offset saturates at 0x00 and 0xFF.
func calibrateAxis(offset, value, lo, hi uint8) (uint8, bool) {
	off := int(offset)
	changed := false
	if value < lo {
		off++
		changed = true
	}
	if value > hi {
		off--
		changed = true
	}
	return uint8(utils.ClampInt(off, 0x00, 0xFF)), changed
}

// reorient maps a sample from the part's frame to the device frame: optional XY swap, optional Z
// flip, then a rotation of the XY plane.
func reorient(x, y, z uint8, orientation int, xySwap, zFlip bool) (uint8, uint8, uint8) {
	if xySwap {
		x, y = y, x
	}
	if zFlip {
		z = 0xFF - z
	}
	switch orientation {
	case 90:
		x, y = y, 0xFF-x
	case 180:
		x, y = 0xFF-x, 0xFF-y
	case 270:
		x, y = 0xFF-y, x
	}
	return x, y, z
}

// publish reports the sample as one input frame, centering the field axes on zero.
func (m *Magnetometer) publish(ctx context.Context, s Sample) {
	rudder := int32(0)
	if s.Calibrated {
		rudder = 1
	}
	m.inputDev.ReportAbs(input.AbsoluteHat0X, int32(s.X)-128)
	m.inputDev.ReportAbs(input.AbsoluteHat0Y, int32(s.Y)-128)
	m.inputDev.ReportAbs(input.AbsoluteBrake, int32(s.Z)-128)
	m.inputDev.ReportAbs(input.AbsoluteThrottle, int32(s.Temperature))
	m.inputDev.ReportAbs(input.AbsoluteRudder, rudder)
	m.inputDev.Sync(ctx)
}

// LastSample returns the most recent published sample and how many have been published.
func (m *Magnetometer) LastSample() (Sample, int64) {
	m.sampleMu.Lock()
	defer m.sampleMu.Unlock()
	return m.lastSample, m.samples
}
