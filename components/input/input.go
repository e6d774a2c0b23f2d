// Package input is the host input subsystem. A device reports absolute axis values and closes each
// group of values with a sync marker, so consumers see every group as one sample.
package input

import (
	"context"
	"time"
)

// Control identifies one axis of an input device.
type Control string

// The absolute axes used by the drivers in this module. Each maps to its Linux ABS_* code.
const (
	AbsoluteThrottle Control = "AbsoluteThrottle"
	AbsoluteRudder   Control = "AbsoluteRudder"
	AbsoluteBrake    Control = "AbsoluteBrake"
	AbsoluteHat0X    Control = "AbsoluteHat0X"
	AbsoluteHat0Y    Control = "AbsoluteHat0Y"
)

// From the linux /usr/include/linux/input-event-codes.h file.
var absCodes = map[Control]uint16{
	AbsoluteThrottle: 0x06,
	AbsoluteRudder:   0x07,
	AbsoluteBrake:    0x0a,
	AbsoluteHat0X:    0x10,
	AbsoluteHat0Y:    0x11,
}

// Code returns the Linux ABS_* code of the control.
func (c Control) Code() (uint16, bool) {
	code, ok := absCodes[c]
	return code, ok
}

// EventType represents the type of input event.
type EventType string

const (
	// AllEvents registers a callback for every event type.
	AllEvents EventType = "AllEvents"
	// PositionChangeAbs reports an absolute axis value.
	PositionChangeAbs EventType = "PositionChangeAbs"
)

// Event is passed to the registered ControlFunction or returned by GetEvents.
type Event struct {
	Time    time.Time
	Event   EventType
	Control Control
	Value   float64
}

// AbsInfo describes the range of an absolute axis. Fuzz is the noise band consumers may filter;
// Flat is the dead zone around the center.
type AbsInfo struct {
	Min  int32
	Max  int32
	Fuzz int32
	Flat int32
}

// ControlFunction is a callback passed to RegisterControlCallback.
type ControlFunction func(ctx context.Context, ev Event)

// FrameFunction receives every synced group of events, keyed by control.
type FrameFunction func(ctx context.Context, frame map[Control]Event)
