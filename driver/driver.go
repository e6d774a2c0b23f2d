// Package driver holds what every device driver in this module shares: the error kinds, the
// platform hooks a board supplies and the probe-time unwinder.
package driver

import (
	"context"
)

// A Driver is a probed device instance. DoCommand is the user-request hook: each driver accepts
// its own small command vocabulary from the daemon. Readings reports the cached device state.
type Driver interface {
	Name() string
	Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error)
	DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error)
	Close(ctx context.Context) error
}

// Platform is the optional set of board callbacks a driver runs around power transitions. Any of
// the hooks may be nil.
type Platform struct {
	Init     func(ctx context.Context) error
	Exit     func(ctx context.Context) error
	PowerOn  func(ctx context.Context) error
	PowerOff func(ctx context.Context) error
}

// RunInit calls the Init hook if it is set.
func (p Platform) RunInit(ctx context.Context) error {
	if p.Init == nil {
		return nil
	}
	return p.Init(ctx)
}

// RunExit calls the Exit hook if it is set.
func (p Platform) RunExit(ctx context.Context) error {
	if p.Exit == nil {
		return nil
	}
	return p.Exit(ctx)
}

// RunPowerOn calls the PowerOn hook if it is set.
func (p Platform) RunPowerOn(ctx context.Context) error {
	if p.PowerOn == nil {
		return nil
	}
	return p.PowerOn(ctx)
}

// RunPowerOff calls the PowerOff hook if it is set.
func (p Platform) RunPowerOff(ctx context.Context) error {
	if p.PowerOff == nil {
		return nil
	}
	return p.PowerOff(ctx)
}
