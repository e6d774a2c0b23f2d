package driver

import (
	"github.com/pkg/errors"
)

// The error kinds every driver reports. Errors returned by this module wrap one of these, so
// callers classify failures with errors.Is.
var (
	// ErrInvalidArgument is returned for malformed caller input: a zero-length transfer, an
	// unparsable attribute value, an unknown control request or an out-of-order config.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransport is returned when a bus transfer still fails after every retry.
	ErrTransport = errors.New("transport error")
	// ErrDeviceInitFailed is returned when register programming fails during probe.
	ErrDeviceInitFailed = errors.New("device init failed")
	// ErrNoMemory is returned when a driver cannot allocate a resource it needs, e.g: a work
	// queue or a host subsystem slot.
	ErrNoMemory = errors.New("out of memory")
	// ErrNotPresent is returned when required hardware or platform data is missing.
	ErrNotPresent = errors.New("device not present")
	// ErrBusy is returned when a resource is already claimed, e.g: an interrupt line.
	ErrBusy = errors.New("resource busy")
)

// NewInvalidArgumentError returns an ErrInvalidArgument carrying `format`.
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// NewNotPresentError returns an ErrNotPresent carrying `format`.
func NewNotPresentError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotPresent, format, args...)
}

// NewDeviceInitError marks `err` as a device init failure while keeping it in the chain.
func NewDeviceInitError(err error, format string, args ...interface{}) error {
	return &kindError{kind: ErrDeviceInitFailed, cause: errors.Wrapf(err, format, args...)}
}

// NewTransportError marks `err` as a transport failure while keeping it in the chain.
func NewTransportError(err error, format string, args ...interface{}) error {
	return &kindError{kind: ErrTransport, cause: errors.Wrapf(err, format, args...)}
}

// kindError attaches an error kind to a cause without hiding the cause from errors.Is.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
