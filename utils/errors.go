// Package utils holds small helpers shared across the module.
package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when a value, e.g: a converted device config, does not have the
// type its consumer expects.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}
