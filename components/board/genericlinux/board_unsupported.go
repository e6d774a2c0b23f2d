//go:build !linux

// Package genericlinux is a board backed by the kernel's character devices. It is only available on
// Linux.
package genericlinux

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/logging"
)

// Board is unavailable on this platform.
type Board struct {
	board.Board
}

// NewBoard always fails off Linux.
func NewBoard(ctx context.Context, conf *board.Config, logger logging.Logger) (*Board, error) {
	return nil, errors.New("the linux board is not supported on this platform")
}
