package driver

import (
	"context"

	"go.uber.org/multierr"
)

// Unwinder records the undo step of every completed probe stage. If a later stage fails, Unwind runs
// the recorded steps in reverse order.
type Unwinder struct {
	steps []unwindStep
}

type unwindStep struct {
	name string
	undo func(ctx context.Context) error
}

// Push records the undo for a stage that just completed.
func (u *Unwinder) Push(name string, undo func(ctx context.Context) error) {
	u.steps = append(u.steps, unwindStep{name: name, undo: undo})
}

// Unwind runs every recorded undo in reverse order and returns `cause` combined with any undo
// failures. The recorded steps are cleared.
func (u *Unwinder) Unwind(ctx context.Context, cause error) error {
	err := cause
	for i := len(u.steps) - 1; i >= 0; i-- {
		err = multierr.Combine(err, u.steps[i].undo(ctx))
	}
	u.steps = nil
	return err
}

// Release forgets every recorded step. It is called once probe has fully succeeded.
func (u *Unwinder) Release() {
	u.steps = nil
}

// Names returns the recorded stage names in completion order.
func (u *Unwinder) Names() []string {
	names := make([]string, 0, len(u.steps))
	for _, step := range u.steps {
		names = append(names, step.name)
	}
	return names
}
