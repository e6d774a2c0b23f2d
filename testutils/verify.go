// Package testutils contains helpers shared by package tests.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the package's tests and then fails if any goroutine is still running, e.g: a
// work queue or interrupt dispatcher a test forgot to close.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m)
}
