package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes through `tb.Log`, so each line is attributed to
// the test that produced it even when tests run in parallel. Lines use the console layout in local
// time, always with a name column.
//
// The appender marks itself with `tb.Helper`, so the file:line Go prepends is the logging call
// rather than this file.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write logs the entry to the test.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatLine(entry, fields, true)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
