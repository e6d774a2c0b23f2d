package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the timestamp layout used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync flushes buffered entries, e.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes human readable, tab delimited lines.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender creates a new appender that logs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender creates a new appender that logs to the input writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer}
}

// Write outputs the log entry to the underlying stream. An unnamed logger's line has no name
// column.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatLine(entry, fields, entry.LoggerName != "")
	fmt.Fprintln(appender.Writer, line) //nolint:errcheck
	return err
}

// Sync is a no-op.
func (appender ConsoleAppender) Sync() error {
	return nil
}

// formatLine renders time, level, optionally the logger name, caller, message and then the fields
// as one json object in the order they were logged. If the fields cannot be encoded the line is
// returned without them, along with the error.
func formatLine(entry zapcore.Entry, fields []zapcore.Field, withName bool) (string, error) {
	parts := []string{entry.Time.Format(DefaultTimeFormatStr), strings.ToUpper(entry.Level.String())}
	if withName {
		parts = append(parts, entry.LoggerName)
	}
	if entry.Caller.Defined {
		parts = append(parts, callerToString(&entry.Caller))
	}
	parts = append(parts, entry.Message)
	if len(fields) == 0 {
		return strings.Join(parts, "\t"), nil
	}

	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := encoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(parts, "\t"), err
	}
	parts = append(parts, buf.String())
	return strings.Join(parts, "\t"), nil
}

// callerToString returns "<dir>/<file>.go:<line>", e.g: "akm8973/akm8973.go:312".
func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}

// FileAppender writes console lines to a file, rotating it once it reaches a size limit.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender appends to `filename`. The file is rotated at `maxSizeMB` megabytes and
// `maxBackups` compressed old files are kept; zero selects lumberjack's defaults.
func NewFileAppender(filename string, maxSizeMB, maxBackups int) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: ConsoleAppender{file}, file: file}
}

// Close closes the current file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
