package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
	z string
}

type User struct {
	Name string
}

type StructWithStruct struct {
	x int
	Y User
	z string
}

type StructWithAnonymousStruct struct {
	x int
	Y struct {
		Y1 string
	}
	Z string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	// `Helper` will result in test failures being associated with the callers line number. It's
	// more useful to report which `assertLogMatches` call failed rather than which assertion
	// inside this function. Maybe.
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	// Verify the filename matches exactly.
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	// Verify the line number is in fact a number, but no more.
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	// Log message.
	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	// Structured logging with the "w" API. E.g: `Debugw` has an extra tab delimited output.
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	// JSON encoding of maps can be unpredictable because map iteration order can change between
	// runs. Parse the output into maps and assert on map equality.
	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[4]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)

	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[4]), &actualMap)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

// TestConsoleOutputFormat asserts the console appender emits zap's console layout: tab delimited
// time, level, short caller, message and optional json fields. E.g:
//
//	2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:87	impl Info log
func TestConsoleOutputFormat(t *testing.T) {
	// A logger object that will write to the `notStdout` buffer.
	notStdout := &bytes.Buffer{}
	impl := &impl{name: "", level: NewAtomicLevelAt(DEBUG), appenders: []Appender{NewWriterAppender(notStdout)}}

	impl.Info("impl Info log")
	// Note the use of tabs between the date, level, file location and log line. The
	// `assertLogMatches` helper will also deal with the changes to the time/line number.
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:67	impl Info log`)

	// Using `Infof` substitutes the tail arguments into the leading template string input.
	impl.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764-0400	INFO	logging/impl_test.go:131	impl infof log`)

	// Using `Infow` turns the tail arguments into a map for structured logging.
	impl.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806-0400	INFO	logging/impl_test.go:132	impl logw	{"key":"value"}`)

	// A few examples of structs.
	impl.Infow("impl logw", "key", "val", "StructWithAnonymousStruct", StructWithAnonymousStruct{1, struct{ Y1 string }{"y1"}, "foo"})
	//nolint:lll
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:121	impl logw	{"StructWithAnonymousStruct":{"Y":{"Y1":"y1"},"Z":"foo"},"key":"val"}`)

	impl.Infow("StructWithStruct", "key", "val", "StructWithStruct", StructWithStruct{1, User{"alice"}, "foo"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:123	StructWithStruct	{"StructWithStruct":{"Y":{"Name":"alice"}},"key":"val"}`)

	impl.Infow("BasicStruct", "implOneKey", "1val", "BasicStruct", BasicStruct{1, "alice", "foo"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:125	BasicStruct	{"BasicStruct":{"X":1},"implOneKey":"1val"}`)

	// Define a completely anonymous struct.
	anonymousTypedValue := struct {
		x int
		y struct {
			Y1 string
		}
		Z string
	}{1, struct{ Y1 string }{"y1"}, "z"}

	// Even though `y.Y1` is public, it is not included in the output. It isn't a rule that must be
	// excluded. This is tested just as a description of the current behavior.
	impl.Infow("impl logw", "key", "val", "anonymous struct", anonymousTypedValue)
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:119	impl logw	{"anonymous struct":{"Z":"z"},"key":"val"}`)

	// Represent a struct as a string using `fmt.Sprintf`.
	impl.Infow("impl logw", "key", "val", "fmt.Sprintf", fmt.Sprintf("%+v", anonymousTypedValue))
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:127	impl logw	{"fmt.Sprintf":"{x:1 y:{Y1:y1} Z:z}","key":"val"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{name: "sholesd", level: NewAtomicLevelAt(WARN), appenders: []Appender{NewWriterAppender(notStdout)}}

	logger.Info("dropped")
	logger.Debugf("dropped %d", 1)
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Warn("kept")
	output, err := notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[2], test.ShouldEqual, "sholesd")
	test.That(t, parts[len(parts)-1], test.ShouldEqual, "kept")

	// A debug-mode context logs regardless of the configured level.
	logger.CDebugf(EnableDebugMode(context.Background(), ""), "traced %s", "request")
	output, err = notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, output, test.ShouldContainSubstring, "traced request")

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now kept")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "now kept")
}

func TestSubloggerNames(t *testing.T) {
	logger := NewBlankLogger("sholesd")
	sub := logger.Sublogger("akm8973").Sublogger("magnetometer")
	test.That(t, sub.Name(), test.ShouldEqual, "sholesd.akm8973.magnetometer")

	root := NewBlankLogger("")
	test.That(t, root.Sublogger("lm3530").Name(), test.ShouldEqual, "lm3530")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnw("zone read failed", "zone", 3)
	test.That(t, logs.FilterMessage("zone read failed").Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].ContextMap()["zone"], test.ShouldEqual, int64(3))
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("verbose")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	out, err := json.Marshal(WARN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"warn"`)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sholesd.log")
	file := NewFileAppender(path, 1, 1)
	impl := &impl{name: "", level: NewAtomicLevelAt(INFO), appenders: []Appender{file}}

	impl.Infow("devices probed", "probed", 2)
	impl.Debug("not written")
	test.That(t, file.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	assertLogMatches(t, bytes.NewBuffer(contents),
		`2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:210	devices probed	{"probed":2}`)
	test.That(t, strings.Count(string(contents), "\n"), test.ShouldEqual, 1)
}
