// Package logging contains the named, leveled loggers used by the drivers and the daemon.
package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the logging interface handed to every driver. Loggers are hierarchical by name, e.g:
// "sholesd.akm8973.magnetometer".
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	CDebug(ctx context.Context, args ...interface{})
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" sharing this logger's appenders.
	Sublogger(subname string) Logger
	Name() string
	SetLevel(level Level)
	GetLevel() Level
	AddAppender(appender Appender)
	Sync() error
	AsZap() *zap.SugaredLogger
}

// NewLoggerConfig returns a new default zap config. It is only used when a logger is downconverted
// with `AsZap` for libraries that want a zap logger.
func NewLoggerConfig() zap.Config {
	// from https://github.com/uber-go/zap/blob/2314926ec34c23ee21f3dd4399438469668f8097/config.go#L135
	// but disable stacktraces, use same keys as prod, and color levels.
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a new logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	const inUTC = true
	return &impl{name: name, level: NewAtomicLevelAt(INFO), inUTC: inUTC, appenders: []Appender{NewStdoutAppender()}}
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout in UTC.
func NewDebugLogger(name string) Logger {
	const inUTC = true
	return &impl{name: name, level: NewAtomicLevelAt(DEBUG), inUTC: inUTC, appenders: []Appender{NewStdoutAppender()}}
}

// NewBlankLogger returns a new logger that outputs Debug+ logs in UTC, but without any
// pre-existing appenders/outputs.
func NewBlankLogger(name string) Logger {
	const inUTC = true
	return &impl{name: name, level: NewAtomicLevelAt(DEBUG), inUTC: inUTC, appenders: []Appender{}}
}

// NamedLogger returns the logger registered under `name` in the global registry, creating an Info+
// stdout logger if none exists yet. Loggers obtained this way, and their subloggers, have their
// levels driven by `UpdateLoggerConfig`.
func NamedLogger(name string) Logger {
	const inUTC = true
	logger := &impl{
		name:      name,
		level:     NewAtomicLevelAt(INFO),
		inUTC:     inUTC,
		appenders: []Appender{NewStdoutAppender()},
		registry:  globalLoggerRegistry,
	}
	return globalLoggerRegistry.getOrRegister(name, logger)
}

// UpdateLoggerConfig applies the pattern configs to every logger in the global registry.
func UpdateLoggerConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	return globalLoggerRegistry.Update(logConfig, errorLogger)
}

// NewTestLogger returns a new logger that outputs Debug+ logs to the test object in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	const inUTC = false
	logger := &impl{name: "", level: NewAtomicLevelAt(DEBUG), inUTC: inUTC, appenders: []Appender{}}
	logger.AddAppender(NewTestAppender(tb))

	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.AddAppender(observerCore)

	return logger, observedLogs
}
