package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every entry out to its appenders. Subloggers share the appenders and, when the logger
// came from the registry, have their level driven by pattern configs.
type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
	registry  *Registry
}

// callerSkip is the number of frames between a public logging method's caller and getCaller.
const callerSkip = 3

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) Name() string {
	return imp.name
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	sub := &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
		registry:  imp.registry,
	}
	if imp.registry == nil {
		return sub
	}
	return imp.registry.getOrRegister(name, sub)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Combine(err, appender.Sync())
	}
	return err
}

// AsZap builds a zap logger at this logger's level that also writes to any appender that is a
// zapcore.Core, e.g: a test observer.
func (imp *impl) AsZap() *zap.SugaredLogger {
	config := NewLoggerConfig()
	config.Level = zap.NewAtomicLevelAt(imp.level.Get().AsZap())
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		config.Level = GlobalLogLevel
	}
	ret := zap.Must(config.Build()).Sugar().Named(imp.name)
	for _, appender := range imp.appenders {
		core, ok := appender.(zapcore.Core)
		if !ok {
			continue
		}
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return ret
}

// enabled reports whether an entry at `level` is written. A global debug level overrides every
// logger's own level.
func (imp *impl) enabled(level Level) bool {
	return GlobalLogLevel.Level() == zapcore.DebugLevel || level >= imp.level.Get()
}

// emit writes one entry. It must be called directly from the public logging method so the caller
// lookup lands on the user's frame.
func (imp *impl) emit(level Level, msg string, fields []zapcore.Field) {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

// toFields pairs up `keysAndValues`. Values are json serialized, so only exported struct fields
// show up. A trailing key without a value is kept with an error as its value.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.emit(DEBUG, msg, toFields(keysAndValues))
	}
}

// The CDebug variants also log when `ctx` was marked with EnableDebugMode.

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	if imp.enabled(DEBUG) || IsDebugMode(ctx) {
		imp.emit(DEBUG, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if imp.enabled(DEBUG) || IsDebugMode(ctx) {
		imp.emit(DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.enabled(DEBUG) || IsDebugMode(ctx) {
		imp.emit(DEBUG, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(INFO) {
		imp.emit(INFO, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(WARN) {
		imp.emit(WARN, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(ERROR) {
		imp.emit(ERROR, msg, toFields(keysAndValues))
	}
}

// The Fatal variants always log, at error level, then exit.

func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(ERROR, fmt.Sprint(args...), nil)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emit(ERROR, fmt.Sprintf(template, args...), nil)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, msg, toFields(keysAndValues))
	os.Exit(1)
}

// getCaller returns the frame of the code that called the logger.
func getCaller() zapcore.EntryCaller {
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(callerSkip)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
