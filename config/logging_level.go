package config

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/sholes/drivers/logging"
)

// debugFlags tracks the two places debug logging can be turned on. Either one enables it.
var debugFlags struct {
	mu      sync.Mutex
	logger  logging.Logger
	cmdLine bool
	file    bool
}

// InitLoggingSettings records the command line debug flag and sets the global level from it.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool) {
	debugFlags.mu.Lock()
	defer debugFlags.mu.Unlock()
	debugFlags.logger = logger
	debugFlags.cmdLine = cmdLineDebugFlag
	logging.GlobalLogLevel.SetLevel(debugLevelLocked())
	logger.Infow("log level initialized", "level", logging.GlobalLogLevel.Level())
}

// UpdateFileConfigDebug is used to update the debug flag whenever the config file is re-read.
func UpdateFileConfigDebug(fileDebug bool) {
	debugFlags.mu.Lock()
	defer debugFlags.mu.Unlock()
	debugFlags.file = fileDebug

	level := debugLevelLocked()
	if logging.GlobalLogLevel.Level() == level {
		return
	}
	if debugFlags.logger != nil {
		debugFlags.logger.Infow("log level changed", "level", level)
	}
	logging.GlobalLogLevel.SetLevel(level)
}

func debugLevelLocked() zapcore.Level {
	if debugFlags.cmdLine || debugFlags.file {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// ApplyLogConfig applies the file's debug flag and logger patterns.
func ApplyLogConfig(cfg *Config, logger logging.Logger) error {
	UpdateFileConfigDebug(cfg.Debug)
	return logging.UpdateLoggerConfig(cfg.Log, logger)
}
