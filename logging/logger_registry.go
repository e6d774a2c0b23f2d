package logging

import (
	"regexp"
	"sync"
)

var globalLoggerRegistry = newRegistry()

// levelRule is a validated pattern config, compiled.
type levelRule struct {
	matcher *regexp.Regexp
	level   Level
}

// Registry tracks named loggers so their levels can follow pattern configs at runtime.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
	rules     []levelRule
}

func newRegistry() *Registry {
	return &Registry{loggers: map[string]Logger{}}
}

func (lr *Registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *Registry) deregisterLogger(name string) bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if _, ok := lr.loggers[name]; !ok {
		return false
	}
	delete(lr.loggers, name)
	return true
}

func (lr *Registry) loggerNamed(name string) (Logger, bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	return logger, ok
}

// levelFor returns the level of the last rule matching `name`. Callers hold `lr.mu`.
func (lr *Registry) levelFor(name string) (Level, bool) {
	level, matched := INFO, false
	for _, rule := range lr.rules {
		if rule.matcher.MatchString(name) {
			level, matched = rule.level, true
		}
	}
	return level, matched
}

// Update replaces the pattern configs and re-levels every registered logger. A logger no pattern
// matches goes back to INFO; when several match, the last one wins. Malformed patterns are skipped
// with a warning, while an unknown level rejects the whole update.
func (lr *Registry) Update(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	rules := make([]levelRule, 0, len(logConfig))
	for _, lpc := range logConfig {
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			return err
		}
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}
		rules = append(rules, levelRule{matcher: regexp.MustCompile(buildRegexFromPattern(lpc.Pattern)), level: level})
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = logConfig
	lr.rules = rules
	for name, logger := range lr.loggers {
		level, _ := lr.levelFor(name)
		logger.SetLevel(level)
	}
	return nil
}

// RegisteredLoggerNames returns the names of all registered loggers in no particular order.
func (lr *Registry) RegisteredLoggerNames() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	names := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		names = append(names, name)
	}
	return names
}

func (lr *Registry) getCurrentConfig() []LoggerPatternConfig {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	return lr.logConfig
}

// getOrRegister returns the logger already registered as `name`, or registers `logger` leveled by
// the current rules. Concurrent callers all get the first registered logger.
func (lr *Registry) getOrRegister(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if existing, ok := lr.loggers[name]; ok {
		return existing
	}
	lr.loggers[name] = logger
	if level, matched := lr.levelFor(name); matched {
		logger.SetLevel(level)
	}
	return logger
}
