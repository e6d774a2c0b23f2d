package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// LoggerPatternConfig is an instance of a level specification for a given logger.
type LoggerPatternConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

// Validate ensures the pattern is well formed and the level is a known one.
func (lpc LoggerPatternConfig) Validate(path string) error {
	if !validatePattern(lpc.Pattern) {
		return errors.Errorf("%s: invalid logger pattern %q", path, lpc.Pattern)
	}
	if _, err := LevelFromString(lpc.Level); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}

const (
	// Regular expressions for logger names. Examples describe the regular expression that follows.

	// e.g. "foo".
	validLoggerSectionName = `[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*`
	// e.g. "foo" or "*".
	validLoggerSectionNameWithWildcard = `(` + validLoggerSectionName + `|\*)`
	// e.g. "foo.*.foo".
	validLoggerSectionsWithWildcard = validLoggerSectionNameWithWildcard + `(\.` + validLoggerSectionNameWithWildcard + `)*`
	// Restricts above regex to be the entire pattern.
	validLoggerName = `^` + validLoggerSectionsWithWildcard + `$`
)

var loggerPatternRegexp = regexp.MustCompile(validLoggerName)

func validatePattern(pattern string) bool {
	return loggerPatternRegexp.MatchString(pattern)
}

func buildRegexFromPattern(pattern string) string {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return matcher.String()
}

func (lpc LoggerPatternConfig) String() string {
	return fmt.Sprintf("%s=%s", lpc.Pattern, lpc.Level)
}
