package driver

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// IntArg converts a DoCommand argument to an int. Commands decoded from JSON carry numbers as
// float64; the daemon's command line passes them as strings, which may be written in hex
// ("0x1c") since register values usually are.
func IntArg(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, NewInvalidArgumentError("%s: %v is not an integer", key, n)
		}
		return int(n), nil
	case json.Number:
		return stringArg(key, string(n))
	case string:
		return stringArg(key, n)
	}
	return 0, NewInvalidArgumentError("%s: expected a number but got %T", key, v)
}

func stringArg(key, s string) (int, error) {
	i, err := cast.ToIntE(strings.TrimSpace(s))
	if err != nil {
		return 0, NewInvalidArgumentError("%s: %q is not an integer", key, s)
	}
	return i, nil
}

// ByteArg is IntArg restricted to 0..255.
func ByteArg(key string, v interface{}) (uint8, error) {
	i, err := IntArg(key, v)
	if err != nil {
		return 0, err
	}
	if i < 0 || i > 0xFF {
		return 0, NewInvalidArgumentError("%s: %d does not fit in a byte", key, i)
	}
	return uint8(i), nil
}
