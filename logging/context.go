package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugModeKey struct{}

// EnableDebugMode marks `ctx` so the CDebug methods log for it even when the logger is above debug
// level, e.g: to trace a single control-device request. The key names the trace in the output; an
// empty key is replaced by a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugModeKey{}, key)
}

// IsDebugMode returns whether `ctx` was marked with EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return DebugModeKey(ctx) != ""
}

// DebugModeKey returns the key `ctx` was marked with, or "" if it was not.
func DebugModeKey(ctx context.Context) string {
	key, _ := ctx.Value(debugModeKey{}).(string)
	return key
}
