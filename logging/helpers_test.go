package logging

import (
	"testing"

	"github.com/giygas/healthpost-api/config"
)

// ResetForTest installs a fresh global logger writing to dir and closes it
// when the test ends.
func ResetForTest(t testing.TB, dir string, env config.Environment, level string, weeks int, size int64) {
	t.Helper()
	InitLoggerWithOptions(Options{
		Dir:            dir,
		Env:            env,
		Level:          level,
		RetentionWeeks: weeks,
		MaxFileSize:    size,
	})
	t.Cleanup(func() { _ = Close() })
}
