package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"Warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"trace", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestGetConsoleLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		env      config.Environment
		level    string
		verbose  bool
		expected slog.Level
	}{
		{"test env is quiet", config.EnvTest, "", false, slog.LevelError},
		{"test env ignores LOG_LEVEL", config.EnvTest, "debug", false, slog.LevelError},
		{"verbose test env", config.EnvTest, "error", true, slog.LevelInfo},
		{"production default", config.EnvProduction, "", false, slog.LevelWarn},
		{"staging default", config.EnvStaging, "", false, slog.LevelWarn},
		{"production LOG_LEVEL wins", config.EnvProduction, "info", false, slog.LevelInfo},
		{"development default", config.EnvDevelopment, "", false, slog.LevelInfo},
		{"development LOG_LEVEL wins", config.EnvDevelopment, "warning", false, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetConsoleLogLevel(tt.env, tt.level, tt.verbose))
		})
	}
	assert.Equal(t, slog.LevelDebug, GetFileLogLevel())
}

func TestInitLoggerWithOptionsConsoleOnly(t *testing.T) {
	InitLoggerWithOptions(Options{Env: config.EnvTest})
	t.Cleanup(func() { InitLogger("") })

	require.NotNil(t, DefaultLoggingService)
	assert.NotNil(t, DefaultLoggingService.Logger)
	assert.Nil(t, DefaultLoggingService.file)
	assert.Same(t, DefaultLoggingService.Logger, slog.Default())
	assert.NoError(t, Close())
}

func TestInitLoggerWithOptionsClosesPreviousFile(t *testing.T) {
	ResetForTest(t, t.TempDir(), config.EnvTest, "", 1, 1024)
	first := DefaultLoggingService.file
	require.NotNil(t, first)

	ResetForTest(t, t.TempDir(), config.EnvTest, "", 1, 1024)
	second := DefaultLoggingService.file
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	first.mu.RLock()
	assert.Nil(t, first.currentFile, "previous log file is closed")
	first.mu.RUnlock()

	second.mu.RLock()
	assert.NotNil(t, second.currentFile)
	second.mu.RUnlock()
}

func TestPackageHelpersWithoutLogger(t *testing.T) {
	initMu.Lock()
	saved := DefaultLoggingService
	DefaultLoggingService = nil
	initMu.Unlock()
	t.Cleanup(func() {
		initMu.Lock()
		DefaultLoggingService = saved
		initMu.Unlock()
	})

	assert.NotPanics(t, func() {
		Debug("no logger yet")
		Info("no logger yet")
		Warn("no logger yet")
		Error("no logger yet")
	})
	assert.NoError(t, Close())
}
