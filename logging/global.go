package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/giygas/healthpost-api/config"
)

// Options configures the global logger.
type Options struct {
	Dir            string // empty logs to the console only
	Env            config.Environment
	Level          string // LOG_LEVEL; empty uses the environment default
	Verbose        bool   // keep info logs in the test environment
	RetentionWeeks int
	MaxFileSize    int64
}

type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	initMu                sync.Mutex
)

// InitLogger initializes the global logger instance
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{Dir: logDir, Env: config.EnvDevelopment})
}

// InitLoggerWithOptions replaces the global logger, closing the log file of
// the previous one.
func InitLoggerWithOptions(opts Options) {
	logger, file := SetupLoggerWithOptions(opts)

	initMu.Lock()
	previous := DefaultLoggingService
	DefaultLoggingService = &LoggingService{Logger: logger, file: file}
	initMu.Unlock()

	slog.SetDefault(logger)

	if previous != nil && previous.file != nil {
		_ = previous.file.Close()
	}
}

// Close flushes and closes the log file of the global logger
func Close() error {
	initMu.Lock()
	svc := DefaultLoggingService
	initMu.Unlock()

	if svc == nil || svc.file == nil {
		return nil
	}
	return svc.file.Close()
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to info
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// GetConsoleLogLevel picks the console level. Tests stay quiet unless
// verbose; elsewhere an explicit level wins over the environment default.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}
	if level != "" {
		return parseLogLevel(level)
	}
	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// GetFileLogLevel is the level of the JSON log file, which keeps everything
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func current() *slog.Logger {
	initMu.Lock()
	defer initMu.Unlock()
	if DefaultLoggingService == nil {
		return nil
	}
	return DefaultLoggingService.Logger
}

func fallback(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	if l := current(); l != nil {
		l.Info(msg, args...)
		return
	}
	// Fallback to console logger if not initialized
	fallback(slog.LevelInfo).Info(msg, args...)
}

func Error(msg string, args ...any) {
	if l := current(); l != nil {
		l.Error(msg, args...)
		return
	}
	fallback(slog.LevelError).Error(msg, args...)
}

func Warn(msg string, args ...any) {
	if l := current(); l != nil {
		l.Warn(msg, args...)
		return
	}
	fallback(slog.LevelWarn).Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	if l := current(); l != nil {
		l.Debug(msg, args...)
		return
	}
	fallback(slog.LevelDebug).Debug(msg, args...)
}
